package pathparse

import "fmt"

// Factory builds a parser from the constructor parameters given in the
// collection configuration.
type Factory func(params map[string]any) (Parser, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

// New instantiates the named strategy. An empty name selects the
// delimited default.
func New(name string, params map[string]any) (Parser, error) {
	if name == "" {
		name = "delimited"
	}
	if f, ok := reg[name]; ok {
		return f(params)
	}
	return nil, fmt.Errorf("no path parser registered for %q", name)
}

func init() {
	Register("delimited", newDelimited)
	Register("regex", newRegex)
}
