// Package pathparse extracts structured fields from raster file paths.
//
// Parsing strategies are registered by name and selected through the
// collection configuration, so new raster-product families only need a
// new strategy, not pipeline changes. Parsers are pure: no I/O, and the
// same path always yields the same fields.
package pathparse

import (
	"fmt"
	"strings"
)

// Well-known field names parsers are expected to produce. Tile and date
// form the item key; band selects the asset role inside an item.
const (
	FieldTile = "tile"
	FieldDate = "date"
	FieldBand = "band"
)

// NormalizedDateLayout is the layout of the FieldDate value after
// parsing, regardless of how the date appears in the file name.
const NormalizedDateLayout = "2006-01-02T15:04:05Z"

// Fields maps extracted field names to values.
type Fields map[string]string

// Parser derives fields from a file path.
type Parser interface {
	Parse(path string) (Fields, error)
}

// ParseError reports which expected fields could not be derived from a path.
type ParseError struct {
	Path    string
	Missing []string
	Reason  string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse path %q", e.Path)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing fields %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// stem strips the directory and every extension from a path, so
// "a/b/tileA_2020.tif" and "tileA_2020.tar.gz" both yield the part
// before the first dot of the base name.
func stem(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

var defaultDateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02",
	"20060102",
	"200601",
	"2006",
}
