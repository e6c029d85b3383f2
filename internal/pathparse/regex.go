package pathparse

import (
	"fmt"
	"regexp"
)

// regexParser extracts fields from the full path using named capture
// groups, for product families whose names do not split on a single
// delimiter.
type regexParser struct {
	re          *regexp.Regexp
	dateLayouts []string
}

func newRegex(params map[string]any) (Parser, error) {
	raw, ok := params["pattern"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("regex parser: pattern parameter is required")
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("regex parser: %w", err)
	}
	named := 0
	for _, n := range re.SubexpNames() {
		if n != "" {
			named++
		}
	}
	if named == 0 {
		return nil, fmt.Errorf("regex parser: pattern has no named capture groups")
	}

	p := &regexParser{re: re, dateLayouts: defaultDateLayouts}
	if v, ok := params["date_layouts"]; ok {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("regex parser: date_layouts must be a non-empty list")
		}
		layouts := make([]string, 0, len(list))
		for _, l := range list {
			s, ok := l.(string)
			if !ok {
				return nil, fmt.Errorf("regex parser: date_layouts entries must be strings")
			}
			layouts = append(layouts, s)
		}
		p.dateLayouts = layouts
	}
	return p, nil
}

func (p *regexParser) Parse(path string) (Fields, error) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		var missing []string
		for _, n := range p.re.SubexpNames() {
			if n != "" {
				missing = append(missing, n)
			}
		}
		return nil, &ParseError{Path: path, Missing: missing, Reason: "pattern did not match"}
	}

	out := Fields{}
	for i, n := range p.re.SubexpNames() {
		if n == "" || m[i] == "" {
			continue
		}
		out[n] = m[i]
	}
	if raw, ok := out[FieldDate]; ok {
		ts, err := parseDate(raw, p.dateLayouts)
		if err != nil {
			return nil, &ParseError{Path: path, Reason: err.Error()}
		}
		out[FieldDate] = ts.UTC().Format(NormalizedDateLayout)
	}
	return out, nil
}
