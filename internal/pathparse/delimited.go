package pathparse

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// delimitedParser splits the file stem on a fixed delimiter and picks
// fields by segment position. This covers the common
// <tile>_<date>[_<band>] naming convention of raster archives.
type delimitedParser struct {
	delimiter   string
	fields      map[string]int
	defaulted   bool
	dateLayouts []string
}

func newDelimited(params map[string]any) (Parser, error) {
	p := &delimitedParser{
		delimiter:   "_",
		fields:      map[string]int{FieldTile: 0, FieldDate: 1},
		defaulted:   true,
		dateLayouts: defaultDateLayouts,
	}

	if v, ok := params["delimiter"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("delimited parser: delimiter must be a non-empty string")
		}
		p.delimiter = s
	}
	if v, ok := params["fields"]; ok {
		m, ok := v.(map[string]any)
		if !ok || len(m) == 0 {
			return nil, fmt.Errorf("delimited parser: fields must be a non-empty name->position map")
		}
		fields := make(map[string]int, len(m))
		for name, pos := range m {
			// JSON numbers decode as float64.
			f, ok := pos.(float64)
			if !ok || f < 0 || f != float64(int(f)) {
				return nil, fmt.Errorf("delimited parser: field %q position must be a non-negative integer", name)
			}
			fields[name] = int(f)
		}
		p.fields = fields
		p.defaulted = false
	}
	if v, ok := params["date_layouts"]; ok {
		raw, ok := v.([]any)
		if !ok || len(raw) == 0 {
			return nil, fmt.Errorf("delimited parser: date_layouts must be a non-empty list")
		}
		layouts := make([]string, 0, len(raw))
		for _, l := range raw {
			s, ok := l.(string)
			if !ok {
				return nil, fmt.Errorf("delimited parser: date_layouts entries must be strings")
			}
			layouts = append(layouts, s)
		}
		p.dateLayouts = layouts
	}
	return p, nil
}

func (p *delimitedParser) Parse(path string) (Fields, error) {
	parts := strings.Split(stem(path), p.delimiter)

	out := Fields{}
	var missing []string
	for name, pos := range p.fields {
		if pos >= len(parts) || parts[pos] == "" {
			missing = append(missing, name)
			continue
		}
		out[name] = parts[pos]
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &ParseError{Path: path, Missing: missing}
	}

	// The band segment is optional under the default convention.
	if p.defaulted && len(parts) > 2 && parts[2] != "" {
		out[FieldBand] = parts[2]
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

func parseDate(raw string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if len(raw) != len(layout) {
			continue
		}
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches none of the configured layouts", raw)
}
