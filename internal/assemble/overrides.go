package assemble

import (
	"fmt"
	"sort"

	"github.com/tidwall/sjson"
)

// ApplyOverrides writes every override into the serialized collection
// document, last. Keys are document paths in gjson syntax; keys absent
// from the document are still written through, as a forward-compatible
// escape hatch, and overrides always win over computed values.
// Applying the same override set twice yields the same document.
func ApplyOverrides(doc []byte, overrides map[string]any) ([]byte, error) {
	if len(overrides) == 0 {
		return doc, nil
	}

	// Deterministic application order.
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := doc
	var err error
	for _, k := range keys {
		out, err = sjson.SetBytes(out, k, overrides[k])
		if err != nil {
			return nil, fmt.Errorf("apply override %q: %w", k, err)
		}
	}
	return out, nil
}
