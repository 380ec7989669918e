package worldmodel

import (
	"fmt"
	"sort"
	"strings"
)

// FlattenProperties concatenates scalar and list-of-scalar property values
// as "key: value" segments, mirroring the graph backend's properties_text
// full-text field (§4.3). Nested maps are skipped — the full-text index is a
// keyword-search convenience, not a structural projection.
//
// Exported so the pgraph backend can compute the same properties_text value
// it stores and indexes server-side, keeping both backends' Query semantics
// aligned.
func FlattenProperties(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := props[k]
		switch val := v.(type) {
		case map[string]any:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				if _, ok := item.(map[string]any); ok {
					continue
				}
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			if len(parts) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(parts, ", "))
		default:
			fmt.Fprintf(&b, "%s: %v\n", k, val)
		}
	}
	return b.String()
}
