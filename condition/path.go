package condition

import (
	"strconv"
	"strings"
)

// Lookup resolves a dotted path with optional single-level array indexing
// (e.g. "items[0].name") against a JSON-shaped value. A missing
// intermediate segment resolves to absent rather than an error, so
// is_null/is_not_null become the idiomatic way to test for absent data.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := root
	for _, seg := range strings.Split(path, ".") {
		name, index, indexed := splitIndex(seg)

		if name != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := m[name]
			if !ok {
				return nil, false
			}
			current = v
		}

		if indexed {
			list, ok := current.([]any)
			if !ok || index < 0 || index >= len(list) {
				return nil, false
			}
			current = list[index]
		}
	}

	return current, true
}

// splitIndex splits a path segment like "items[2]" into its name and index.
// Segments without a valid "[n]" suffix return indexed=false.
func splitIndex(seg string) (name string, index int, indexed bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}

	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}

	return seg[:open], n, true
}
