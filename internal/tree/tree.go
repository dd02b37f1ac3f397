// Package tree provides helpers for nested override trees.
//
// An override tree is the decoded form of a TOML table: map[string]any whose
// values are scalars, []any, or further map[string]any tables.
package tree

// Clone returns a deep copy of t. Nested tables and arrays are copied;
// scalars are shared. A nil tree clones to an empty tree.
func Clone(t map[string]any) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = cloneValue(item)
		}
		return arr
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Merge deep-merges override onto base and returns a new tree.
// Keys present in both win from override at every nesting level; tables
// present on both sides are merged recursively. Neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := Clone(base)
	for k, v := range override {
		existing, ok := out[k].(map[string]any)
		incoming, isTable := v.(map[string]any)
		if ok && isTable {
			out[k] = Merge(existing, incoming)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Set assigns value at the dotted key path, creating intermediate tables.
// An intermediate scalar is replaced by a table.
func Set(t map[string]any, value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := t
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// Get returns the value at the key path.
func Get(t map[string]any, path ...string) (any, bool) {
	var cur any = t
	for _, key := range path {
		table, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = table[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
