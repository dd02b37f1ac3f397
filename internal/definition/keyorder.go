package definition

import (
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
)

// pathSep joins key parts into a lookup path. It cannot appear in a TOML key
// without escaping, so quoted keys containing dots stay unambiguous.
const pathSep = "\x1f"

// keyOrder records, for every table path in a document, the order in which
// its child keys first appear. Decoding into map[string]any loses this order,
// and case order drives ordinal assignment.
type keyOrder map[string][]string

// scanKeyOrder walks the document's expressions and records key order for
// table headers, dotted keys, and inline tables.
func scanKeyOrder(data []byte) (keyOrder, error) {
	order := keyOrder{}
	seen := map[string]bool{}

	var p unstable.Parser
	p.Reset(data)

	var current []string
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			current = keyParts(expr.Key())
			order.record(seen, nil, current)
		case unstable.KeyValue:
			order.recordKeyValue(seen, current, expr)
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return order, nil
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

func (o keyOrder) record(seen map[string]bool, prefix, parts []string) {
	path := append([]string(nil), prefix...)
	for _, part := range parts {
		parent := strings.Join(path, pathSep)
		path = append(path, part)
		full := strings.Join(path, pathSep)
		if seen[full] {
			continue
		}
		seen[full] = true
		o[parent] = append(o[parent], part)
	}
}

func (o keyOrder) recordKeyValue(seen map[string]bool, prefix []string, kv *unstable.Node) {
	parts := keyParts(kv.Key())
	o.record(seen, prefix, parts)

	value := kv.Value()
	if value == nil || value.Kind != unstable.InlineTable {
		return
	}
	nested := append(append([]string(nil), prefix...), parts...)
	children := value.Children()
	for children.Next() {
		child := children.Node()
		if child.Kind == unstable.KeyValue {
			o.recordKeyValue(seen, nested, child)
		}
	}
}

// keys returns the keys of m in document order for the table at path.
// Keys the scan did not see (which should not happen for decoded documents)
// are appended in lexical order so the result is always complete.
func (o keyOrder) keys(m map[string]any, path ...string) []string {
	known := o[strings.Join(path, pathSep)]
	out := make([]string, 0, len(m))
	used := make(map[string]bool, len(m))
	for _, k := range known {
		if _, ok := m[k]; ok && !used[k] {
			out = append(out, k)
			used[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
