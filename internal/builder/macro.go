package builder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zjrosen/ttr/internal/registry"
)

// placeholder matches a macro token such as @counter@.
var placeholder = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)@`)

// MacroContext holds the per-case values substituted into override trees.
type MacroContext struct {
	Counter    int
	Tag        string
	Subtag     string
	HostCase   string
	HostDomain string
}

func (m MacroContext) values() map[string]string {
	return map[string]string{
		"counter":     strconv.Itoa(m.Counter),
		"tag":         m.Tag,
		"subtag":      m.Subtag,
		"host_case":   m.HostCase,
		"host_domain": m.HostDomain,
	}
}

// Render returns a copy of t with macros substituted in every string value.
// A value that is exactly "@counter@" becomes an integer. Any token left
// after substitution is a *registry.ConfigurationError naming the key path.
func Render(caseName string, t map[string]any, ctx MacroContext) (map[string]any, error) {
	r := renderer{caseName: caseName, ctx: ctx, values: ctx.values()}
	out, err := r.table(t, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type renderer struct {
	caseName string
	ctx      MacroContext
	values   map[string]string
}

func (r renderer) table(t map[string]any, path []string) (map[string]any, error) {
	out := make(map[string]any, len(t))
	for k, v := range t {
		rendered, err := r.value(v, append(path, k))
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func (r renderer) value(v any, path []string) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return r.table(val, path)
	case []any:
		arr := make([]any, len(val))
		for i, item := range val {
			rendered, err := r.value(item, append(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return nil, err
			}
			arr[i] = rendered
		}
		return arr, nil
	case string:
		return r.str(val, path)
	default:
		return v, nil
	}
}

func (r renderer) str(s string, path []string) (any, error) {
	if s == "@counter@" {
		return r.ctx.Counter, nil
	}
	out := placeholder.ReplaceAllStringFunc(s, func(token string) string {
		if v, ok := r.values[strings.Trim(token, "@")]; ok {
			return v
		}
		return token
	})
	if left := placeholder.FindString(out); left != "" {
		return nil, &registry.ConfigurationError{
			Case:   r.caseName,
			Key:    keyPath(path),
			Reason: fmt.Sprintf("unresolved macro %s", left),
		}
	}
	return out, nil
}

func keyPath(path []string) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}
