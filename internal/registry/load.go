package registry

import (
	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/tree"
)

// FromDefinition builds the registry from the definition's cases in document
// order. Host references must resolve within the definition.
func FromDefinition(def *definition.Definition) (*Registry, error) {
	r := New()
	for _, cd := range def.Cases {
		c := &Case{
			Name:   cd.Name,
			Base:   cd.Base,
			Host:   cd.Host,
			Subtag: cd.Subtag,
			Start:  cd.Start,
			Extra:  append([]string(nil), cd.Extra...),
			Modifs: tree.Clone(cd.Modifs),
			Tasks:  append([]string(nil), cd.Tasks...),
		}
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	if err := r.ValidateHosts(); err != nil {
		return nil, err
	}
	return r, nil
}
