// Package registry holds the ordered set of cases a run operates on.
//
// Cases are keyed by name and kept in insertion order, which drives the
// counter assigned to every case. Entries are only ever added or annotated.
package registry

import (
	"fmt"
	"slices"
)

// Registry is an ordered, name-keyed arena of cases.
type Registry struct {
	cases []*Case
	index map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers a new case. Adding an existing name fails with ErrDuplicateCase.
func (r *Registry) Add(c *Case) error {
	if c == nil {
		return ErrNilCase
	}
	if _, ok := r.index[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCase, c.Name)
	}
	r.index[c.Name] = len(r.cases)
	r.cases = append(r.cases, c)
	return nil
}

// Put registers c, replacing any case with the same name in place, and
// returns the replaced case or nil. A replaced case keeps its position.
func (r *Registry) Put(c *Case) *Case {
	if i, ok := r.index[c.Name]; ok {
		old := r.cases[i]
		r.cases[i] = c
		return old
	}
	r.index[c.Name] = len(r.cases)
	r.cases = append(r.cases, c)
	return nil
}

// Get returns the case with the given name.
func (r *Registry) Get(name string) (*Case, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.cases[i], true
}

// Lookup returns the case with the given name or a *LookupError listing
// every known name.
func (r *Registry) Lookup(name string) (*Case, error) {
	if c, ok := r.Get(name); ok {
		return c, nil
	}
	return nil, &LookupError{Name: name, Known: r.Names()}
}

// Names returns case names in insertion order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.cases))
	for i, c := range r.cases {
		names[i] = c.Name
	}
	return names
}

// Cases returns the cases in insertion order.
func (r *Registry) Cases() []*Case {
	return slices.Clone(r.cases)
}

// Len returns the number of cases.
func (r *Registry) Len() int {
	return len(r.cases)
}

// Ordinal returns the 1-based insertion position of name, or 0 when absent.
func (r *Registry) Ordinal(name string) int {
	i, ok := r.index[name]
	if !ok {
		return 0
	}
	return i + 1
}

// ValidateHosts checks that every host reference resolves.
func (r *Registry) ValidateHosts() error {
	for _, c := range r.cases {
		if c.Host == "" {
			continue
		}
		if _, ok := r.index[c.Host]; !ok {
			return &LookupError{Name: c.Host, From: c.Name, Known: r.Names()}
		}
	}
	return nil
}
