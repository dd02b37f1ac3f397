package registry

import (
	"github.com/jinzhu/copier"

	"github.com/zjrosen/ttr/internal/tree"
)

// Case is one named test configuration.
type Case struct {
	Name   string
	Base   string // template name, empty means Name
	Host   string // name of the case this one runs on, if any
	Subtag string
	// Start fixes the counter of a hostless case. Zero means use the ordinal.
	Start  int
	Extra  []string
	Modifs map[string]any
	Tasks  []string

	// Filled in by the pipeline.
	Hostname   string
	HostDomain string
	ConfigName string
	DomainName string
}

// BaseName returns the template this case is generated from.
func (c *Case) BaseName() string {
	if c.Base != "" {
		return c.Base
	}
	return c.Name
}

// Configured reports whether the configuration tool already produced this
// case's artifact.
func (c *Case) Configured() bool {
	return c.ConfigName != ""
}

// Clone returns a deep copy of the case.
func (c *Case) Clone() *Case {
	src := *c
	src.Modifs = nil

	out := &Case{}
	if err := copier.CopyWithOption(out, &src, copier.Option{DeepCopy: true}); err != nil {
		// Only plain fields remain; fall back to slice copies.
		*out = src
		out.Extra = append([]string(nil), c.Extra...)
		out.Tasks = append([]string(nil), c.Tasks...)
	}
	out.Modifs = tree.Clone(c.Modifs)
	return out
}
