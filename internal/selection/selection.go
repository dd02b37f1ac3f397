// Package selection computes the ordered working set of cases for a run.
package selection

import (
	"slices"
	"strings"

	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/registry"
)

// Resolve returns the selected case names. An empty general.Selection selects
// every registered case in insertion order.
//
// Each active subtag rule derives a copy of every selected case not matching
// one of its exclude substrings, registered as "{tag}{name}". When any copy
// was derived, the derived names replace the selection entirely.
func Resolve(reg *registry.Registry, general definition.General) ([]string, error) {
	selection := slices.Clone(general.Selection)
	if len(selection) == 0 {
		selection = reg.Names()
	}
	for _, name := range selection {
		if _, err := reg.Lookup(name); err != nil {
			return nil, err
		}
	}

	var derived []string
	for _, rule := range general.Subtags {
		if !rule.Active {
			log.Debug(log.CatSelect, "skip inactive subtag", "subtag", rule.Tag)
			continue
		}
		for _, name := range selection {
			if excluded(name, rule.Exclude) {
				log.Debug(log.CatSelect, "exclude from subtag", "subtag", rule.Tag, "case", name)
				continue
			}
			src, err := reg.Lookup(name)
			if err != nil {
				return nil, err
			}
			if old := reg.Put(derive(src, rule)); old != nil {
				log.Warn(log.CatSelect, "derived case replaces existing case",
					"case", old.Name, "subtag", rule.Tag, "source", name)
			}
			derived = append(derived, rule.Tag+name)
		}
	}

	if len(derived) == 0 {
		return selection, nil
	}
	log.Info(log.CatSelect, "subtags replaced selection", "count", len(derived))
	return derived, nil
}

func derive(src *registry.Case, rule definition.SubtagRule) *registry.Case {
	c := src.Clone()
	c.Name = rule.Tag + src.Name
	if c.Base == "" {
		c.Base = src.Name
	}
	if c.Host != "" {
		c.Host = rule.Tag + c.Host
	}
	c.Subtag = rule.Tag
	c.Extra = append(c.Extra, rule.Extra...)
	return c
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
