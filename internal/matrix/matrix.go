// Package matrix expands build metadata into a compiler × precision × base
// configuration cross product of cases.
package matrix

import (
	"fmt"

	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/paths"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/tree"
)

// Result is the outcome of an expansion.
type Result struct {
	// Tag replaces the run tag: the first seven characters of the build hash
	// followed by "_".
	Tag string
	// Selection replaces the working selection.
	Selection []string
}

// Expander registers one case per matrix entry.
type Expander struct {
	user string
}

// NewExpander creates an expander substituting user for @USER@.
func NewExpander(user string) *Expander {
	return &Expander{user: user}
}

// Expand registers "{config}_{compiler}_{precision}" for every entry of
// ial.tests in document order. Earlier registry entries are left in place
// but are not part of the returned selection.
func (e *Expander) Expand(reg *registry.Registry, ial *definition.IAL) (Result, error) {
	hash := ial.HashOrLatest()
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	tag := short + "_"
	bindir := ial.BindirTemplate()

	res := Result{Tag: tag}
	for _, ct := range ial.Tests {
		for _, pt := range ct.Precisions {
			dpPath, spPath := "", ""
			if bindir != "" {
				dpPath = paths.BinTokens{
					User:      e.user,
					CPTag:     paths.CPTag(ct.Compiler, "dp"),
					Hash:      hash,
					Compiler:  ct.Compiler,
					Precision: paths.PrecisionCode("dp"),
				}.Expand(bindir)
				spPath = paths.BinTokens{
					User:      e.user,
					CPTag:     paths.CPTag(ct.Compiler, pt.Precision),
					Hash:      hash,
					Compiler:  ct.Compiler,
					Precision: paths.PrecisionCode(pt.Precision),
				}.Expand(bindir)
			}

			for _, conf := range pt.Configs {
				name := fmt.Sprintf("%s_%s_%s", conf, ct.Compiler, pt.Precision)
				modifs := map[string]any{}
				tree.Set(modifs, ct.Compiler, "submission", "compiler")
				tree.Set(modifs, pt.Precision, "submission", "precision")
				tree.Set(modifs, tag+name+"_", "scheduler", "ecfvars", "case_prefix")
				if bindir != "" {
					tree.Set(modifs, dpPath, "submission", "bindir")
					tree.Set(modifs, spPath, "submission", "task_exceptions", "Forecast", "bindir")
				}

				if old := reg.Put(&registry.Case{Name: name, Base: conf, Modifs: modifs}); old != nil {
					log.Warn(log.CatMatrix, "matrix case replaces existing case", "case", name, "base", old.Base)
				}
				res.Selection = append(res.Selection, name)
				log.Debug(log.CatMatrix, "register matrix case", "case", name, "base", conf)
			}
		}
	}

	log.Info(log.CatMatrix, "expanded build matrix", "tag", tag, "cases", len(res.Selection))
	return res, nil
}
