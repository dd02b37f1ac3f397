package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
)

// DefinitionFile is the file name Write uses.
const DefinitionFile = "test_cases.toml"

type subtagData struct {
	tag    string
	fields map[string]any
}

type caseData struct {
	name   string
	fields map[string]any
}

type precisionData struct {
	precision string
	configs   []string
}

type compilerData struct {
	compiler   string
	precisions []precisionData
}

// Builder accumulates a definition document. Cases, subtag rules and test
// matrices keep the order they were added in, since that order drives
// ordinals and derived selections.
type Builder struct {
	t        testing.TB
	testDir  string
	general  map[string]any
	subtags  []subtagData
	cases    []caseData
	modifs   map[string]any
	ial      map[string]any
	ialTests []compilerData
}

// NewBuilder creates an empty definition builder.
func NewBuilder(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, general: map[string]any{}, modifs: map[string]any{}}
}

// WithTestDir sets the top-level test_dir.
func (b *Builder) WithTestDir(dir string) *Builder {
	b.testDir = dir
	return b
}

// WithGeneral sets [general] keys such as tag, dry, mode, selection, extra.
func (b *Builder) WithGeneral(opts ...GeneralOption) *Builder {
	for _, opt := range opts {
		opt(b.general)
	}
	return b
}

// WithSubtag adds a [general.subtags.<tag>] rule.
func (b *Builder) WithSubtag(tag string, opts ...SubtagOption) *Builder {
	fields := map[string]any{}
	for _, opt := range opts {
		opt(fields)
	}
	b.subtags = append(b.subtags, subtagData{tag: tag, fields: fields})
	return b
}

// WithCase adds a [cases.<name>] entry.
func (b *Builder) WithCase(name string, opts ...CaseOption) *Builder {
	fields := map[string]any{}
	for _, opt := range opts {
		opt(fields)
	}
	b.cases = append(b.cases, caseData{name: name, fields: fields})
	return b
}

// WithModifs sets the global override tree.
func (b *Builder) WithModifs(modifs map[string]any) *Builder {
	b.modifs = modifs
	return b
}

// WithIAL sets [ial] keys.
func (b *Builder) WithIAL(opts ...IALOption) *Builder {
	if b.ial == nil {
		b.ial = map[string]any{}
	}
	for _, opt := range opts {
		opt(b.ial)
	}
	return b
}

// WithTests adds base configurations for a compiler and precision to the
// build matrix. Repeated calls for the same compiler extend it in order.
func (b *Builder) WithTests(compiler, precision string, configs ...string) *Builder {
	if b.ial == nil {
		b.ial = map[string]any{}
	}
	for i := range b.ialTests {
		if b.ialTests[i].compiler == compiler {
			b.ialTests[i].precisions = append(b.ialTests[i].precisions, precisionData{precision, configs})
			return b
		}
	}
	b.ialTests = append(b.ialTests, compilerData{
		compiler:   compiler,
		precisions: []precisionData{{precision, configs}},
	})
	return b
}

// String renders the definition as TOML.
func (b *Builder) String() string {
	b.t.Helper()
	var sb strings.Builder
	if b.testDir != "" {
		sb.WriteString(b.body(map[string]any{"test_dir": b.testDir}))
	}
	if len(b.general) > 0 || len(b.subtags) > 0 {
		sb.WriteString("[general]\n")
		sb.WriteString(b.body(b.general))
	}
	for _, s := range b.subtags {
		fmt.Fprintf(&sb, "\n[general.subtags.%s]\n", s.tag)
		sb.WriteString(b.body(s.fields))
	}
	for _, c := range b.cases {
		fmt.Fprintf(&sb, "\n[cases.%s]\n", c.name)
		sb.WriteString(b.body(c.fields))
	}
	if len(b.modifs) > 0 {
		sb.WriteString("\n[modifs]\n")
		sb.WriteString(b.body(b.modifs))
	}
	if b.ial != nil {
		sb.WriteString("\n[ial]\n")
		sb.WriteString(b.body(b.ial))
		for _, c := range b.ialTests {
			fmt.Fprintf(&sb, "\n[ial.tests.%s]\n", c.compiler)
			for _, p := range c.precisions {
				sb.WriteString(b.body(map[string]any{p.precision: p.configs}))
			}
		}
	}
	return sb.String()
}

// Write writes the definition into dir and returns its path.
func (b *Builder) Write(dir string) string {
	b.t.Helper()
	path := filepath.Join(dir, DefinitionFile)
	require.NoError(b.t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// body encodes m as key/value lines with nested tables inline.
func (b *Builder) body(m map[string]any) string {
	b.t.Helper()
	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).SetTablesInline(true).Encode(m)
	require.NoError(b.t, err)
	return buf.String()
}
