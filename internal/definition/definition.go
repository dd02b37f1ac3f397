// Package definition loads the declarative test-matrix definition file.
//
// The definition is a TOML document with four sections:
//
//	[general]        selection, subtags, tag, dry, mode, extra
//	[cases.<name>]   base, host, subtag, start, extra, tasks, modifs
//	[modifs]         overrides applied to every case
//	[ial]            build metadata driving matrix expansion
//
// Case and rule order matter (they drive ordinals and derived selections), so
// the loader recovers document order alongside the decoded values.
package definition

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"

	"github.com/zjrosen/ttr/internal/caseerr"
)

// ErrInvalid is wrapped by every definition validation failure.
var ErrInvalid = errors.New("invalid definition")

// Run modes for run dispatch.
const (
	ModeSuite = "suite"
	ModeTask  = "task"
)

// Definition is the parsed test-matrix definition.
type Definition struct {
	General General
	Cases   []CaseDef
	Modifs  map[string]any
	IAL     *IAL
	TestDir string
}

// General holds the [general] section.
type General struct {
	// Selection lists case names to run. Empty means every case.
	Selection []string
	Subtags   []SubtagRule
	// Tag prefixes generated names. HasTag is false when the file omitted it.
	Tag    string
	HasTag bool
	Dry    bool
	Mode   string
	Extra  []string
}

// SubtagRule derives a copy of each selected case under a tag prefix.
type SubtagRule struct {
	Tag     string
	Active  bool
	Exclude []string
	Extra   []string
}

// CaseDef is one [cases.<name>] entry as written in the file.
type CaseDef struct {
	Name   string
	Base   string
	Host   string
	Subtag string
	Start  int
	Extra  []string
	Tasks  []string
	Modifs map[string]any
}

// IAL holds build metadata for matrix expansion and binary fetching.
type IAL struct {
	Hash           string
	Active         bool
	Bindir         string
	BuildTarPath   string
	UserBinaryPath string
	Tests          []CompilerTests
}

// CompilerTests lists base configurations per precision for one compiler.
type CompilerTests struct {
	Compiler   string
	Precisions []PrecisionTests
}

// PrecisionTests lists base configurations for one precision.
type PrecisionTests struct {
	Precision string
	Configs   []string
}

// HashOrLatest returns the build identifier, defaulting to "latest".
func (i *IAL) HashOrLatest() string {
	if i == nil || i.Hash == "" {
		return "latest"
	}
	return i.Hash
}

// BindirTemplate returns the binary-directory template. Without an explicit
// bindir, binaries go under user_binary_path by hash, compiler and precision.
func (i *IAL) BindirTemplate() string {
	if i == nil {
		return ""
	}
	if i.Bindir != "" {
		return i.Bindir
	}
	if i.UserBinaryPath == "" {
		return ""
	}
	return strings.TrimSuffix(i.UserBinaryPath, "/") + "/@IAL_HASH@/@COMPILER@/@PRECISION@/bin"
}

// Load reads and parses a definition file. When the file omits general.tag,
// the tag is derived from pyprojectPath (see DefaultTag).
func Load(path, pyprojectPath string) (*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the user-selected definition file
	if err != nil {
		return nil, fmt.Errorf("reading definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if !def.General.HasTag {
		def.General.Tag = DefaultTag(pyprojectPath)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Parse decodes a definition document without touching the filesystem.
func Parse(data []byte) (*Definition, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	order, err := scanKeyOrder(data)
	if err != nil {
		return nil, err
	}

	def := &Definition{Modifs: map[string]any{}}

	if v, ok := raw["test_dir"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, invalid("test_dir", "must be a string")
		}
		def.TestDir = s
	}

	if err := parseGeneral(raw, order, &def.General); err != nil {
		return nil, err
	}

	if cases, ok := raw["cases"]; ok {
		table, ok := cases.(map[string]any)
		if !ok {
			return nil, invalid("cases", "must be a table")
		}
		for _, name := range order.keys(table, "cases") {
			cd, err := parseCase(name, table[name])
			if err != nil {
				return nil, err
			}
			def.Cases = append(def.Cases, cd)
		}
	}

	if modifs, ok := raw["modifs"]; ok {
		table, ok := modifs.(map[string]any)
		if !ok {
			return nil, invalid("modifs", "must be a table")
		}
		def.Modifs = table
	}

	if ial, ok := raw["ial"]; ok {
		table, ok := ial.(map[string]any)
		if !ok {
			return nil, invalid("ial", "must be a table")
		}
		parsed, err := parseIAL(table, order)
		if err != nil {
			return nil, err
		}
		def.IAL = parsed
	}

	return def, nil
}

// Validate rejects tags that start with a digit. Generated names are prefixed
// with the tag, and numeric prefixes are reserved for build hashes.
func (d *Definition) Validate() error {
	if startsWithDigit(d.General.Tag) {
		return &caseerr.ConfigurationError{
			Key:    "general.tag",
			Reason: "the tag cannot start with an integer. tag=" + d.General.Tag,
		}
	}
	for _, rule := range d.General.Subtags {
		if startsWithDigit(rule.Tag) {
			return &caseerr.ConfigurationError{
				Key:    "general.subtags." + rule.Tag,
				Reason: "the subtag cannot start with an integer. subtag=" + rule.Tag,
			}
		}
	}
	switch d.General.Mode {
	case "", ModeSuite, ModeTask:
	default:
		return invalid("general.mode", fmt.Sprintf("unknown mode %q", d.General.Mode))
	}
	return nil
}

// ResolvedTestDir returns the output directory for the given run tag.
func (d *Definition) ResolvedTestDir(tag string) string {
	if d.TestDir != "" {
		return d.TestDir
	}
	return tag + "configs"
}

func startsWithDigit(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}

func invalid(key, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalid, key, reason)
}

func parseGeneral(raw map[string]any, order keyOrder, g *General) error {
	v, ok := raw["general"]
	if !ok {
		return nil
	}
	table, ok := v.(map[string]any)
	if !ok {
		return invalid("general", "must be a table")
	}

	var err error
	if g.Selection, err = stringList(table, "selection", "general.selection"); err != nil {
		return err
	}
	if g.Extra, err = stringList(table, "extra", "general.extra"); err != nil {
		return err
	}
	if tag, ok := table["tag"]; ok {
		s, ok := tag.(string)
		if !ok {
			return invalid("general.tag", "must be a string")
		}
		g.Tag, g.HasTag = s, true
	}
	if dry, ok := table["dry"]; ok {
		b, ok := dry.(bool)
		if !ok {
			return invalid("general.dry", "must be a boolean")
		}
		g.Dry = b
	}
	if mode, ok := table["mode"]; ok {
		s, ok := mode.(string)
		if !ok {
			return invalid("general.mode", "must be a string")
		}
		g.Mode = s
	}

	subtags, ok := table["subtags"]
	if !ok {
		return nil
	}
	g.Subtags, err = parseSubtags(subtags, order)
	return err
}

// parseSubtags accepts the table form
//
//	[general.subtags.a]
//	active = true
//	extra = ["x.toml"]
//
// and the older list form subtags = [{a = ["x.toml"]}], where each entry maps
// a tag to its extra fragments and is always active.
func parseSubtags(v any, order keyOrder) ([]SubtagRule, error) {
	switch val := v.(type) {
	case map[string]any:
		var rules []SubtagRule
		for _, tag := range order.keys(val, "general", "subtags") {
			rule, err := parseSubtagRule(tag, val[tag])
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
		return rules, nil
	case []any:
		var rules []SubtagRule
		for i, item := range val {
			entry, ok := item.(map[string]any)
			if !ok || len(entry) != 1 {
				return nil, invalid(fmt.Sprintf("general.subtags[%d]", i), "must be a single-key table")
			}
			for tag, body := range entry {
				rule, err := parseSubtagRule(tag, body)
				if err != nil {
					return nil, err
				}
				rules = append(rules, rule)
			}
		}
		return rules, nil
	default:
		return nil, invalid("general.subtags", "must be a table or a list")
	}
}

func parseSubtagRule(tag string, v any) (SubtagRule, error) {
	key := "general.subtags." + tag
	rule := SubtagRule{Tag: tag, Active: true}
	switch body := v.(type) {
	case []any:
		extra, err := toStrings(body, key)
		if err != nil {
			return rule, err
		}
		rule.Extra = extra
	case map[string]any:
		if active, ok := body["active"]; ok {
			b, ok := active.(bool)
			if !ok {
				return rule, invalid(key+".active", "must be a boolean")
			}
			rule.Active = b
		}
		var err error
		if rule.Exclude, err = stringList(body, "exclude", key+".exclude"); err != nil {
			return rule, err
		}
		if rule.Extra, err = stringList(body, "extra", key+".extra"); err != nil {
			return rule, err
		}
	default:
		return rule, invalid(key, "must be a table or a list of fragments")
	}
	return rule, nil
}

func parseCase(name string, v any) (CaseDef, error) {
	key := "cases." + name
	cd := CaseDef{Name: name, Modifs: map[string]any{}}
	table, ok := v.(map[string]any)
	if !ok {
		return cd, invalid(key, "must be a table")
	}

	for field, dst := range map[string]*string{"base": &cd.Base, "host": &cd.Host, "subtag": &cd.Subtag} {
		if raw, ok := table[field]; ok {
			s, ok := raw.(string)
			if !ok {
				return cd, invalid(key+"."+field, "must be a string")
			}
			*dst = s
		}
	}
	if start, ok := table["start"]; ok {
		n, ok := start.(int64)
		if !ok || n < 1 {
			return cd, invalid(key+".start", "must be a positive integer")
		}
		cd.Start = int(n)
	}

	var err error
	if cd.Extra, err = stringList(table, "extra", key+".extra"); err != nil {
		return cd, err
	}
	if cd.Tasks, err = stringList(table, "tasks", key+".tasks"); err != nil {
		return cd, err
	}
	if modifs, ok := table["modifs"]; ok {
		m, ok := modifs.(map[string]any)
		if !ok {
			return cd, invalid(key+".modifs", "must be a table")
		}
		cd.Modifs = m
	}
	return cd, nil
}

func parseIAL(table map[string]any, order keyOrder) (*IAL, error) {
	ial := &IAL{}
	for field, dst := range map[string]*string{
		"ial_hash":         &ial.Hash,
		"bindir":           &ial.Bindir,
		"build_tar_path":   &ial.BuildTarPath,
		"user_binary_path": &ial.UserBinaryPath,
	} {
		if raw, ok := table[field]; ok {
			s, ok := raw.(string)
			if !ok {
				return nil, invalid("ial."+field, "must be a string")
			}
			*dst = s
		}
	}
	if active, ok := table["active"]; ok {
		b, ok := active.(bool)
		if !ok {
			return nil, invalid("ial.active", "must be a boolean")
		}
		ial.Active = b
	}

	tests, ok := table["tests"]
	if !ok {
		return ial, nil
	}
	compilers, ok := tests.(map[string]any)
	if !ok {
		return nil, invalid("ial.tests", "must be a table")
	}
	for _, compiler := range order.keys(compilers, "ial", "tests") {
		precisions, ok := compilers[compiler].(map[string]any)
		if !ok {
			return nil, invalid("ial.tests."+compiler, "must be a table")
		}
		ct := CompilerTests{Compiler: compiler}
		for _, precision := range order.keys(precisions, "ial", "tests", compiler) {
			key := "ial.tests." + compiler + "." + precision
			list, ok := precisions[precision].([]any)
			if !ok {
				return nil, invalid(key, "must be a list of configurations")
			}
			configs, err := toStrings(list, key)
			if err != nil {
				return nil, err
			}
			ct.Precisions = append(ct.Precisions, PrecisionTests{Precision: precision, Configs: configs})
		}
		ial.Tests = append(ial.Tests, ct)
	}
	return ial, nil
}

func stringList(table map[string]any, field, key string) ([]string, error) {
	v, ok := table[field]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalid(key, "must be a list of strings")
	}
	return toStrings(list, key)
}

func toStrings(list []any, key string) ([]string, error) {
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, invalid(fmt.Sprintf("%s[%d]", key, i), "must be a string")
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultTag derives the run tag from the deode dependency pin in a
// pyproject.toml: tool.poetry.dependencies.deode.{tag|branch}, with "/" and
// "." replaced by "_" and a trailing "_". Falls back to "Unknown_".
func DefaultTag(pyprojectPath string) string {
	tag := "Unknown"
	data, err := os.ReadFile(pyprojectPath) //nolint:gosec // G304: well-known project file
	if err == nil {
		var project struct {
			Tool struct {
				Poetry struct {
					Dependencies map[string]any `toml:"dependencies"`
				} `toml:"poetry"`
			} `toml:"tool"`
		}
		if toml.Unmarshal(data, &project) == nil {
			if deode, ok := project.Tool.Poetry.Dependencies["deode"].(map[string]any); ok {
				if v, ok := deode["tag"].(string); ok {
					tag = v
				} else if v, ok := deode["branch"].(string); ok {
					tag = v
				}
			}
		}
	}
	return strings.NewReplacer("/", "_", ".", "_").Replace(tag) + "_"
}
