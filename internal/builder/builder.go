// Package builder renders per-case fragment files and the configuration tool
// commands that consume them.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/tree"
)

// Options configures a Builder.
type Options struct {
	// TestDir receives fragment files and is passed to the tool as -o.
	TestDir string
	// ConfigurationsDir is the directory holding base configurations.
	ConfigurationsDir string
	Tag               string
	// Extra fragments prepended to every case's own extra list.
	Extra        []string
	GlobalModifs map[string]any
	Flags        *flags.Registry
}

// Command is a pending configuration tool invocation for one case.
type Command struct {
	Case     string
	Argv     []string
	Fragment string
}

// Builder materializes cases into fragments and commands. It is re-entrant:
// cases already configured are skipped and rebuilt commands replace older
// ones in place.
type Builder struct {
	reg       *registry.Registry
	selection []string
	opts      Options

	commands []Command
	index    map[string]int
	written  int
}

// New creates a Builder over the given selection.
func New(reg *registry.Registry, selection []string, opts Options) *Builder {
	return &Builder{
		reg:       reg,
		selection: slices.Clone(selection),
		opts:      opts,
		index:     make(map[string]int),
	}
}

// Materialize renders fragments and commands. With nil targets every selected
// case is materialized. Otherwise targets is filtered down to the cases that
// host some selected case; other names are ignored.
func (b *Builder) Materialize(ctx context.Context, targets []string) error {
	names := b.selection
	label := ""
	if targets != nil {
		names = b.hostTargets(targets)
		label = "host "
	}

	if err := os.MkdirAll(b.opts.TestDir, 0o750); err != nil {
		return fmt.Errorf("creating test dir: %w", err)
	}
	log.Info(log.CatBuild, "create "+label+"config files", "dir", b.opts.TestDir, "cases", len(names))

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		c, err := b.reg.Lookup(name)
		if err != nil {
			return err
		}
		if c.Configured() {
			log.Debug(log.CatBuild, "skip configured case", "case", name, "config", c.ConfigName)
			continue
		}
		cmd, err := b.build(c)
		if err != nil {
			return err
		}
		b.store(cmd)
	}
	return nil
}

func (b *Builder) hostTargets(targets []string) []string {
	hosts := make(map[string]bool)
	for _, name := range b.selection {
		if c, ok := b.reg.Get(name); ok && c.Host != "" {
			hosts[c.Host] = true
		}
	}
	out := make([]string, 0, len(targets))
	for _, name := range targets {
		if !hosts[name] {
			log.Debug(log.CatBuild, "skip target that hosts no selected case", "case", name)
			continue
		}
		out = append(out, name)
	}
	return out
}

// Commands returns pending commands in the order they were first built.
func (b *Builder) Commands() []Command {
	out := make([]Command, len(b.commands))
	for i, c := range b.commands {
		out[i] = c
		out[i].Argv = slices.Clone(c.Argv)
	}
	return out
}

// Written returns how many fragment files have been written so far.
func (b *Builder) Written() int {
	return b.written
}

// Counter returns the macro counter for c: the host's ordinal when c has a
// host, else its start override or its own ordinal.
func (b *Builder) Counter(c *registry.Case) (int, error) {
	if c.Host != "" {
		if _, err := b.reg.Lookup(c.Host); err != nil {
			return 0, err
		}
		return b.reg.Ordinal(c.Host), nil
	}
	if c.Start > 0 {
		return c.Start, nil
	}
	return b.reg.Ordinal(c.Name), nil
}

func (b *Builder) build(c *registry.Case) (Command, error) {
	counter, err := b.Counter(c)
	if err != nil {
		return Command{}, err
	}

	merged := tree.Merge(b.opts.GlobalModifs, c.Modifs)
	rendered, err := Render(c.Name, merged, MacroContext{
		Counter:    counter,
		Tag:        b.opts.Tag,
		Subtag:     c.Subtag,
		HostCase:   c.Hostname,
		HostDomain: c.HostDomain,
	})
	if err != nil {
		return Command{}, err
	}

	fragment := filepath.Join(b.opts.TestDir, "modifs_"+c.Name+".toml")
	if err := b.writeFragment(fragment, rendered); err != nil {
		return Command{}, err
	}
	log.Info(log.CatBuild, "create", "fragment", fragment, "counter", counter)

	argv := []string{"case", filepath.Join(b.opts.ConfigurationsDir, c.BaseName())}
	argv = append(argv, b.opts.Extra...)
	argv = append(argv, c.Extra...)
	argv = append(argv, fragment, "-o", b.opts.TestDir)

	return Command{Case: c.Name, Argv: argv, Fragment: fragment}, nil
}

func (b *Builder) writeFragment(path string, t map[string]any) error {
	data, err := toml.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding fragment %s: %w", path, err)
	}

	if b.opts.Flags.Enabled(flags.FlagFragmentDiff) {
		previous, err := os.ReadFile(path) //nolint:gosec // G304: fragment path is built from the test dir
		switch {
		case err == nil:
			if diff := lineDiff(string(previous), string(data)); diff != "" {
				log.Debug(log.CatBuild, "fragment changed", "fragment", path, "diff", "\n"+diff)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("reading previous fragment: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing fragment: %w", err)
	}
	b.written++
	return nil
}

func (b *Builder) store(cmd Command) {
	if i, ok := b.index[cmd.Case]; ok {
		b.commands[i] = cmd
		return
	}
	b.index[cmd.Case] = len(b.commands)
	b.commands = append(b.commands, cmd)
}
