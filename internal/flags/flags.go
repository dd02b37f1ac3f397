// Package flags provides feature flags read from the settings file.
// Flags are read-only after initialization and unknown flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/ttr/internal/log"
)

const (
	// FlagFragmentDiff logs a unified diff when a fragment file is rewritten.
	FlagFragmentDiff = "fragment-diff"

	// FlagArtifactWatch lets auto artifact discovery watch the output
	// directory with fsnotify before falling back to modification times.
	FlagArtifactWatch = "artifact-watch"

	// FlagCaseDump prints every case record as YAML when listing verbosely.
	FlagCaseDump = "case-dump"
)

// Known describes every flag the program reads.
var Known = map[string]string{
	FlagFragmentDiff:  "log a diff when a fragment file changes",
	FlagArtifactWatch: "watch the output directory during auto discovery",
	FlagCaseDump:      "dump case records as YAML in verbose listings",
}

// Registry holds feature flag state.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from the settings map. A nil map disables every flag.
func New(flags map[string]bool) *Registry {
	if flags == nil {
		flags = make(map[string]bool)
	}
	r := &Registry{flags: flags}
	for name := range flags {
		if _, ok := Known[name]; !ok {
			log.Warn(log.CatConfig, "unknown feature flag in settings", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "feature flags initialized", "enabled", r.EnabledNames())
	return r
}

// Enabled reports whether the named flag is on. Nil-safe.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	return r.flags[name]
}

// EnabledNames returns the sorted names of enabled flags.
func (r *Registry) EnabledNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	for name, on := range r.flags {
		if on {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
