package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/zjrosen/ttr/internal/registry"
)

// Discovery selects how the artifact produced by the configuration tool is
// located.
type Discovery string

const (
	// DiscoverReport parses the tool's "Save config <path>" line.
	DiscoverReport Discovery = "report"
	// DiscoverWatch uses file events observed during the invocation.
	DiscoverWatch Discovery = "watch"
	// DiscoverMtime picks the newest TOML file in the output directory.
	DiscoverMtime Discovery = "mtime"
	// DiscoverAuto tries report, then watch, then mtime.
	DiscoverAuto Discovery = "auto"
)

// ParseDiscovery validates a discovery name. Empty means auto.
func ParseDiscovery(s string) (Discovery, error) {
	switch d := Discovery(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DiscoverAuto, nil
	case DiscoverReport, DiscoverWatch, DiscoverMtime, DiscoverAuto:
		return d, nil
	default:
		return "", fmt.Errorf("unknown artifact discovery %q (want report, watch, mtime or auto)", s)
	}
}

// errNoArtifact is returned by a discovery step that found nothing.
var errNoArtifact = errors.New("no artifact found")

const saveConfigMarker = "Save config"

// reportedArtifact returns the artifact named by the last "Save config" line
// in the tool output, resolved inside testDir.
func reportedArtifact(out Output, testDir string) (string, error) {
	var reported string
	for _, stream := range []string{out.Stderr, out.Stdout} {
		scanner := bufio.NewScanner(strings.NewReader(stream))
		for scanner.Scan() {
			line := scanner.Text()
			i := strings.Index(line, saveConfigMarker)
			if i < 0 {
				continue
			}
			fields := strings.Fields(line[i+len(saveConfigMarker):])
			if len(fields) > 0 {
				reported = fields[len(fields)-1]
			}
		}
	}
	if reported == "" {
		return "", errNoArtifact
	}
	return filepath.Join(testDir, filepath.Base(reported)), nil
}

// newestArtifact returns the most recently modified *.toml in testDir,
// ignoring fragment files.
func newestArtifact(testDir string) (string, error) {
	entries, err := os.ReadDir(testDir)
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", testDir, err)
	}
	var (
		newest string
		newestT int64
	)
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if t := info.ModTime().UnixNano(); newest == "" || t > newestT {
			newest, newestT = e.Name(), t
		}
	}
	if newest == "" {
		return "", errNoArtifact
	}
	return filepath.Join(testDir, newest), nil
}

func isArtifactName(name string) bool {
	return strings.HasSuffix(name, ".toml") && !strings.HasPrefix(name, "modifs_")
}

// configNameOf returns the artifact's config name: its base name without
// extension.
func configNameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Artifact is the parsed result of one configuration tool invocation.
type Artifact struct {
	Path       string
	ConfigName string
	DomainName string
}

// readArtifact parses the generated configuration and requires domain.name.
func readArtifact(caseName, path string) (Artifact, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is inside the test dir
	if err != nil {
		return Artifact{}, fmt.Errorf("reading artifact for %s: %w", caseName, err)
	}
	var doc struct {
		Domain struct {
			Name string `toml:"name"`
		} `toml:"domain"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Artifact{}, &registry.ConfigurationError{Case: caseName, Key: path, Reason: err.Error()}
	}
	if doc.Domain.Name == "" {
		return Artifact{}, &registry.ConfigurationError{Case: caseName, Key: "domain.name", Reason: "missing in " + path}
	}
	return Artifact{Path: path, ConfigName: configNameOf(path), DomainName: doc.Domain.Name}, nil
}
