// Package config provides the tool settings types and defaults for ttr.
//
// Settings are separate from the test definition: they describe the local
// environment (which executables to call, where logs and the run ledger go)
// rather than what to test.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/tracing"
)

// Config holds all tool settings.
type Config struct {
	Tool    ToolConfig      `mapstructure:"tool"`
	Host    HostConfig      `mapstructure:"host"`
	Log     LogConfig       `mapstructure:"log"`
	Tracing tracing.Config  `mapstructure:"tracing"`
	Metrics MetricsConfig   `mapstructure:"metrics"`
	Ledger  LedgerConfig    `mapstructure:"ledger"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// ToolConfig describes the external configuration and run tools.
type ToolConfig struct {
	ConfigExecutable string `mapstructure:"config_executable"`
	RunExecutable    string `mapstructure:"run_executable"`
	// ConfigurationsDir prefixes each case's base name in configure commands.
	ConfigurationsDir string `mapstructure:"configurations_dir"`
	// Timeout bounds each tool invocation. Zero waits forever.
	Timeout time.Duration `mapstructure:"timeout"`
	// ArtifactDiscovery is one of report, watch, mtime, auto.
	ArtifactDiscovery string `mapstructure:"artifact_discovery"`
}

// HostConfig holds host specific defaults.
type HostConfig struct {
	DefaultCompiler string `mapstructure:"default_compiler"` // intel (default)
}

// LogConfig controls log output beyond stderr.
type LogConfig struct {
	File      string `mapstructure:"file"`        // empty disables the log file
	MaxSizeMB int    `mapstructure:"max_size_mb"` // rotate after this size
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LedgerConfig controls the run ledger.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigurationsDir is the deode package relative location of the
// base case configurations.
const DefaultConfigurationsDir = "?deode/data/config_files/configurations"

// DefaultLedgerPath returns ~/.ttr/ledger.db, or a relative .ttr/ledger.db when
// the home directory is unknown.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ttr", "ledger.db")
	}
	return filepath.Join(home, ".ttr", "ledger.db")
}

// DefaultTracesFilePath returns ~/.config/ttr/traces/traces.jsonl or empty
// string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ttr", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Tool: ToolConfig{
			ConfigExecutable:  "deode",
			RunExecutable:     "deode",
			ConfigurationsDir: DefaultConfigurationsDir,
			Timeout:           0,
			ArtifactDiscovery: "auto",
		},
		Host: HostConfig{
			DefaultCompiler: "intel",
		},
		Log: LogConfig{
			MaxSizeMB: 10,
		},
		Tracing: tc,
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    DefaultLedgerPath(),
		},
		Flags: map[string]bool{},
	}
}

// Validate checks settings for errors. Empty values fall back to defaults.
func Validate(c Config) error {
	if c.Tool.Timeout < 0 {
		return fmt.Errorf("tool.timeout must not be negative, got %s", c.Tool.Timeout)
	}
	switch c.Tool.ArtifactDiscovery {
	case "", "report", "watch", "mtime", "auto":
	default:
		return fmt.Errorf("tool.artifact_discovery must be \"report\", \"watch\", \"mtime\", or \"auto\", got %q", c.Tool.ArtifactDiscovery)
	}
	switch c.Host.DefaultCompiler {
	case "", "intel", "gnu":
	default:
		return fmt.Errorf("host.default_compiler must be \"intel\" or \"gnu\", got %q", c.Host.DefaultCompiler)
	}
	if c.Log.MaxSizeMB < 0 {
		return fmt.Errorf("log.max_size_mb must not be negative, got %d", c.Log.MaxSizeMB)
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required when the ledger is enabled")
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default settings as a YAML string with
// comments.
func DefaultConfigTemplate() string {
	return `# ttr settings

# External tools
tool:
  config_executable: deode   # generates a case configuration
  run_executable: deode      # starts suites and runs tasks
  # Base configurations; the leading ? resolves inside the deode package
  configurations_dir: "?deode/data/config_files/configurations"
  timeout: 0s                # per invocation deadline, 0s waits forever
  # How the generated config is found: report, watch, mtime or auto
  artifact_discovery: auto

host:
  default_compiler: intel    # compiler assumed for archives without -gnu-

# Logs always go to stderr; set file to also keep a rotating log
log:
  # file: ~/.ttr/ttr.log
  max_size_mb: 10

# Prometheus textfile written after each run
# metrics:
#   textfile: /var/lib/node_exporter/ttr.prom

# Record every configure and run invocation (see 'ttr history')
ledger:
  enabled: true
  # path: ~/.ttr/ledger.db

# Tracing of pipeline phases and tool calls
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/ttr/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags (see 'ttr flag')
# flags:
#   fragment-diff: true     # log a diff when a fragment changes
#   artifact-watch: true    # use file events in auto discovery
#   case-dump: true         # dump case records when listing
`
}

// WriteDefaultConfig creates a settings file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default settings", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create settings directory", err, "dir", dir)
		return fmt.Errorf("creating settings directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write settings file", err, "path", configPath)
		return fmt.Errorf("writing settings file: %w", err)
	}

	log.Info(log.CatConfig, "Created default settings", "path", configPath)
	return nil
}
