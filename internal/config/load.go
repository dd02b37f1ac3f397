package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/zjrosen/ttr/internal/log"
)

// LocalConfigPath is the per-directory settings file, also the location a
// default file is written to on first run.
const LocalConfigPath = ".ttr/config.yaml"

// Load reads settings. Lookup order:
//  1. explicit path (error if unreadable)
//  2. .ttr/config.yaml in the current directory
//  3. ~/.config/ttr/config.yaml
//
// When nothing is found a default file is written to LocalConfigPath. The
// path actually used is returned alongside the settings; it is empty when no
// file could be read or written.
func Load(explicit string) (Config, string, error) {
	v := viper.New()
	setDefaults(v)

	switch {
	case explicit != "":
		v.SetConfigFile(explicit)
	case fileExists(LocalConfigPath):
		v.SetConfigFile(LocalConfigPath)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ttr"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading settings: %w", err)
		}
		if writeErr := WriteDefaultConfig(LocalConfigPath); writeErr == nil {
			v.SetConfigFile(LocalConfigPath)
			_ = v.ReadInConfig()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding settings: %w", err)
	}
	if cfg.Flags == nil {
		cfg.Flags = map[string]bool{}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, "", err
	}

	used := v.ConfigFileUsed()
	log.Debug(log.CatConfig, "settings loaded", "path", used)
	return cfg, used, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("tool.config_executable", d.Tool.ConfigExecutable)
	v.SetDefault("tool.run_executable", d.Tool.RunExecutable)
	v.SetDefault("tool.configurations_dir", d.Tool.ConfigurationsDir)
	v.SetDefault("tool.timeout", d.Tool.Timeout)
	v.SetDefault("tool.artifact_discovery", d.Tool.ArtifactDiscovery)
	v.SetDefault("host.default_compiler", d.Host.DefaultCompiler)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
