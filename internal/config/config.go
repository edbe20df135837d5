// Package config provides unified configuration loading for cdnet.
// It supports loading from YAML files and environment variables, and
// loads network descriptions from JSON or YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cdnet/internal/constants"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/logging"
)

// CdnetConfig contains all cdnet configuration settings.
type CdnetConfig struct {
	// Integration selects how coincidence integrals are computed.
	Integration IntegrationConfig `json:"integration" yaml:"integration"`

	// Execution contains scheduler and cache settings.
	Execution ExecutionConfig `json:"execution" yaml:"execution"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Archive configures the run archive.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// IntegrationConfig configures the coincidence integral.
type IntegrationConfig struct {
	// Method is one of filtfilt, lfilter, cumtrapz, trapz, simpson, romberg.
	Method string `json:"method" yaml:"method"`
}

// ExecutionConfig configures network runs.
type ExecutionConfig struct {
	// Workers bounds how many cells of one frontier run concurrently.
	Workers int `json:"workers" yaml:"workers"`

	// Cache enables the integral cache for ee and cd cells.
	Cache bool `json:"cache" yaml:"cache"`

	// MaxSubsetTerms bounds the subset enumeration of one ee or cd cell.
	MaxSubsetTerms int `json:"max_subset_terms" yaml:"max_subset_terms"`
}

// LoggingConfig configures cdnet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run tracing to ~/.cdnet/trace.jsonl.
	// "trace" additionally logs every cell evaluation to stderr.
	Level string `json:"level" yaml:"level"`
}

// ArchiveConfig configures where runs are recorded.
type ArchiveConfig struct {
	// Path is the SQLite archive file. Empty disables archiving unless a
	// command asks for it. Supports ${VAR} and a leading ~.
	Path string `json:"path" yaml:"path"`
}

// Default returns a CdnetConfig with sensible defaults.
func Default() *CdnetConfig {
	return &CdnetConfig{
		Integration: IntegrationConfig{
			Method: constants.DefaultMethod,
		},
		Execution: ExecutionConfig{
			Workers:        constants.DefaultWorkers,
			Cache:          true,
			MaxSubsetTerms: constants.DefaultMaxSubsetTerms,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.cdnet.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.ConfigDirName), nil
}

// Path returns ~/.cdnet/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.cdnet/config.yaml -> environment variables
func Load() (*CdnetConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	ApplyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CdnetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Archive.Path = expandPath(config.Archive.Path)

	return config, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *CdnetConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *CdnetConfig) Validate() error {
	if _, err := integral.ParseMethod(c.Integration.Method); err != nil {
		return fmt.Errorf("invalid integration method: %w", err)
	}

	if c.Execution.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Execution.Workers)
	}

	if c.Execution.MaxSubsetTerms < 0 {
		return fmt.Errorf("max_subset_terms must be non-negative, got %d", c.Execution.MaxSubsetTerms)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Method returns the parsed integration method.
func (c *CdnetConfig) Method() (integral.Method, error) {
	return integral.ParseMethod(c.Integration.Method)
}

// TraceEnabled reports whether the configured level writes run traces.
func (c *CdnetConfig) TraceEnabled() bool {
	return logging.ParseLevel(c.Logging.Level) < logging.ParseLevel("info")
}

// ApplyEnvOverrides applies CDNET_* environment variable overrides to config.
func ApplyEnvOverrides(config *CdnetConfig) {
	if v := os.Getenv("CDNET_METHOD"); v != "" {
		config.Integration.Method = v
	}

	if v := os.Getenv("CDNET_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Execution.Workers = n
		}
	}

	if v := os.Getenv("CDNET_CACHE"); v != "" {
		config.Execution.Cache = v == "true" || v == "1"
	}

	if v := os.Getenv("CDNET_MAX_SUBSET_TERMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Execution.MaxSubsetTerms = n
		}
	}

	if v := os.Getenv("CDNET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CDNET_ARCHIVE"); v != "" {
		config.Archive.Path = expandPath(v)
	}
}

// expandPath expands ${VAR} patterns and a leading ~ in a path.
func expandPath(s string) string {
	if strings.Contains(s, "${") {
		s = os.Expand(s, os.Getenv)
	}
	if s == "~" || strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, strings.TrimPrefix(s, "~"))
		}
	}
	return s
}
