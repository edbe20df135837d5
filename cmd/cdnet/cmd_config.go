package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/integral"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cdnet configuration",
		Long: `View and modify cdnet configuration settings.

Configuration is stored in ~/.cdnet/config.yaml. CDNET_METHOD, CDNET_WORKERS,
CDNET_CACHE, CDNET_MAX_SUBSET_TERMS, CDNET_LOG_LEVEL and CDNET_ARCHIVE
override the file when set.

Examples:
  cdnet config list                            # Show all settings
  cdnet config get integration.method          # Get a specific setting
  cdnet config set integration.method trapz    # Set a setting
  cdnet config set archive.path ~/.cdnet/runs.db`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(cfg)
			}

			fmt.Fprintln(w, "Configuration (~/.cdnet/config.yaml):")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Integration:")
			fmt.Fprintf(w, "  integration.method:          %s\n", cfg.Integration.Method)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Execution:")
			fmt.Fprintf(w, "  execution.workers:           %d\n", cfg.Execution.Workers)
			fmt.Fprintf(w, "  execution.cache:             %v\n", cfg.Execution.Cache)
			fmt.Fprintf(w, "  execution.max_subset_terms:  %d\n", cfg.Execution.MaxSubsetTerms)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Logging:")
			fmt.Fprintf(w, "  logging.level:               %s\n", valueOrDefault(cfg.Logging.Level, "info"))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Archive:")
			fmt.Fprintf(w, "  archive.path:                %s\n", valueOrDefault(cfg.Archive.Path, "(not set)"))

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			path, err := configFilePath(cmd)
			if err != nil {
				return err
			}

			// Environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else if !errors.Is(statErr, os.ErrNotExist) {
				return fmt.Errorf("failed to load config: %w", statErr)
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configFilePath returns the --config path, or ~/.cdnet/config.yaml.
func configFilePath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.Path()
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.CdnetConfig, key string) (interface{}, bool) {
	switch key {
	case "integration.method":
		return cfg.Integration.Method, true
	case "execution.workers":
		return cfg.Execution.Workers, true
	case "execution.cache":
		return cfg.Execution.Cache, true
	case "execution.max_subset_terms":
		return cfg.Execution.MaxSubsetTerms, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "archive.path":
		return cfg.Archive.Path, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.CdnetConfig, key, value string) error {
	switch key {
	case "integration.method":
		m, err := integral.ParseMethod(value)
		if err != nil {
			return err
		}
		cfg.Integration.Method = string(m)
	case "execution.workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid workers: %s (must be a positive integer)", value)
		}
		cfg.Execution.Workers = n
	case "execution.cache":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid cache setting: %s (must be true or false)", value)
		}
		cfg.Execution.Cache = b
	case "execution.max_subset_terms":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid max_subset_terms: %s (must be a positive integer)", value)
		}
		cfg.Execution.MaxSubsetTerms = n
	case "logging.level":
		cfg.Logging.Level = value
	case "archive.path":
		cfg.Archive.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
