package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/logging"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cdnet",
		Short: "Coincidence-detector networks over spike sequences",
		Long: `cdnet evaluates networks of coincidence-detector cells.

Each cell turns its excitatory and inhibitory input sequences into an output
sequence using sliding-window coincidence integrals. Cells are wired into a
directed graph and evaluated in dependency order, frontier by frontier.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.cdnet/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newGraphCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadSettings loads the --config file when given, else the default config.
// Environment overrides apply either way.
func loadSettings(cmd *cobra.Command) (*config.CdnetConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}

// newLogger builds the operational logger on stderr.
func newLogger(cmd *cobra.Command, settings *config.CdnetConfig) *slog.Logger {
	return logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr())
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
