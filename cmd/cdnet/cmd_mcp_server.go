package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve cdnet tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: cdnet_run, cdnet_validate, cdnet_graph, cdnet_runs.
Resource: cdnet://reference.

File arguments are confined to --root and ~/.cdnet. The integral cache lives
as long as the server, so repeated runs over the same inputs reuse integrals.
Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve root: %w", err)
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "cdnet",
				Version:  version,
				Root:     absRoot,
				Settings: settings,
				Logger:   newLogger(cmd, settings),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "cdnet MCP server %s serving %s\n", version, absRoot)
			return server.Run(context.Background())
		},
	}

	cmd.Flags().String("root", ".", "Working directory for relative tool paths")

	return cmd
}
