package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/network"
	"github.com/nvandessel/cdnet/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <description>",
		Short: "Visualize a network",
		Long: `Output a network description in DOT (Graphviz) or JSON format.

DOT output groups cells into ranks by frontier when the network is acyclic.

Examples:
  cdnet graph net.yaml | dot -Tsvg > net.svg
  cdnet graph net.json --format json -o net.graph.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			desc, err := readDescription(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			net, err := network.New(desc)
			if err != nil {
				return fmt.Errorf("build network: %w", err)
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(w, visualization.RenderDOT(net))

			case visualization.FormatJSON:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(visualization.RenderJSON(net)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			}

			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Write graph to file instead of stdout")

	return cmd
}
