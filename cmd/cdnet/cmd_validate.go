package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/network"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <description>",
		Short: "Validate a network description without running it",
		Long: `Validate a network description without running it.

This command checks for:
  - A non-positive sampling rate
  - Duplicate or empty cell ids
  - Unknown cell types, missing n_spikes, windows shorter than one sample
  - Connections to unknown targets or with unknown input types
  - Self-references (a cell feeding itself)
  - Cycles among cells

Every issue is reported at once. The command exits non-zero when any issue
is found.

Examples:
  cdnet validate net.yaml
  cat net.json | cdnet validate - --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			desc, err := readDescription(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			issues := network.Validate(desc)
			var externals []string
			var levels [][]string
			if len(issues) == 0 {
				net, err := network.New(desc)
				if err != nil {
					return fmt.Errorf("building validated network: %w", err)
				}
				if levels, err = net.Levels(); err != nil {
					return fmt.Errorf("scheduling validated network: %w", err)
				}
				externals = net.Externals()
			}

			if err := outputValidationResults(cmd.OutOrStdout(), issues, externals, levels, jsonOut); err != nil {
				return err
			}
			if len(issues) > 0 {
				return fmt.Errorf("validation failed with %d issue(s)", len(issues))
			}
			return nil
		},
	}

	return cmd
}

// outputValidationResults formats and outputs validation results.
func outputValidationResults(w io.Writer, issues []network.ValidationError, externals []string, levels [][]string, jsonOut bool) error {
	valid := len(issues) == 0

	if jsonOut {
		output := map[string]interface{}{
			"valid":       valid,
			"error_count": len(issues),
		}

		if valid {
			output["externals"] = externals
			output["frontiers"] = levels
			output["message"] = "Network is valid"
		} else {
			output["errors"] = issues
			output["message"] = fmt.Sprintf("Found %d validation error(s)", len(issues))
		}

		return json.NewEncoder(w).Encode(output)
	}

	if valid {
		fmt.Fprintln(w, "✓ Network is valid - no issues found.")
		fmt.Fprintf(w, "  External inputs: %d\n", len(externals))
		for i, level := range levels {
			fmt.Fprintf(w, "  Frontier %d: %v\n", i, level)
		}
		return nil
	}

	fmt.Fprintf(w, "✗ Found %d validation error(s):\n\n", len(issues))

	for i, ve := range issues {
		cell := ve.CellID
		if cell == "" {
			cell = "(description)"
		}
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, ve.Issue, cell)
		fmt.Fprintf(w, "   Field: %s\n", ve.Field)
		if ve.RefID != "" {
			fmt.Fprintf(w, "   References: %s\n", ve.RefID)
		}
		fmt.Fprintln(w)
	}

	return nil
}
