package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/constants"
	"github.com/nvandessel/cdnet/internal/seqio"
	"github.com/nvandessel/cdnet/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived runs",
		Long: `List, show, export and delete runs recorded in the run archive.

The archive is chosen by --archive, then archive.path from the config, then
~/.cdnet/runs.db. Run ids may be abbreviated to any unique prefix.

Examples:
  cdnet runs list --limit 5
  cdnet runs show 3f2a
  cdnet runs export 3f2a -o outputs.arrow
  cdnet runs prune --keep 100`,
	}

	cmd.PersistentFlags().String("archive", "", "Run archive (SQLite file)")

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
		newRunsPruneCmd(),
	)

	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			archive, err := openArchiveForRuns(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			runs, err := archive.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs archived.")
				return nil
			}
			for _, r := range runs {
				printRunLine(w, r)
			}
			fmt.Fprintf(w, "\n%d run(s)\n", len(runs))
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withOutputs, _ := cmd.Flags().GetBool("outputs")

			archive, err := openArchiveForRuns(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := context.Background()
			run, err := archive.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			var outputs map[string][]float64
			if withOutputs {
				if outputs, err = archive.LoadOutputs(ctx, run.ID); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				out := map[string]interface{}{"run": run}
				if withOutputs {
					out["outputs"] = outputs
				}
				return json.NewEncoder(w).Encode(out)
			}

			fmt.Fprintf(w, "Run:         %s\n", run.ID)
			if run.Label != "" {
				fmt.Fprintf(w, "Label:       %s\n", run.Label)
			}
			fmt.Fprintf(w, "Created:     %s (%s)\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.CreatedAt))
			fmt.Fprintf(w, "Description: %s\n", run.DescriptionHash)
			fmt.Fprintf(w, "Fs:          %g Hz\n", run.Description.Fs)
			fmt.Fprintf(w, "Method:      %s (%d worker(s))\n", run.Method, run.Workers)
			fmt.Fprintf(w, "Cells:       %s\n", humanize.Comma(int64(run.Cells)))
			fmt.Fprintf(w, "Samples:     %s\n", humanize.Comma(int64(run.Samples)))
			fmt.Fprintf(w, "Duration:    %s\n", run.Duration)
			fmt.Fprintln(w, "Frontiers:")
			for i, f := range run.Frontiers {
				fmt.Fprintf(w, "  %d: %s\n", i, strings.Join(f, ", "))
			}
			if withOutputs {
				fmt.Fprintln(w, "Outputs:")
				for _, name := range seqio.Names(outputs) {
					fmt.Fprintf(w, "  %s: %v\n", name, outputs[name])
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("outputs", false, "Include every cell's output sequence")

	return cmd
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write an archived run's outputs to a sequence file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			if _, err := seqio.DetectFormat(output); err != nil {
				return err
			}

			archive, err := openArchiveForRuns(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := context.Background()
			run, err := archive.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			outputs, err := archive.LoadOutputs(ctx, run.ID)
			if err != nil {
				return err
			}
			if err := seqio.WriteFile(output, outputs); err != nil {
				return fmt.Errorf("write outputs: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "exported",
					"id":     run.ID,
					"path":   output,
					"cells":  len(outputs),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d output(s) of run %s to %s\n", len(outputs), run.ID, output)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (.json, .json.gz, .arrow)")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived run and its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			archive, err := openArchiveForRuns(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := context.Background()
			run, err := archive.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if err := archive.DeleteRun(ctx, run.ID); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "deleted",
					"id":     run.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
			return nil
		},
	}
}

func newRunsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			if keep < 0 {
				return fmt.Errorf("--keep must be non-negative, got %d", keep)
			}

			archive, err := openArchiveForRuns(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			n, err := archive.Prune(context.Background(), keep)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status":  "pruned",
					"deleted": n,
					"kept":    keep,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s), kept the newest %d\n", n, keep)
			return nil
		},
	}

	cmd.Flags().Int("keep", 50, "Number of newest runs to keep")

	return cmd
}

// openArchiveForRuns opens the archive named by --archive, the config, or the
// default location. It does not create a missing archive.
func openArchiveForRuns(cmd *cobra.Command) (*store.Archive, error) {
	path, _ := cmd.Flags().GetString("archive")
	if path == "" {
		settings, err := loadSettings(cmd)
		if err != nil {
			return nil, err
		}
		path = settings.Archive.Path
	}
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, constants.ArchiveFileName)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no run archive at %s (record runs with 'cdnet run --archive %s')", path, path)
	}

	archive, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	return archive, nil
}

func printRunLine(w io.Writer, r store.Run) {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	label := ""
	if r.Label != "" {
		label = " [" + r.Label + "]"
	}
	fmt.Fprintf(w, "%s  %-14s  %-8s  %s cell(s) x %s sample(s)  %s%s\n",
		id, humanize.Time(r.CreatedAt), r.Method,
		humanize.Comma(int64(r.Cells)), humanize.Comma(int64(r.Samples)), r.Duration, label)
}
