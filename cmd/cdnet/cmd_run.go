package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/logging"
	"github.com/nvandessel/cdnet/internal/models"
	"github.com/nvandessel/cdnet/internal/seqio"
	"github.com/nvandessel/cdnet/internal/session"
	"github.com/nvandessel/cdnet/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <description>",
		Short: "Evaluate a network over input sequences",
		Long: `Evaluate every cell of a network description over a set of external
input sequences.

The description is a JSON or YAML file ("-" reads it from stdin). Inputs are
read from a .json, .json.gz or .arrow file mapping each external source name
to its samples; every sequence must have the same length.

Outputs are written to --output when given (format chosen by extension),
otherwise printed to stdout as JSON.

Examples:
  cdnet run net.yaml --inputs spikes.arrow
  cdnet run net.json -i spikes.json -o out.arrow --method trapz --workers 4
  cdnet run net.yaml -i spikes.json --archive runs.db --label baseline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			inputsPath, _ := cmd.Flags().GetString("inputs")
			outputPath, _ := cmd.Flags().GetString("output")
			method, _ := cmd.Flags().GetString("method")
			workers, _ := cmd.Flags().GetInt("workers")
			noCache, _ := cmd.Flags().GetBool("no-cache")
			archivePath, _ := cmd.Flags().GetString("archive")
			label, _ := cmd.Flags().GetString("label")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if noCache {
				settings.Execution.Cache = false
			}
			if archivePath != "" {
				settings.Archive.Path = archivePath
			}

			desc, err := readDescription(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			inputs := map[string][]float64{}
			if inputsPath != "" {
				if inputs, err = seqio.ReadFile(inputsPath); err != nil {
					return fmt.Errorf("read inputs: %w", err)
				}
			}
			if outputPath != "" {
				// Fail on a bad extension before doing any work.
				if _, err := seqio.DetectFormat(outputPath); err != nil {
					return err
				}
			}

			sess, err := openSession(cmd, settings)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			report, err := sess.Execute(ctx, session.Request{
				Description: desc,
				Inputs:      inputs,
				Method:      method,
				Workers:     workers,
				Label:       label,
			})
			if err != nil {
				return err
			}
			res := report.Result

			if outputPath != "" {
				if err := seqio.WriteFile(outputPath, res.Outputs); err != nil {
					return fmt.Errorf("write outputs: %w", err)
				}
			}

			if jsonOut {
				out := map[string]interface{}{
					"run_id":      report.RunID,
					"method":      report.Method,
					"workers":     report.Workers,
					"cells":       len(res.Outputs),
					"samples":     res.Samples,
					"frontiers":   res.Frontiers,
					"duration_ms": res.Duration.Milliseconds(),
					"cache":       report.Cache,
					"archived":    report.Archived != nil,
				}
				if outputPath != "" {
					out["output_path"] = outputPath
				} else {
					out["outputs"] = res.Outputs
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			printRunSummary(cmd.ErrOrStderr(), report, outputPath)
			if outputPath == "" {
				return seqio.Write(cmd.OutOrStdout(), seqio.FormatJSON, res.Outputs)
			}
			return nil
		},
	}

	cmd.Flags().StringP("inputs", "i", "", "Input sequence file (.json, .json.gz, .arrow)")
	cmd.Flags().StringP("output", "o", "", "Write outputs to file (.json, .json.gz, .arrow)")
	cmd.Flags().String("method", "", "Integration method (filtfilt, lfilter, cumtrapz, trapz, simpson, romberg)")
	cmd.Flags().Int("workers", 0, "Cells of one frontier evaluated concurrently (default from config)")
	cmd.Flags().Bool("no-cache", false, "Disable the integral cache")
	cmd.Flags().String("archive", "", "Record the run in this SQLite archive")
	cmd.Flags().String("label", "", "Label stored with the archived run")

	return cmd
}

// readDescription loads a network description from path, or from r when path
// is "-".
func readDescription(r io.Reader, path string) (models.Description, error) {
	if path != "-" {
		return config.LoadDescription(path)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Description{}, fmt.Errorf("read description from stdin: %w", err)
	}
	return config.ParseDescription(data)
}

// openSession creates a session for one command, opening the archive named
// by settings when set.
func openSession(cmd *cobra.Command, settings *config.CdnetConfig) (*session.Session, error) {
	var archive *store.Archive
	if settings.Archive.Path != "" {
		a, err := store.Open(settings.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open run archive: %w", err)
		}
		archive = a
	}

	var trace *logging.TraceLogger
	if dir, err := config.Dir(); err == nil {
		trace = logging.NewTraceLogger(dir, settings.Logging.Level)
	}

	sess, err := session.New(session.Options{
		Settings: settings,
		Logger:   newLogger(cmd, settings),
		Trace:    trace,
		Archive:  archive,
	})
	if err != nil {
		trace.Close()
		if archive != nil {
			archive.Close()
		}
		return nil, err
	}
	return sess, nil
}

func printRunSummary(w io.Writer, report *session.Report, outputPath string) {
	res := report.Result
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	fmt.Fprintf(w, "  Cells:     %s in %d frontier(s)\n", humanize.Comma(int64(len(res.Outputs))), len(res.Frontiers))
	fmt.Fprintf(w, "  Samples:   %s\n", humanize.Comma(int64(res.Samples)))
	fmt.Fprintf(w, "  Method:    %s (%d worker(s))\n", report.Method, report.Workers)
	fmt.Fprintf(w, "  Duration:  %s\n", res.Duration)
	if c := report.Cache; c.Hits+c.Computes > 0 {
		fmt.Fprintf(w, "  Cache:     %s hit(s), %s computed\n", humanize.Comma(c.Hits), humanize.Comma(c.Computes))
	}
	if outputPath != "" {
		fmt.Fprintf(w, "  Outputs:   %s\n", outputPath)
	}
	if report.Archived != nil {
		fmt.Fprintf(w, "  Archived:  %s\n", report.Archived.ID)
	}
}
