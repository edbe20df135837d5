package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/models"
	"github.com/nvandessel/cdnet/internal/network"
	"github.com/nvandessel/cdnet/internal/ratelimit"
	"github.com/nvandessel/cdnet/internal/seqio"
	"github.com/nvandessel/cdnet/internal/session"
	"github.com/nvandessel/cdnet/internal/store"
	"github.com/nvandessel/cdnet/internal/visualization"
)

// defaultRunsLimit caps cdnet_runs listings when no limit is given.
const defaultRunsLimit = 20

// registerTools registers all cdnet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cdnet_run",
		Description: "Run a coincidence-detector network over input spike sequences and return every cell's output",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cdnet_validate",
		Description: "Validate a network description without running it (duplicate ids, unknown types, bad parameters, dangling targets, self-references, cycles)",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cdnet_graph",
		Description: "Render a network description in DOT (Graphviz) or JSON format for visualization",
	}, s.handleGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cdnet_runs",
		Description: "List archived runs, or show one run and optionally its outputs",
	}, s.handleRuns)
}

// registerResources registers MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         "cdnet://reference",
		Name:        "cdnet-reference",
		Description: "Cell types, input types and integration methods accepted in network descriptions.",
		MIMEType:    "text/markdown",
	}, s.handleReferenceResource)
}

// handleReferenceResource describes the description vocabulary.
func (s *Server) handleReferenceResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# cdnet reference\n\n")
	sb.WriteString("## Cell types\n\n")
	sb.WriteString("- `ei`: one excitatory input gated by every inhibitory input\n")
	sb.WriteString("- `simple_ee`: all excitatory inputs coincide\n")
	sb.WriteString("- `ee`: exactly `n_spikes` or more excitatory inputs coincide\n")
	sb.WriteString("- `cd`: excitatory coincidences exceed inhibitory ones by `n_spikes`\n\n")
	sb.WriteString("Every cell needs `params.delta_s`, the window in seconds. `ee` and `cd` also need `params.n_spikes`.\n\n")
	sb.WriteString("## Input types\n\n- `excitatory`\n- `inhibitory`\n\n")
	sb.WriteString("## Integration methods\n\n")
	current, _ := s.session.Settings().Method()
	for _, m := range integral.Methods {
		sb.WriteString(fmt.Sprintf("- `%s`", m))
		if m == current {
			sb.WriteString(" (configured)")
		}
		sb.WriteString("\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      "cdnet://reference",
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleRun implements the cdnet_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cdnet_run", start, retErr, sanitizeToolParams(map[string]interface{}{
			"description":      args.Description,
			"description_path": args.DescriptionPath,
			"inputs":           len(args.Inputs),
			"inputs_path":      args.InputsPath,
			"output_path":      args.OutputPath,
			"method":           args.Method,
			"workers":          args.Workers,
			"label":            args.Label,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cdnet_run"); err != nil {
		return nil, RunOutput{}, err
	}

	desc, err := s.loadDescription(args.Description, args.DescriptionPath)
	if err != nil {
		return nil, RunOutput{}, err
	}
	inputs, err := s.loadInputs(args.Inputs, args.InputsPath)
	if err != nil {
		return nil, RunOutput{}, err
	}

	// Resolve the output path before running so a bad path costs nothing.
	var outputPath string
	if args.OutputPath != "" {
		if outputPath, err = s.sandbox.Resolve(args.OutputPath); err != nil {
			return nil, RunOutput{}, fmt.Errorf("output_path: %w", err)
		}
		if _, err := seqio.DetectFormat(outputPath); err != nil {
			return nil, RunOutput{}, fmt.Errorf("output_path: %w", err)
		}
	}

	report, err := s.session.Execute(ctx, session.Request{
		Description: desc,
		Inputs:      inputs,
		Method:      args.Method,
		Workers:     args.Workers,
		Label:       args.Label,
	})
	if err != nil {
		return nil, RunOutput{}, err
	}
	res := report.Result

	out := RunOutput{
		RunID:      report.RunID,
		Method:     string(report.Method),
		Workers:    report.Workers,
		Samples:    res.Samples,
		Order:      res.Order,
		Frontiers:  res.Frontiers,
		DurationMs: res.Duration.Milliseconds(),
		Cache: CacheStatsOutput{
			Enabled:  s.session.Cache() != nil,
			Entries:  report.Cache.Entries,
			Hits:     report.Cache.Hits,
			Computes: report.Cache.Computes,
		},
		Archived: report.Archived != nil,
	}

	if outputPath != "" {
		if err := seqio.WriteFile(outputPath, res.Outputs); err != nil {
			return nil, RunOutput{}, fmt.Errorf("writing outputs: %w", err)
		}
		out.OutputPath = args.OutputPath
	} else {
		out.Outputs = res.Outputs
	}

	out.Message = fmt.Sprintf("Evaluated %d cell(s) over %d sample(s) in %d frontier(s)",
		len(res.Order), res.Samples, len(res.Frontiers))
	return nil, out, nil
}

// handleValidate implements the cdnet_validate tool.
func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cdnet_validate", start, retErr, sanitizeToolParams(map[string]interface{}{
			"description":      args.Description,
			"description_path": args.DescriptionPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cdnet_validate"); err != nil {
		return nil, ValidateOutput{}, err
	}

	desc, err := s.loadDescription(args.Description, args.DescriptionPath)
	if err != nil {
		return nil, ValidateOutput{}, err
	}

	issues := network.Validate(desc)
	if len(issues) > 0 {
		return nil, ValidateOutput{
			Valid:      false,
			ErrorCount: len(issues),
			Errors:     issues,
			Message:    summarizeIssues(issues),
		}, nil
	}

	net, err := network.New(desc)
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("building validated network: %w", err)
	}
	levels, err := net.Levels()
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("scheduling validated network: %w", err)
	}

	return nil, ValidateOutput{
		Valid:     true,
		Externals: net.Externals(),
		Frontiers: levels,
		Message: fmt.Sprintf("Network is valid - %d cell(s), %d external input(s), %d frontier(s)",
			net.Len(), len(net.Externals()), len(levels)),
	}, nil
}

// summarizeIssues counts issues by kind, in a fixed order.
func summarizeIssues(issues []network.ValidationError) string {
	counts := make(map[string]int)
	for _, ve := range issues {
		counts[ve.Issue]++
	}

	labels := []struct{ issue, label string }{
		{"dangling", "dangling reference(s)"},
		{"cycle", "cycle(s)"},
		{"self-reference", "self-reference(s)"},
		{"duplicate", "duplicate id(s)"},
		{"unknown-type", "unknown cell type(s)"},
		{"invalid-parameter", "invalid parameter(s)"},
	}
	var parts []string
	for _, l := range labels {
		if n := counts[l.issue]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, l.label))
		}
	}
	return fmt.Sprintf("Found %d issue(s): %s", len(issues), strings.Join(parts, ", "))
}

// handleGraph implements the cdnet_graph tool.
func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cdnet_graph", start, retErr, sanitizeToolParams(map[string]interface{}{
			"description":      args.Description,
			"description_path": args.DescriptionPath,
			"format":           args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cdnet_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	format := visualization.FormatJSON
	if args.Format != "" {
		f, err := visualization.ParseFormat(args.Format)
		if err != nil {
			return nil, GraphOutput{}, err
		}
		format = f
	}

	desc, err := s.loadDescription(args.Description, args.DescriptionPath)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	net, err := network.New(desc)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	out := GraphOutput{
		Format:    string(format),
		NodeCount: net.Len() + len(net.Externals()),
		EdgeCount: len(net.Connections()),
	}
	switch format {
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(net)
	default:
		out.Graph = visualization.RenderJSON(net)
	}
	return nil, out, nil
}

// handleRuns implements the cdnet_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("cdnet_runs", start, retErr, sanitizeToolParams(map[string]interface{}{
			"id":              args.ID,
			"limit":           args.Limit,
			"include_outputs": args.IncludeOutputs,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "cdnet_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	archive := s.session.Archive()
	if archive == nil {
		return nil, RunsOutput{}, fmt.Errorf("run archive is not configured (set archive.path or CDNET_ARCHIVE)")
	}

	if args.ID != "" {
		run, err := archive.GetRun(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		out := RunsOutput{
			Runs:    []RunSummary{summarizeRun(run)},
			Count:   1,
			Message: fmt.Sprintf("Run %s: %d cell(s), %d sample(s)", run.ID, run.Cells, run.Samples),
		}
		if args.IncludeOutputs {
			if out.Outputs, err = archive.LoadOutputs(ctx, run.ID); err != nil {
				return nil, RunsOutput{}, err
			}
		}
		return nil, out, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := archive.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, err
	}
	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, summarizeRun(r))
	}
	return nil, RunsOutput{
		Runs:    summaries,
		Count:   len(summaries),
		Message: fmt.Sprintf("%d archived run(s)", len(summaries)),
	}, nil
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		ID:              r.ID,
		Label:           r.Label,
		DescriptionHash: r.DescriptionHash,
		Method:          r.Method,
		Workers:         r.Workers,
		Cells:           r.Cells,
		Samples:         r.Samples,
		Frontiers:       r.Frontiers,
		DurationMs:      r.Duration.Milliseconds(),
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// loadDescription takes exactly one of an inline description or a path.
func (s *Server) loadDescription(inline, path string) (models.Description, error) {
	switch {
	case inline != "" && path != "":
		return models.Description{}, fmt.Errorf("set description or description_path, not both")
	case inline != "":
		return config.ParseDescription([]byte(inline))
	case path != "":
		resolved, err := s.sandbox.Resolve(path)
		if err != nil {
			return models.Description{}, fmt.Errorf("description_path: %w", err)
		}
		return config.LoadDescription(resolved)
	default:
		return models.Description{}, fmt.Errorf("description or description_path is required")
	}
}

// loadInputs takes at most one of inline inputs or a path. A network with
// no external inputs needs neither.
func (s *Server) loadInputs(inline map[string][]float64, path string) (map[string][]float64, error) {
	switch {
	case len(inline) > 0 && path != "":
		return nil, fmt.Errorf("set inputs or inputs_path, not both")
	case path != "":
		resolved, err := s.sandbox.Resolve(path)
		if err != nil {
			return nil, fmt.Errorf("inputs_path: %w", err)
		}
		return seqio.ReadFile(resolved)
	default:
		return inline, nil
	}
}
