package mcp

import "github.com/nvandessel/cdnet/internal/network"

// RunInput defines the input for the cdnet_run tool.
type RunInput struct {
	Description     string               `json:"description,omitempty" jsonschema:"Inline network description as JSON or YAML"`
	DescriptionPath string               `json:"description_path,omitempty" jsonschema:"Path to a .json, .yaml or .yml network description"`
	Inputs          map[string][]float64 `json:"inputs,omitempty" jsonschema:"Inline input sequences keyed by external source name"`
	InputsPath      string               `json:"inputs_path,omitempty" jsonschema:"Path to a .json, .json.gz or .arrow file of input sequences"`
	OutputPath      string               `json:"output_path,omitempty" jsonschema:"Write outputs to this .json, .json.gz or .arrow file instead of returning them"`
	Method          string               `json:"method,omitempty" jsonschema:"Integration method: filtfilt, lfilter, cumtrapz, trapz, simpson or romberg (default from config)"`
	Workers         int                  `json:"workers,omitempty" jsonschema:"Cells evaluated concurrently per frontier (default from config)"`
	Label           string               `json:"label,omitempty" jsonschema:"Label stored with the archived run"`
}

// RunOutput defines the output for the cdnet_run tool.
type RunOutput struct {
	RunID      string               `json:"run_id" jsonschema:"Identifier of this run"`
	Method     string               `json:"method" jsonschema:"Integration method used"`
	Workers    int                  `json:"workers" jsonschema:"Worker limit used"`
	Samples    int                  `json:"samples" jsonschema:"Length of every input and output sequence"`
	Order      []string             `json:"order" jsonschema:"Cell ids in evaluation order"`
	Frontiers  [][]string           `json:"frontiers" jsonschema:"Cell ids grouped by scheduling step"`
	Outputs    map[string][]float64 `json:"outputs,omitempty" jsonschema:"Output sequence of every cell"`
	OutputPath string               `json:"output_path,omitempty" jsonschema:"File the outputs were written to"`
	DurationMs int64                `json:"duration_ms" jsonschema:"Run time in milliseconds"`
	Cache      CacheStatsOutput     `json:"cache" jsonschema:"Integral cache statistics for the server lifetime"`
	Archived   bool                 `json:"archived" jsonschema:"Whether the run was recorded in the archive"`
	Message    string               `json:"message" jsonschema:"Human-readable summary"`
}

// CacheStatsOutput reports integral cache effectiveness.
type CacheStatsOutput struct {
	Enabled  bool  `json:"enabled"`
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Computes int64 `json:"computes"`
}

// ValidateInput defines the input for the cdnet_validate tool.
type ValidateInput struct {
	Description     string `json:"description,omitempty" jsonschema:"Inline network description as JSON or YAML"`
	DescriptionPath string `json:"description_path,omitempty" jsonschema:"Path to a .json, .yaml or .yml network description"`
}

// ValidateOutput defines the output for the cdnet_validate tool.
type ValidateOutput struct {
	Valid      bool                      `json:"valid" jsonschema:"Whether the description has no issues"`
	ErrorCount int                       `json:"error_count" jsonschema:"Number of issues found"`
	Errors     []network.ValidationError `json:"errors,omitempty" jsonschema:"Every issue found"`
	Externals  []string                  `json:"externals,omitempty" jsonschema:"External inputs a run must supply"`
	Frontiers  [][]string                `json:"frontiers,omitempty" jsonschema:"Cell ids grouped by scheduling step"`
	Message    string                    `json:"message" jsonschema:"Human-readable summary"`
}

// GraphInput defines the input for the cdnet_graph tool.
type GraphInput struct {
	Description     string `json:"description,omitempty" jsonschema:"Inline network description as JSON or YAML"`
	DescriptionPath string `json:"description_path,omitempty" jsonschema:"Path to a .json, .yaml or .yml network description"`
	Format          string `json:"format,omitempty" jsonschema:"Output format: dot or json (default json)"`
}

// GraphOutput defines the output for the cdnet_graph tool.
type GraphOutput struct {
	Format    string      `json:"format" jsonschema:"Format of graph"`
	Graph     interface{} `json:"graph" jsonschema:"DOT source or JSON graph"`
	NodeCount int         `json:"node_count" jsonschema:"Cells plus external inputs"`
	EdgeCount int         `json:"edge_count" jsonschema:"Connections"`
}

// RunsInput defines the input for the cdnet_runs tool.
type RunsInput struct {
	ID             string `json:"id,omitempty" jsonschema:"Run id or unique id prefix to show; empty lists recent runs"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum runs to list (default 20)"`
	IncludeOutputs bool   `json:"include_outputs,omitempty" jsonschema:"Include output sequences when showing one run"`
}

// RunsOutput defines the output for the cdnet_runs tool.
type RunsOutput struct {
	Runs    []RunSummary         `json:"runs" jsonschema:"Archived runs, newest first"`
	Outputs map[string][]float64 `json:"outputs,omitempty" jsonschema:"Output sequences of the selected run"`
	Count   int                  `json:"count" jsonschema:"Number of runs returned"`
	Message string               `json:"message" jsonschema:"Human-readable summary"`
}

// RunSummary is the list view of an archived run.
type RunSummary struct {
	ID              string     `json:"id"`
	Label           string     `json:"label,omitempty"`
	DescriptionHash string     `json:"description_hash"`
	Method          string     `json:"method"`
	Workers         int        `json:"workers"`
	Cells           int        `json:"cells"`
	Samples         int        `json:"samples"`
	Frontiers       [][]string `json:"frontiers"`
	DurationMs      int64      `json:"duration_ms"`
	CreatedAt       string     `json:"created_at"`
}
