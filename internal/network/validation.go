package network

import (
	"fmt"

	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/models"
)

// ValidationError describes a description validation issue.
type ValidationError struct {
	CellID string `json:"cell_id"`
	Field  string `json:"field"`  // "id", "type", "params", "source", "target", "input_type", "fs"
	RefID  string `json:"ref_id"` // The problematic reference or value
	Issue  string `json:"issue"`  // "dangling", "cycle", "self-reference", "duplicate", "unknown-type", "invalid-parameter"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	if e.RefID == "" {
		return fmt.Sprintf("%s: %s in %s", e.Issue, e.CellID, e.Field)
	}
	return fmt.Sprintf("%s: %s in %s references %s", e.Issue, e.CellID, e.Field, e.RefID)
}

// Validate checks a description without running it and reports every issue
// found:
//   - Non-positive sampling rate
//   - Duplicate or empty cell ids
//   - Unknown cell types, missing or non-positive n_spikes, windows under one sample
//   - Connections to unknown targets or with unknown input types
//   - Self-references (a cell feeding itself)
//   - Cycles among cells
//
// Sources that are not cells are external inputs and are never dangling.
func Validate(desc models.Description) []ValidationError {
	var errs []ValidationError

	if !(desc.Fs > 0) {
		errs = append(errs, ValidationError{
			Field: "fs",
			RefID: fmt.Sprint(desc.Fs),
			Issue: "invalid-parameter",
		})
	}

	allIDs := make(map[string]bool, len(desc.Cells))
	order := make([]string, 0, len(desc.Cells))
	for _, spec := range desc.Cells {
		if spec.ID == "" {
			errs = append(errs, ValidationError{Field: "id", Issue: "invalid-parameter"})
			continue
		}
		if allIDs[spec.ID] {
			errs = append(errs, ValidationError{
				CellID: spec.ID,
				Field:  "id",
				RefID:  spec.ID,
				Issue:  "duplicate",
			})
			continue
		}
		allIDs[spec.ID] = true
		order = append(order, spec.ID)
		errs = append(errs, validateCellSpec(spec, desc.Fs)...)
	}

	// Successor graph over cells, for cycle detection
	graph := make(map[string][]string)
	for _, conn := range desc.Connections {
		if !allIDs[conn.Target] {
			errs = append(errs, ValidationError{
				CellID: conn.Source,
				Field:  "target",
				RefID:  conn.Target,
				Issue:  "dangling",
			})
			continue
		}
		if conn.Source == "" {
			errs = append(errs, ValidationError{
				CellID: conn.Target,
				Field:  "source",
				Issue:  "invalid-parameter",
			})
			continue
		}
		if !conn.InputType.Valid() {
			errs = append(errs, ValidationError{
				CellID: conn.Target,
				Field:  "input_type",
				RefID:  string(conn.InputType),
				Issue:  "invalid-parameter",
			})
		}
		if conn.Source == conn.Target {
			errs = append(errs, ValidationError{
				CellID: conn.Target,
				Field:  "source",
				RefID:  conn.Source,
				Issue:  "self-reference",
			})
			continue
		}
		if allIDs[conn.Source] {
			graph[conn.Source] = append(graph[conn.Source], conn.Target)
		}
	}

	for _, cycle := range detectCycles(order, graph) {
		// Report the cycle against its first node and the edge that closes it
		if len(cycle) >= 2 {
			errs = append(errs, ValidationError{
				CellID: cycle[0],
				Field:  "source",
				RefID:  cycle[1],
				Issue:  "cycle",
			})
		}
	}

	return errs
}

// validateCellSpec checks one cell's type and parameters.
func validateCellSpec(spec models.CellSpec, fs float64) []ValidationError {
	var errs []ValidationError
	switch spec.Type {
	case models.CellTypeEI, models.CellTypeSimpleEE, models.CellTypeEE, models.CellTypeCD:
	default:
		return append(errs, ValidationError{
			CellID: spec.ID,
			Field:  "type",
			RefID:  string(spec.Type),
			Issue:  "unknown-type",
		})
	}
	if _, err := models.ParseCellKind(spec.Type, spec.Params); err != nil {
		errs = append(errs, ValidationError{
			CellID: spec.ID,
			Field:  "params",
			RefID:  "n_spikes",
			Issue:  "invalid-parameter",
		})
	}
	if fs > 0 {
		w := integral.Window{DeltaS: spec.Params.DeltaS, Fs: fs}
		if _, err := w.Samples(); err != nil {
			errs = append(errs, ValidationError{
				CellID: spec.ID,
				Field:  "params",
				RefID:  "delta_s",
				Issue:  "invalid-parameter",
			})
		}
	}
	return errs
}

// detectCycles detects cycles in a directed graph using DFS with color marking.
// Nodes are visited in the given order so the report is deterministic.
// Returns a list of cycles found, where each cycle is a list of node IDs.
func detectCycles(nodes []string, graph map[string][]string) [][]string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done)
	color := make(map[string]int)
	parent := make(map[string]string)
	var cycles [][]string

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = 1

		for _, neighbor := range graph[node] {
			switch color[neighbor] {
			case 1:
				// Back edge: walk parents from node back to neighbor
				cycle := []string{neighbor, node}
				for current := node; current != neighbor; {
					p, ok := parent[current]
					if !ok || p == neighbor {
						break
					}
					cycle = append(cycle, p)
					current = p
				}
				cycles = append(cycles, cycle)
			case 0:
				parent[neighbor] = node
				dfs(neighbor)
			}
		}

		color[node] = 2
	}

	for _, node := range nodes {
		if color[node] == 0 {
			dfs(node)
		}
	}

	return cycles
}
