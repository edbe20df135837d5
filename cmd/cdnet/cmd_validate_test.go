package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	valid := writeFile(t, filepath.Join(tmpDir, "net.json"), pairJSON)
	cyclic := writeFile(t, filepath.Join(tmpDir, "cyclic.yaml"), `
fs: 10
cells:
  - {id: a, type: simple_ee, params: {delta_s: 0.3}}
  - {id: b, type: ee, params: {delta_s: 0.3}}
connections:
  - {source: x, target: a, input_type: excitatory}
  - {source: b, target: a, input_type: excitatory}
  - {source: a, target: b, input_type: excitatory}
  - {source: a, target: a, input_type: excitatory}
`)

	t.Run("valid text", func(t *testing.T) {
		stdout, _, err := execute(t, newValidateCmd(), "validate", valid)
		if err != nil {
			t.Fatalf("validate error = %v", err)
		}
		if !strings.Contains(stdout, "Network is valid") {
			t.Errorf("output = %q", stdout)
		}
		if !strings.Contains(stdout, "Frontier 1: [gate]") {
			t.Errorf("output = %q, want frontiers listed", stdout)
		}
	})

	t.Run("valid json", func(t *testing.T) {
		stdout, _, err := execute(t, newValidateCmd(), "validate", valid, "--json")
		if err != nil {
			t.Fatalf("validate --json error = %v", err)
		}
		var out struct {
			Valid     bool       `json:"valid"`
			Externals []string   `json:"externals"`
			Frontiers [][]string `json:"frontiers"`
		}
		if err := json.Unmarshal([]byte(stdout), &out); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if !out.Valid || strings.Join(out.Externals, ",") != "x,y,z" || len(out.Frontiers) != 2 {
			t.Errorf("validate --json = %+v", out)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		stdout, _, err := execute(t, newValidateCmd(), "validate", cyclic)
		if err == nil {
			t.Fatal("validate of an invalid network should fail")
		}
		for _, want := range []string{"[invalid-parameter] b", "[self-reference] a", "[cycle]"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("output missing %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		stdout, _, err := execute(t, newValidateCmd(), "validate", cyclic, "--json")
		if err == nil {
			t.Fatal("validate of an invalid network should fail")
		}
		var out struct {
			Valid      bool `json:"valid"`
			ErrorCount int  `json:"error_count"`
			Errors     []struct {
				CellID string `json:"cell_id"`
				Issue  string `json:"issue"`
			} `json:"errors"`
		}
		if err := json.Unmarshal([]byte(stdout), &out); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if out.Valid || out.ErrorCount != len(out.Errors) || out.ErrorCount < 3 {
			t.Errorf("validate --json = %+v", out)
		}
	})
}
