package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/seqio"
	"github.com/nvandessel/cdnet/internal/store"
)

// seedArchive records n runs with ids run-0..run-(n-1), oldest first.
func seedArchive(t *testing.T, path string, n int) {
	t.Helper()
	desc, err := config.ParseDescription([]byte(pairJSON))
	if err != nil {
		t.Fatal(err)
	}
	a, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer a.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		_, err := a.RecordRun(context.Background(), store.Run{
			ID:          "run-" + string(rune('0'+i)),
			Description: desc,
			Method:      "lfilter",
			Workers:     1,
			Cells:       2,
			Samples:     3,
			Frontiers:   [][]string{{"pair"}, {"gate"}},
			Duration:    time.Millisecond,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}, map[string][]float64{
			"pair": {0, 0.5, 0},
			"gate": {0, 0.25, 0},
		})
		if err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}
}

func TestRunsCmd_ListShow(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	archive := filepath.Join(tmpDir, "runs.db")
	seedArchive(t, archive, 3)

	stdout, _, err := execute(t, newRunsCmd(), "runs", "list", "--archive", archive)
	if err != nil {
		t.Fatalf("runs list error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if !strings.HasPrefix(lines[0], "run-2") {
		t.Errorf("first line = %q, want newest run first", lines[0])
	}
	if !strings.Contains(stdout, "3 run(s)") {
		t.Errorf("runs list = %q", stdout)
	}

	stdout, _, err = execute(t, newRunsCmd(), "runs", "list", "--archive", archive, "--limit", "1", "--json")
	if err != nil {
		t.Fatalf("runs list --json error = %v", err)
	}
	if !strings.Contains(stdout, `"count":1`) {
		t.Errorf("runs list --limit 1 = %s", stdout)
	}

	stdout, _, err = execute(t, newRunsCmd(), "runs", "show", "run-1", "--archive", archive, "--outputs")
	if err != nil {
		t.Fatalf("runs show error = %v", err)
	}
	for _, want := range []string{"Run:         run-1", "Method:      lfilter", "1: gate", "gate: [0 0.25 0]"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("runs show missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = execute(t, newRunsCmd(), "runs", "show", "run-0", "--archive", archive, "--outputs", "--json")
	if err != nil {
		t.Fatalf("runs show --json error = %v", err)
	}
	var shown struct {
		Run     store.Run            `json:"run"`
		Outputs map[string][]float64 `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(stdout), &shown); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if shown.Run.ID != "run-0" || len(shown.Outputs["pair"]) != 3 {
		t.Errorf("runs show --json = %+v", shown)
	}
}

func TestRunsCmd_ExportDeletePrune(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	archive := filepath.Join(tmpDir, "runs.db")
	seedArchive(t, archive, 4)

	output := filepath.Join(tmpDir, "export", "run1.json.gz")
	if _, _, err := execute(t, newRunsCmd(), "runs", "export", "run-1", "--archive", archive, "-o", output); err != nil {
		t.Fatalf("runs export error = %v", err)
	}
	exported, err := seqio.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(exported) != 2 || exported["pair"][1] != 0.5 {
		t.Errorf("exported = %v", exported)
	}

	if _, _, err := execute(t, newRunsCmd(), "runs", "delete", "run-0", "--archive", archive); err != nil {
		t.Fatalf("runs delete error = %v", err)
	}
	if _, _, err := execute(t, newRunsCmd(), "runs", "show", "run-0", "--archive", archive); err == nil {
		t.Error("show of a deleted run should fail")
	}

	stdout, _, err := execute(t, newRunsCmd(), "runs", "prune", "--keep", "1", "--archive", archive, "--json")
	if err != nil {
		t.Fatalf("runs prune error = %v", err)
	}
	if !strings.Contains(stdout, `"deleted":2`) {
		t.Errorf("runs prune = %s, want 2 deleted", stdout)
	}
}

func TestRunsCmd_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	archive := filepath.Join(tmpDir, "runs.db")
	seedArchive(t, archive, 2)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing archive", []string{"runs", "list", "--archive", filepath.Join(tmpDir, "none.db")}, "no run archive"},
		{"default archive missing", []string{"runs", "list"}, "no run archive"},
		{"ambiguous prefix", []string{"runs", "show", "run-", "--archive", archive}, "ambiguous"},
		{"unknown id", []string{"runs", "show", "zzz", "--archive", archive}, "not found"},
		{"export without output", []string{"runs", "export", "run-0", "--archive", archive}, "--output is required"},
		{"negative keep", []string{"runs", "prune", "--keep", "-1", "--archive", archive}, "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, newRunsCmd(), tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
