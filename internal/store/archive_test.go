package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/cdnet/internal/models"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testDescription() models.Description {
	n := 1
	return models.Description{
		Fs: 10,
		Cells: []models.CellSpec{
			{ID: "A", Type: models.CellTypeSimpleEE, Params: models.CellParams{DeltaS: 0.3}},
			{ID: "B", Type: models.CellTypeEE, Params: models.CellParams{DeltaS: 0.3, NSpikes: &n}},
		},
		Connections: []models.ConnectionSpec{
			{Source: "x", Target: "A", InputType: models.InputExcitatory},
			{Source: "A", Target: "B", InputType: models.InputExcitatory},
		},
	}
}

func testRun(createdAt time.Time) (Run, map[string][]float64) {
	run := Run{
		Description: testDescription(),
		Method:      "lfilter",
		Workers:     2,
		Cells:       2,
		Samples:     4,
		Frontiers:   [][]string{{"A"}, {"B"}},
		Duration:    1500 * time.Microsecond,
		Label:       "smoke",
		CreatedAt:   createdAt,
	}
	outputs := map[string][]float64{
		"A": {1, 0, 0.5, 1e-12},
		"B": {0.25, 0, 0, 0.75},
	}
	return run, outputs
}

func TestRecordAndGetRun(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	run, outputs := testRun(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	stored, err := a.RecordRun(ctx, run, outputs)
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if stored.ID == "" {
		t.Fatal("RecordRun() should assign an id")
	}
	if !strings.HasPrefix(stored.DescriptionHash, "sha256:") {
		t.Errorf("DescriptionHash = %q, want sha256 prefix", stored.DescriptionHash)
	}

	got, err := a.GetRun(ctx, stored.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Method != "lfilter" || got.Workers != 2 || got.Samples != 4 || got.Label != "smoke" {
		t.Errorf("GetRun() = %+v, fields lost", got)
	}
	if got.Duration != run.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, run.Duration)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if !reflect.DeepEqual(got.Frontiers, run.Frontiers) {
		t.Errorf("Frontiers = %v, want %v", got.Frontiers, run.Frontiers)
	}
	if !reflect.DeepEqual(got.Description, run.Description) {
		t.Errorf("Description = %+v, want %+v", got.Description, run.Description)
	}

	loaded, err := a.LoadOutputs(ctx, stored.ID)
	if err != nil {
		t.Fatalf("LoadOutputs() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, outputs) {
		t.Errorf("LoadOutputs() = %v, want %v", loaded, outputs)
	}
}

func TestGetRun_Prefix(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	run, outputs := testRun(time.Now())
	run.ID = "abc-123"
	if _, err := a.RecordRun(ctx, run, outputs); err != nil {
		t.Fatal(err)
	}
	run.ID = "abd-456"
	if _, err := a.RecordRun(ctx, run, outputs); err != nil {
		t.Fatal(err)
	}

	got, err := a.GetRun(ctx, "abc")
	if err != nil {
		t.Fatalf("GetRun(prefix) error = %v", err)
	}
	if got.ID != "abc-123" {
		t.Errorf("GetRun(abc).ID = %q, want abc-123", got.ID)
	}

	if _, err := a.GetRun(ctx, "ab"); !errors.Is(err, ErrAmbiguousRunID) {
		t.Errorf("GetRun(ab) error = %v, want ErrAmbiguousRunID", err)
	}
	if _, err := a.GetRun(ctx, "zzz"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(zzz) error = %v, want ErrRunNotFound", err)
	}
	if _, err := a.GetRun(ctx, "a%"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(a%%) error = %v, want ErrRunNotFound (wildcards are literal)", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{time.Millisecond, 100 * time.Millisecond, 120 * time.Millisecond} {
		run, outputs := testRun(base.Add(offset))
		run.ID = string(rune('a' + i))
		if _, err := a.RecordRun(ctx, run, outputs); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := a.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "b", "a"}) {
		t.Errorf("ListRuns() ids = %v, want [c b a]", ids)
	}
	if len(runs[0].Frontiers) != 2 {
		t.Errorf("ListRuns() frontiers = %v, want 2 frontiers", runs[0].Frontiers)
	}

	limited, err := a.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListRuns(2) returned %d runs", len(limited))
	}
}

func TestDeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		run, outputs := testRun(base.Add(time.Duration(i) * time.Hour))
		run.ID = string(rune('a' + i))
		if _, err := a.RecordRun(ctx, run, outputs); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.DeleteRun(ctx, "a"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if _, err := a.LoadOutputs(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LoadOutputs after delete error = %v, want ErrRunNotFound", err)
	}

	n, err := a.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}
	runs, err := a.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "d" {
		t.Errorf("after Prune(1) runs = %v, want only d", runs)
	}

	var outputRows int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outputs`).Scan(&outputRows); err != nil {
		t.Fatal(err)
	}
	if outputRows != 2 {
		t.Errorf("outputs rows = %d, want 2 (cascade from deleted runs)", outputRows)
	}
}

func TestRecordRun_Errors(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	run, outputs := testRun(time.Now())
	run.Frontiers = [][]string{{"A"}, {"missing"}}
	if _, err := a.RecordRun(ctx, run, outputs); err == nil {
		t.Error("RecordRun() with a frontier cell lacking output should fail")
	}

	run, outputs = testRun(time.Now())
	run.Frontiers = [][]string{{"A"}}
	if _, err := a.RecordRun(ctx, run, outputs); err == nil {
		t.Error("RecordRun() with an output outside every frontier should fail")
	}

	runs, err := a.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("failed records left %d runs behind", len(runs))
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "runs.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	run, outputs := testRun(time.Now())
	stored, err := a.RecordRun(ctx, run, outputs)
	if err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()
	if _, err := b.GetRun(ctx, stored.ID); err != nil {
		t.Errorf("GetRun after reopen error = %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	a, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	defer a.Close()

	run, outputs := testRun(time.Now())
	if _, err := a.RecordRun(context.Background(), run, outputs); err != nil {
		t.Errorf("RecordRun() in memory error = %v", err)
	}
}

func TestHashDescription(t *testing.T) {
	h1, err := HashDescription(testDescription())
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := HashDescription(testDescription())
	if h1 != h2 {
		t.Error("hash of identical descriptions differs")
	}

	changed := testDescription()
	changed.Fs = 20
	h3, _ := HashDescription(changed)
	if h1 == h3 {
		t.Error("hash did not change with fs")
	}
}

func TestSamplesEncoding(t *testing.T) {
	if _, err := decodeSamples([]byte{1, 2, 3}); err == nil {
		t.Error("decodeSamples() of a truncated blob should fail")
	}
}
