package seqio

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nvandessel/cdnet/internal/models"
)

func sample() map[string][]float64 {
	return map[string][]float64{
		"external_1": {1, 0, 0, 0, 1},
		"external_2": {0, 0, 1, 0, 0},
		"rate":       {0.25, 0.5, 0.125, 0, 1e-9},
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"inputs.json", FormatJSON, false},
		{"dir/INPUTS.JSON", FormatJSON, false},
		{"outputs.json.gz", FormatJSONGzip, false},
		{"outputs.arrow", FormatArrow, false},
		{"outputs.arrows", FormatArrow, false},
		{"inputs.pkl", 0, true},
		{"inputs", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFiles(t *testing.T) {
	for _, name := range []string{"seqs.json", "seqs.json.gz", "seqs.arrow"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", name)
			if err := WriteFile(path, sample()); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("permissions = %o, want 0600", perm)
			}

			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !reflect.DeepEqual(got, sample()) {
				t.Errorf("ReadFile() = %v, want %v", got, sample())
			}
		})
	}
}

func TestWriteJSON_SortedAndCompressed(t *testing.T) {
	var plain, packed bytes.Buffer
	if err := Write(&plain, FormatJSON, sample()); err != nil {
		t.Fatal(err)
	}
	if err := Write(&packed, FormatJSONGzip, sample()); err != nil {
		t.Fatal(err)
	}

	gzr, err := gzip.NewReader(&packed)
	if err != nil {
		t.Fatalf("output is not gzip: %v", err)
	}
	var unpacked bytes.Buffer
	if _, err := unpacked.ReadFrom(gzr); err != nil {
		t.Fatal(err)
	}
	if unpacked.String() != plain.String() {
		t.Errorf("gzip payload %q differs from plain JSON %q", unpacked.String(), plain.String())
	}

	want := `{"external_1":[1,0,0,0,1],"external_2":[0,0,1,0,0],"rate":[0.25,0.5,0.125,0,1e-9]}` + "\n"
	if plain.String() != want {
		t.Errorf("JSON = %q, want %q", plain.String(), want)
	}
}

func TestWriteArrow_RejectsRaggedSequences(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, FormatArrow, map[string][]float64{
		"a": {1, 2, 3},
		"b": {1, 2},
	})
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Write() error = %v, want ErrShapeMismatch", err)
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   []byte
	}{
		{"malformed json", FormatJSON, []byte(`{"a": [1, 2`)},
		{"json wrong shape", FormatJSON, []byte(`{"a": "not numbers"}`)},
		{"not gzip", FormatJSONGzip, []byte(`{"a": [1]}`)},
		{"not arrow", FormatArrow, []byte(`{"a": [1]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(bytes.NewReader(tt.data), tt.format); err == nil {
				t.Error("Read() error = nil, want error")
			}
		})
	}
}

func TestCheckLengths(t *testing.T) {
	n, err := CheckLengths(sample())
	if err != nil || n != 5 {
		t.Errorf("CheckLengths() = %d, %v; want 5, nil", n, err)
	}

	n, err = CheckLengths(nil)
	if err != nil || n != 0 {
		t.Errorf("CheckLengths(nil) = %d, %v; want 0, nil", n, err)
	}

	_, err = CheckLengths(map[string][]float64{"a": {1}, "b": {1, 2}})
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("CheckLengths() error = %v, want ErrShapeMismatch", err)
	}
}

func TestNames(t *testing.T) {
	got := Names(sample())
	want := []string{"external_1", "external_2", "rate"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
