// Package seqio reads and writes named sequence sets: the external inputs of
// a network run and the per-cell outputs it produces.
//
// Three formats are supported, chosen by file extension:
//   - .json     a JSON object mapping names to sample arrays
//   - .json.gz  the same, gzip-compressed
//   - .arrow    an Apache Arrow IPC stream with one float64 column per name
package seqio

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvandessel/cdnet/internal/constants"
	"github.com/nvandessel/cdnet/internal/models"
)

// Format identifies a sequence file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatJSONGzip
	FormatArrow
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONGzip:
		return "json.gz"
	case FormatArrow:
		return "arrow"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// DetectFormat picks the format from a file name.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".json.gz"):
		return FormatJSONGzip, nil
	case strings.HasSuffix(name, ".json"):
		return FormatJSON, nil
	case strings.HasSuffix(name, ".arrow"), strings.HasSuffix(name, ".arrows"):
		return FormatArrow, nil
	default:
		return 0, fmt.Errorf("unrecognized sequence file %q (want .json, .json.gz or .arrow)", filepath.Base(path))
	}
}

// ReadFile reads a sequence set, detecting the format from the extension.
func ReadFile(path string) (map[string][]float64, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sequence file: %w", err)
	}
	defer f.Close()

	seqs, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return seqs, nil
}

// WriteFile writes a sequence set, detecting the format from the extension.
// Parent directories are created.
func WriteFile(path string, seqs map[string][]float64) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, format, seqs); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing sequence file: %w", err)
	}
	return nil
}

// Read decodes a sequence set from r.
func Read(r io.Reader, format Format) (map[string][]float64, error) {
	switch format {
	case FormatJSON:
		return readJSON(r)
	case FormatJSONGzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()

		// Limit decompressed size
		limited := io.LimitReader(gzr, constants.MaxDecompressedSize+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
		if int64(len(data)) > constants.MaxDecompressedSize {
			return nil, fmt.Errorf("decompressed data exceeds maximum size of %d bytes", constants.MaxDecompressedSize)
		}
		return readJSON(bytes.NewReader(data))
	case FormatArrow:
		return readArrow(r)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// Write encodes a sequence set to w. Names are written in sorted order.
func Write(w io.Writer, format Format, seqs map[string][]float64) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, seqs)
	case FormatJSONGzip:
		gzw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}
		if err := writeJSON(gzw, seqs); err != nil {
			return err
		}
		if err := gzw.Close(); err != nil {
			return fmt.Errorf("closing gzip writer: %w", err)
		}
		return nil
	case FormatArrow:
		return writeArrow(w, seqs)
	default:
		return fmt.Errorf("unsupported format %s", format)
	}
}

// CheckLengths fails with ErrShapeMismatch unless every sequence has the
// same number of samples, and returns that number.
func CheckLengths(seqs map[string][]float64) (int, error) {
	names := Names(seqs)
	if len(names) == 0 {
		return 0, nil
	}
	n := len(seqs[names[0]])
	for _, name := range names[1:] {
		if len(seqs[name]) != n {
			return 0, fmt.Errorf("%w: %q has %d samples, %q has %d",
				models.ErrShapeMismatch, name, len(seqs[name]), names[0], n)
		}
	}
	return n, nil
}

// Names returns the sequence names in sorted order.
func Names(seqs map[string][]float64) []string {
	names := make([]string, 0, len(seqs))
	for name := range seqs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func readJSON(r io.Reader) (map[string][]float64, error) {
	var seqs map[string][]float64
	if err := json.NewDecoder(r).Decode(&seqs); err != nil {
		return nil, fmt.Errorf("parsing sequences: %w", err)
	}
	if seqs == nil {
		seqs = map[string][]float64{}
	}
	return seqs, nil
}

func writeJSON(w io.Writer, seqs map[string][]float64) error {
	if seqs == nil {
		seqs = map[string][]float64{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(seqs); err != nil {
		return fmt.Errorf("encoding sequences: %w", err)
	}
	return nil
}
