// Package store archives network runs in SQLite: the description that was
// run, how it was run, and every cell's output sequence.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/cdnet/internal/models"
)

var (
	// ErrRunNotFound is returned when no run matches an id or id prefix.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when an id prefix matches several runs.
	ErrAmbiguousRunID = errors.New("ambiguous run id")
)

// Run is one archived network run.
type Run struct {
	ID              string             `json:"id"`
	DescriptionHash string             `json:"description_hash"`
	Description     models.Description `json:"description"`
	Method          string             `json:"method"`
	Workers         int                `json:"workers"`
	Cells           int                `json:"cells"`
	Samples         int                `json:"samples"`
	Frontiers       [][]string         `json:"frontiers"`
	Duration        time.Duration      `json:"duration_ns"`
	Label           string             `json:"label,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Archive is a SQLite run archive. It is safe for concurrent use.
type Archive struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens or creates the archive at path. ":memory:" opens a private
// in-memory archive.
func Open(path string) (*Archive, error) {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, path: path}, nil
}

// Path returns the archive location.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Close()
}

// RecordRun stores a run and its outputs in one transaction. A missing ID,
// hash or CreatedAt is filled in; the stored run is returned.
func (a *Archive) RecordRun(ctx context.Context, run Run, outputs map[string][]float64) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.DescriptionHash == "" {
		h, err := HashDescription(run.Description)
		if err != nil {
			return Run{}, err
		}
		run.DescriptionHash = h
	}

	descJSON, err := json.Marshal(run.Description)
	if err != nil {
		return Run{}, fmt.Errorf("failed to marshal description: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, description_hash, description, fs, method, workers,
			cells, samples, frontiers, duration_ns, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DescriptionHash, string(descJSON), run.Description.Fs, run.Method, run.Workers,
		run.Cells, run.Samples, len(run.Frontiers), int64(run.Duration), run.Label,
		run.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outputs (run_id, cell_id, position, frontier, samples)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("failed to prepare output insert: %w", err)
	}
	defer stmt.Close()

	position := 0
	written := make(map[string]bool, len(outputs))
	for frontier, ids := range run.Frontiers {
		for _, id := range ids {
			seq, ok := outputs[id]
			if !ok {
				return Run{}, fmt.Errorf("no output for cell %q in frontier %d", id, frontier)
			}
			if _, err := stmt.ExecContext(ctx, run.ID, id, position, frontier, encodeSamples(seq)); err != nil {
				return Run{}, fmt.Errorf("failed to insert output %s: %w", id, err)
			}
			written[id] = true
			position++
		}
	}
	if len(written) != len(outputs) {
		return Run{}, fmt.Errorf("%d outputs are not in any frontier", len(outputs)-len(written))
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. limit <= 0 returns all runs.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	query := runSelect + ` ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		frontiers, err := a.frontiers(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Frontiers = frontiers
	}
	return runs, nil
}

// GetRun returns the run with the given id or unique id prefix.
func (a *Archive) GetRun(ctx context.Context, id string) (Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	fullID, err := a.resolveID(ctx, id)
	if err != nil {
		return Run{}, err
	}

	run, err := scanRun(a.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, fullID))
	if err != nil {
		return Run{}, err
	}
	run.Frontiers, err = a.frontiers(ctx, fullID)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// LoadOutputs returns every cell output of a run.
func (a *Archive) LoadOutputs(ctx context.Context, id string) (map[string][]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	fullID, err := a.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT cell_id, samples FROM outputs WHERE run_id = ? ORDER BY position`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer rows.Close()

	outputs := make(map[string][]float64)
	for rows.Next() {
		var cellID string
		var blob []byte
		if err := rows.Scan(&cellID, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		seq, err := decodeSamples(blob)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", cellID, err)
		}
		outputs[cellID] = seq
	}
	return outputs, rows.Err()
}

// DeleteRun removes a run and its outputs.
func (a *Archive) DeleteRun(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullID, err := a.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Prune keeps the newest keep runs and deletes the rest, returning how many
// were deleted.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY created_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// resolveID expands an id prefix. Callers hold the lock.
func (a *Archive) resolveID(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to resolve run id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		for _, id := range ids {
			if id == prefix {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrAmbiguousRunID, prefix)
	}
}

// frontiers rebuilds the frontier grouping of a run. Callers hold the lock.
func (a *Archive) frontiers(ctx context.Context, id string) ([][]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT cell_id, frontier FROM outputs WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query frontiers: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cellID string
		var frontier int
		if err := rows.Scan(&cellID, &frontier); err != nil {
			return nil, fmt.Errorf("failed to scan frontier: %w", err)
		}
		for len(out) <= frontier {
			out = append(out, nil)
		}
		out[frontier] = append(out[frontier], cellID)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runSelect = `
	SELECT id, description_hash, description, method, workers, cells, samples,
		duration_ns, label, created_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run        Run
		descJSON   string
		durationNS int64
		createdAt  string
	)
	err := s.Scan(&run.ID, &run.DescriptionHash, &descJSON, &run.Method, &run.Workers,
		&run.Cells, &run.Samples, &durationNS, &run.Label, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(descJSON), &run.Description); err != nil {
		return Run{}, fmt.Errorf("run %s: corrupt description: %w", run.ID, err)
	}
	run.Duration = time.Duration(durationNS)
	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	return run, nil
}

// HashDescription returns a content hash of the canonical JSON encoding of
// desc, formatted as "sha256:<hex>".
func HashDescription(desc models.Description) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal description: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// encodeSamples packs a sequence as little-endian IEEE-754 doubles.
func encodeSamples(seq []float64) []byte {
	buf := make([]byte, 8*len(seq))
	for i, v := range seq {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeSamples(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("sample blob of %d bytes is not a multiple of 8", len(buf))
	}
	seq := make([]float64, len(buf)/8)
	for i := range seq {
		seq[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return seq, nil
}
