// Package logging provides leveled logging and run tracing for cdnet.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for structured JSONL run traces (~/.cdnet/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/cdnet/internal/constants"
)

// LevelTrace is a custom slog level below Debug for per-term logging.
// At this level, subset enumeration and cache lookups are included.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// CellEvent records one cell evaluation.
type CellEvent struct {
	RunID       string        `json:"run_id,omitempty"`
	CellID      string        `json:"cell_id"`
	Kind        string        `json:"kind"`
	Frontier    int           `json:"frontier"`
	Excitatory  int           `json:"excitatory"`
	Inhibitory  int           `json:"inhibitory"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
	CacheHits   int64         `json:"cache_hits"`
	CacheFilled int64         `json:"cache_computes"`
}

// RunEvent records the outcome of a network run.
type RunEvent struct {
	RunID     string        `json:"run_id,omitempty"`
	Cells     int           `json:"cells"`
	Samples   int           `json:"samples"`
	Frontiers int           `json:"frontiers"`
	Method    string        `json:"method"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// TraceLogger writes structured run events to a JSONL file.
// It is safe for concurrent use. A nil TraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type TraceLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewTraceLogger creates a trace logger writing to dir/trace.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewTraceLogger(dir string, level string) *TraceLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.TraceFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TraceLogger{file: f}
}

// LogCell writes a cell event. Safe to call on nil receiver.
func (tl *TraceLogger) LogCell(e CellEvent) {
	tl.write("cell", e)
}

// LogRun writes a run event. Safe to call on nil receiver.
func (tl *TraceLogger) LogRun(e RunEvent) {
	tl.write("run", e)
}

// write wraps v as {"event": event, "time": ..., "data": v} on one line.
func (tl *TraceLogger) write(event string, v any) {
	if tl == nil {
		return
	}

	entry := struct {
		Event string `json:"event"`
		Time  string `json:"time"`
		Data  any    `json:"data"`
	}{
		Event: event,
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Data:  v,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}
