// Package session holds the resources shared by the runs of one process:
// settings, the integral cache, the trace log and the optional run archive.
//
// The CLI opens one session per invocation; the MCP server keeps one for its
// whole lifetime so repeated runs reuse cached integrals.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/cdnet/internal/cells"
	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/logging"
	"github.com/nvandessel/cdnet/internal/models"
	"github.com/nvandessel/cdnet/internal/network"
	"github.com/nvandessel/cdnet/internal/sanitize"
	"github.com/nvandessel/cdnet/internal/store"
)

// Options configures a Session. Only Settings is required.
type Options struct {
	Settings *config.CdnetConfig
	Logger   *slog.Logger
	Trace    *logging.TraceLogger

	// Archive records every successful run when set. The session closes it.
	Archive *store.Archive
}

// Session executes runs against shared resources. It is safe for
// concurrent use.
type Session struct {
	settings *config.CdnetConfig
	method   integral.Method
	cache    *integral.Cache
	logger   *slog.Logger
	trace    *logging.TraceLogger
	archive  *store.Archive

	closeOnce sync.Once
}

// New validates the settings and creates a session.
func New(opts Options) (*Session, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("session settings are required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	method, err := opts.Settings.Method()
	if err != nil {
		return nil, err
	}

	s := &Session{
		settings: opts.Settings,
		method:   method,
		logger:   opts.Logger,
		trace:    opts.Trace,
		archive:  opts.Archive,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if opts.Settings.Execution.Cache {
		s.cache = integral.NewCache()
	}
	return s, nil
}

// Request is one run.
type Request struct {
	Description models.Description
	Inputs      map[string][]float64

	// Method overrides the configured integration method when non-empty.
	Method string

	// Workers overrides the configured worker count when positive.
	Workers int

	// Label is stored with the archived run, reduced to one line of plain text.
	Label string
}

// Report is the outcome of a successful run.
type Report struct {
	RunID   string
	Method  integral.Method
	Workers int
	Result  *network.Result

	// Archived is the stored run, or nil when the session has no archive.
	Archived *store.Run

	Cache integral.CacheStats
}

// Execute builds the network, runs it and archives the result. Nothing is
// archived when the run fails.
func (s *Session) Execute(ctx context.Context, req Request) (*Report, error) {
	net, err := network.New(req.Description)
	if err != nil {
		return nil, err
	}

	method := s.method
	if req.Method != "" {
		if method, err = integral.ParseMethod(req.Method); err != nil {
			return nil, err
		}
	}
	workers := s.settings.Execution.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	if workers < 1 {
		workers = 1
	}

	runID := uuid.NewString()
	evaluator := cells.NewEvaluator(method,
		cells.WithCache(s.cache),
		cells.WithMaxTerms(s.settings.Execution.MaxSubsetTerms))

	s.logger.Debug("starting run",
		"run_id", runID, "cells", net.Len(), "method", method, "workers", workers)

	res, err := net.Run(ctx, req.Inputs,
		network.WithEvaluator(evaluator),
		network.WithWorkers(workers),
		network.WithLogger(s.logger),
		network.WithTrace(s.trace, runID))
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	report := &Report{
		RunID:   runID,
		Method:  method,
		Workers: workers,
		Result:  res,
		Cache:   s.cache.Stats(),
	}

	if s.archive != nil {
		stored, err := s.archive.RecordRun(ctx, store.Run{
			ID:          runID,
			Description: req.Description,
			Method:      string(method),
			Workers:     workers,
			Cells:       net.Len(),
			Samples:     res.Samples,
			Frontiers:   res.Frontiers,
			Duration:    res.Duration,
			Label:       sanitize.Label(req.Label),
			CreatedAt:   time.Now().UTC(),
		}, res.Outputs)
		if err != nil {
			return nil, fmt.Errorf("archive run %s: %w", runID, err)
		}
		report.Archived = &stored
	}

	return report, nil
}

// Settings returns the session settings. Callers must not modify them.
func (s *Session) Settings() *config.CdnetConfig {
	return s.settings
}

// Cache returns the shared integral cache, or nil when caching is disabled.
func (s *Session) Cache() *integral.Cache {
	return s.cache
}

// Archive returns the run archive, or nil.
func (s *Session) Archive() *store.Archive {
	return s.archive
}

// Close releases the archive and the trace log.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.trace.Close()
		if s.archive != nil {
			err = s.archive.Close()
		}
	})
	return err
}
