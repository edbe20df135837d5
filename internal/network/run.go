package network

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/cdnet/internal/cells"
	"github.com/nvandessel/cdnet/internal/constants"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/logging"
	"github.com/nvandessel/cdnet/internal/models"
)

// Result is the outcome of one run.
type Result struct {
	// Outputs maps every cell id to its output sequence.
	Outputs map[string][]float64

	// Order lists cell ids in the order they completed, frontier by frontier.
	Order []string

	// Frontiers groups Order by scheduling step. Cells in one frontier have
	// no dependency on each other.
	Frontiers [][]string

	// Samples is the common length of every input and output sequence.
	Samples int

	Duration time.Duration
}

type runOptions struct {
	evaluator *cells.Evaluator
	workers   int
	logger    *slog.Logger
	trace     *logging.TraceLogger
	runID     string
}

// RunOption configures a run.
type RunOption func(*runOptions)

// WithEvaluator sets the cell evaluator. The default uses the lfilter method
// and no cache.
func WithEvaluator(e *cells.Evaluator) RunOption {
	return func(o *runOptions) { o.evaluator = e }
}

// WithWorkers bounds how many cells of one frontier are evaluated at once.
// Values below 1 mean sequential evaluation.
func WithWorkers(n int) RunOption {
	return func(o *runOptions) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) { o.logger = l }
}

// WithTrace records one trace event per evaluated cell and one per run.
func WithTrace(t *logging.TraceLogger, runID string) RunOption {
	return func(o *runOptions) {
		o.trace = t
		o.runID = runID
	}
}

// Run evaluates every cell in dependency order.
//
// Cells whose inbound connections come only from external inputs form the
// first frontier. After each frontier completes, every successor whose cell
// predecessors are all done joins the next frontier, ordered by declaration.
// Cells in a frontier are evaluated concurrently up to the worker limit.
//
// All inputs must have the same length, or Run fails with ErrShapeMismatch
// before evaluating anything. A source that is neither a cell nor a supplied
// input never resolves; like a cycle it leaves cells unscheduled and Run
// fails with ErrCyclicOrUnresolvedDependency. Results are all or nothing.
func (n *Network) Run(ctx context.Context, inputs map[string][]float64, opts ...RunOption) (*Result, error) {
	o := runOptions{workers: constants.DefaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	if o.evaluator == nil {
		o.evaluator = cells.NewEvaluator(integral.Method(constants.DefaultMethod))
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	start := time.Now()
	samples, err := checkInputs(inputs)
	if err != nil {
		return nil, err
	}

	// Per-run in-degree: missing externals hold their targets back forever.
	inDegree := make([]int, len(n.inDegree))
	copy(inDegree, n.inDegree)
	var missing []string
	for _, name := range n.externals {
		if _, ok := inputs[name]; ok {
			continue
		}
		missing = append(missing, name)
		for i := range n.cells {
			for _, ci := range n.inbound[i] {
				if n.conns[ci].Source == name {
					inDegree[i]++
				}
			}
		}
	}
	for name := range inputs {
		if !n.IsExternal(name) {
			o.logger.Debug("input not connected to any cell", "input", name)
		}
	}

	var frontier []int
	for i, d := range inDegree {
		if d == 0 {
			frontier = append(frontier, i)
		}
	}

	outputs := make([][]float64, len(n.cells))
	done := 0
	res := &Result{Samples: samples}

	for step := 0; len(frontier) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for _, idx := range frontier {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out, err := n.evaluate(idx, inputs, outputs, step, &o)
				if err != nil {
					return err
				}
				// Each cell owns its slot; earlier frontiers are only read.
				outputs[idx] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			o.trace.LogRun(logging.RunEvent{
				RunID:     o.runID,
				Cells:     len(n.cells),
				Samples:   samples,
				Frontiers: step + 1,
				Method:    string(o.evaluator.Method()),
				Duration:  time.Since(start),
				Error:     err.Error(),
			})
			return nil, err
		}

		ids, next := n.advance(frontier, inDegree)
		done += len(frontier)
		res.Order = append(res.Order, ids...)
		res.Frontiers = append(res.Frontiers, ids)
		frontier = next
	}

	if done < len(n.cells) {
		return nil, n.unresolved(inDegree, missing)
	}

	res.Outputs = make(map[string][]float64, len(n.cells))
	for i, c := range n.cells {
		res.Outputs[c.ID] = outputs[i]
	}
	res.Duration = time.Since(start)

	o.logger.Debug("network run complete",
		"cells", len(n.cells),
		"frontiers", len(res.Frontiers),
		"samples", samples,
		"duration", res.Duration)
	o.trace.LogRun(logging.RunEvent{
		RunID:     o.runID,
		Cells:     len(n.cells),
		Samples:   samples,
		Frontiers: len(res.Frontiers),
		Method:    string(o.evaluator.Method()),
		Duration:  res.Duration,
	})
	return res, nil
}

// evaluate gathers the inputs of cell idx in connection declaration order and
// evaluates it.
func (n *Network) evaluate(idx int, inputs map[string][]float64, outputs [][]float64, step int, o *runOptions) ([]float64, error) {
	c := n.cells[idx]
	var exc, inh [][]float64
	for _, ci := range n.inbound[idx] {
		conn := n.conns[ci]
		var seq []float64
		if src, ok := n.index[conn.Source]; ok {
			seq = outputs[src]
		} else {
			seq = inputs[conn.Source]
		}
		if conn.InputType == models.InputInhibitory {
			inh = append(inh, seq)
		} else {
			exc = append(exc, seq)
		}
	}

	start := time.Now()
	out, err := c.Evaluate(o.evaluator, exc, inh)
	elapsed := time.Since(start)

	ev := logging.CellEvent{
		RunID:      o.runID,
		CellID:     c.ID,
		Kind:       c.Kind.String(),
		Frontier:   step,
		Excitatory: len(exc),
		Inhibitory: len(inh),
		Duration:   elapsed,
	}
	if stats := o.evaluator.Cache().Stats(); stats.Hits+stats.Computes > 0 {
		ev.CacheHits = stats.Hits
		ev.CacheFilled = stats.Computes
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.trace.LogCell(ev)

	if err != nil {
		return nil, err
	}
	o.logger.Log(context.Background(), logging.LevelTrace, "cell evaluated",
		"cell", c.ID, "kind", c.Kind.String(), "frontier", step,
		"excitatory", len(exc), "inhibitory", len(inh), "duration", elapsed)
	return out, nil
}

// unresolved builds the error for cells left unscheduled.
func (n *Network) unresolved(inDegree []int, missing []string) error {
	var stuck []string
	for i, d := range inDegree {
		if d > 0 {
			stuck = append(stuck, n.cells[i].ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no input for sources [%s]; cells not evaluated: [%s]",
			models.ErrCyclicOrUnresolvedDependency, strings.Join(missing, ", "), strings.Join(stuck, ", "))
	}
	return fmt.Errorf("%w: cycle among cells [%s]",
		models.ErrCyclicOrUnresolvedDependency, strings.Join(stuck, ", "))
}

// checkInputs returns the common input length.
func checkInputs(inputs map[string][]float64) (int, error) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	samples := -1
	for _, name := range names {
		if samples < 0 {
			samples = len(inputs[name])
			continue
		}
		if len(inputs[name]) != samples {
			return 0, fmt.Errorf("%w: input %q has %d samples, want %d",
				models.ErrShapeMismatch, name, len(inputs[name]), samples)
		}
	}
	if samples < 0 {
		samples = 0
	}
	return samples, nil
}
