// Package cells implements the coincidence detector cell algebra: closed-form
// rate formulas for excitatory-inhibitory (EI), excitatory-excitatory (EE) and
// combined coincidence detector (CD) interactions. Inputs are spike indicator
// or rate sequences, normally in [0, 1]; every formula is built on the
// coincidence integral of its inputs over a trailing window.
//
// EE and CD enumerate input subsets, so one evaluation costs O(C(N, n))
// integrals per threshold n. The Evaluator's integral cache absorbs the
// repeats across terms, and MaxTerms bounds the enumeration up front.
package cells

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/cdnet/internal/constants"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/models"
)

// Evaluator binds the cell formulas to an integration method and an optional
// integral cache. It holds no other state and is safe for concurrent use when
// the cache is.
type Evaluator struct {
	method   integral.Method
	cache    *integral.Cache
	maxTerms int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache memoizes the integrals of EE and CD terms in c.
func WithCache(c *integral.Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithMaxTerms bounds the number of subset terms one EE or CD evaluation may
// enumerate. Non-positive values keep the default.
func WithMaxTerms(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxTerms = n
		}
	}
}

// NewEvaluator creates an Evaluator using method m.
func NewEvaluator(m integral.Method, opts ...Option) *Evaluator {
	e := &Evaluator{
		method:   m,
		maxTerms: constants.DefaultMaxSubsetTerms,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Method returns the integration method in use.
func (e *Evaluator) Method() integral.Method {
	return e.method
}

// Cache returns the integral cache, which may be nil.
func (e *Evaluator) Cache() *integral.Cache {
	return e.cache
}

// EI gates the excitatory sequence by every inhibitory channel:
//
//	out[t] = exc[t] * prod_j (1 - CI(inh_j)[t])
//
// An excitatory event survives only when no inhibitory channel was active in
// the trailing window. At least one inhibitory channel is required.
func (e *Evaluator) EI(exc []float64, inh [][]float64, w integral.Window) ([]float64, error) {
	if len(inh) == 0 {
		return nil, fmt.Errorf("%w: ei needs at least one inhibitory channel", models.ErrShapeMismatch)
	}
	return e.gate(exc, inh, w)
}

// gate is EI without the channel count check; no inhibitory channels leaves
// exc unchanged.
func (e *Evaluator) gate(exc []float64, inh [][]float64, w integral.Window) ([]float64, error) {
	out := make([]float64, len(exc))
	copy(out, exc)
	if len(inh) == 0 {
		return out, nil
	}
	if err := sameLength(len(exc), inh); err != nil {
		return nil, fmt.Errorf("ei: %w", err)
	}

	ci, err := integral.Compute(inh, w, e.method)
	if err != nil {
		return nil, fmt.Errorf("ei: %w", err)
	}
	for _, c := range ci {
		for t, v := range c {
			out[t] *= 1 - v
		}
	}
	return out, nil
}

// AllSpikesEE is the rate at which every input channel fires within the
// window. The joint term P = prod_i CI_i is attributed to whichever channel
// spikes at t:
//
//	out[t] = sum_i in_i[t] * P[t] / (CI_i[t] + eps)
//
// For a single channel this is the channel itself.
func (e *Evaluator) AllSpikesEE(inputs [][]float64, w integral.Window) ([]float64, error) {
	samples, err := matrixShape(inputs)
	if err != nil {
		return nil, fmt.Errorf("all-spikes ee: %w", err)
	}
	if len(inputs) == 1 {
		out := make([]float64, samples)
		copy(out, inputs[0])
		return out, nil
	}

	ci, err := e.cache.Get(inputs, w, e.method)
	if err != nil {
		return nil, fmt.Errorf("all-spikes ee: %w", err)
	}

	joint := make([]float64, samples)
	for t := range joint {
		joint[t] = 1
	}
	for _, c := range ci {
		floats.Mul(joint, c)
	}

	out := make([]float64, samples)
	for i, in := range inputs {
		for t, v := range in {
			if v == 0 {
				continue
			}
			out[t] += v * joint[t] / (ci[i][t] + constants.Epsilon)
		}
	}
	return out, nil
}

// SimpleEE is the two-input EE cell: it fires when both inputs spike within
// the window. It accepts any number of channels and requires all of them.
func (e *Evaluator) SimpleEE(inputs [][]float64, w integral.Window) ([]float64, error) {
	return e.AllSpikesEE(inputs, w)
}

// sameLength checks that every channel has n samples.
func sameLength(n int, x [][]float64) error {
	for i, v := range x {
		if len(v) != n {
			return fmt.Errorf("%w: channel %d has %d samples, want %d", models.ErrShapeMismatch, i, len(v), n)
		}
	}
	return nil
}

// matrixShape checks that x has at least one channel and is rectangular.
func matrixShape(x [][]float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no input channels", models.ErrShapeMismatch)
	}
	samples := len(x[0])
	if err := sameLength(samples, x); err != nil {
		return 0, err
	}
	return samples, nil
}
