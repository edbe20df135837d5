// Package integral computes the coincidence integral: for every channel of a
// [channels, samples] matrix, the integral of the channel's activity over the
// trailing window (t - window, t], clipped at the start of the sequence.
//
// Several numerically distinct methods approximate the same quantity. The
// filter methods convolve with a trapezoid kernel; cumtrapz integrates once
// and differences; the quadrature methods integrate each window slice.
package integral

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/cdnet/internal/models"
)

// Method names an integration method.
type Method string

const (
	MethodFiltFilt Method = "filtfilt" // Zero-phase forward-backward trapezoid filter
	MethodLFilter  Method = "lfilter"  // Causal trapezoid filter
	MethodCumTrapz Method = "cumtrapz" // Cumulative trapezoid, then difference
	MethodTrapz    Method = "trapz"    // Per-window trapezoidal rule
	MethodSimpson  Method = "simpson"  // Per-window Simpson's rule
	MethodRomberg  Method = "romberg"  // Per-window Romberg, window must be 2^k+1
)

// Methods lists every supported method in a stable order.
var Methods = []Method{MethodFiltFilt, MethodLFilter, MethodCumTrapz, MethodTrapz, MethodSimpson, MethodRomberg}

var methodAliases = map[string]Method{
	"simps": MethodSimpson,
	"romb":  MethodRomberg,
}

// ParseMethod resolves a method name (case-insensitive, scipy aliases accepted).
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if m, ok := methodAliases[name]; ok {
		return m, nil
	}
	for _, m := range Methods {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnsupportedMethod, s)
}

// Window is a trailing integration window: a duration in seconds at a
// sampling rate in Hz.
type Window struct {
	DeltaS float64
	Fs     float64
}

// Dt returns the sample spacing in seconds.
func (w Window) Dt() float64 {
	return 1 / w.Fs
}

// Samples returns floor(DeltaS * Fs). It fails with ErrInvalidParameter when
// the sampling rate is not positive or the window is shorter than one sample.
func (w Window) Samples() (int, error) {
	if !(w.Fs > 0) || math.IsInf(w.Fs, 0) {
		return 0, fmt.Errorf("%w: sampling rate must be positive, got %v", models.ErrInvalidParameter, w.Fs)
	}
	n := math.Floor(w.DeltaS * w.Fs)
	if !(n >= 1) || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: window of %vs at %vHz is %v samples, need at least 1",
			models.ErrInvalidParameter, w.DeltaS, w.Fs, n)
	}
	return int(n), nil
}

// String renders the window for logs.
func (w Window) String() string {
	return fmt.Sprintf("%gs@%gHz", w.DeltaS, w.Fs)
}

// Compute returns the coincidence integral of every channel in x. The result
// has the same shape as x. All channels must share one sample count.
func Compute(x [][]float64, w Window, m Method) ([][]float64, error) {
	samples, err := checkMatrix(x)
	if err != nil {
		return nil, err
	}
	window, err := w.Samples()
	if err != nil {
		return nil, err
	}

	var channel func([]float64) []float64
	dt := w.Dt()
	switch m {
	case MethodFiltFilt:
		kernel := TrapezoidKernel(window)
		channel = func(v []float64) []float64 { return filtFilt(kernel, v, dt) }
	case MethodLFilter:
		kernel := TrapezoidKernel(window)
		channel = func(v []float64) []float64 { return lFilter(kernel, v, dt) }
	case MethodCumTrapz:
		channel = func(v []float64) []float64 { return cumTrapzWindow(v, window, dt) }
	case MethodTrapz, MethodSimpson, MethodRomberg:
		rule, err := quadratureRule(m, window)
		if err != nil {
			return nil, err
		}
		channel = func(v []float64) []float64 { return slidingQuadrature(v, window, dt, rule) }
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedMethod, m)
	}

	out := make([][]float64, len(x))
	for i, v := range x {
		if len(v) != samples {
			return nil, fmt.Errorf("%w: channel %d has %d samples, want %d", models.ErrShapeMismatch, i, len(v), samples)
		}
		out[i] = channel(v)
	}
	return out, nil
}

// checkMatrix verifies that x is non-empty and rectangular and returns its
// sample count.
func checkMatrix(x [][]float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no channels", models.ErrShapeMismatch)
	}
	samples := len(x[0])
	for i, v := range x {
		if len(v) != samples {
			return 0, fmt.Errorf("%w: channel %d has %d samples, want %d", models.ErrShapeMismatch, i, len(v), samples)
		}
	}
	return samples, nil
}
