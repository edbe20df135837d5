package integral

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/nvandessel/cdnet/internal/models"
)

// rule integrates equally spaced samples f with spacing dt.
type rule func(f []float64, dt float64) float64

// quadratureRule returns the per-window rule for m. Romberg needs a full
// window of 2^k+1 samples.
func quadratureRule(m Method, window int) (rule, error) {
	switch m {
	case MethodTrapz:
		return trapezoidal, nil
	case MethodSimpson:
		return simpson, nil
	case MethodRomberg:
		if !isPow2PlusOne(window) {
			return nil, fmt.Errorf("%w: romberg needs a window of 2^k+1 samples, got %d",
				models.ErrInvalidParameter, window)
		}
		return romberg, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a quadrature method", models.ErrUnsupportedMethod, m)
	}
}

// slidingQuadrature integrates x[max(0, t+1-window) : t+1] for every t.
func slidingQuadrature(x []float64, window int, dt float64, r rule) []float64 {
	out := make([]float64, len(x))
	for t := range x {
		start := t + 1 - window
		if start < 0 {
			start = 0
		}
		out[t] = r(x[start:t+1], dt)
	}
	return out
}

// cumTrapzWindow computes the cumulative trapezoid integral C from index 0
// and returns C[t] - C[t-window], or C[t] itself for t < window.
func cumTrapzWindow(x []float64, window int, dt float64) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	steps := make([]float64, n)
	for t := 1; t < n; t++ {
		steps[t] = (x[t-1] + x[t]) * dt / 2
	}
	cum := make([]float64, n)
	floats.CumSum(cum, steps)

	out := make([]float64, n)
	copy(out, cum)
	for t := window; t < n; t++ {
		out[t] -= cum[t-window]
	}
	return out
}

func trapezoidal(f []float64, dt float64) float64 {
	if len(f) < 2 {
		return 0
	}
	return integrate.Trapezoidal(abscissae(len(f), dt), f)
}

func simpson(f []float64, dt float64) float64 {
	if len(f) < 3 {
		return trapezoidal(f, dt)
	}
	return integrate.Simpsons(abscissae(len(f), dt), f)
}

// romberg falls back to the trapezoidal rule on partial windows at the start
// of a sequence whose length is not 2^k+1.
func romberg(f []float64, dt float64) float64 {
	if len(f) < 3 || !isPow2PlusOne(len(f)) {
		return trapezoidal(f, dt)
	}
	return integrate.Romberg(f, dt)
}

func abscissae(n int, dt float64) []float64 {
	x := make([]float64, n)
	floats.Span(x, 0, float64(n-1)*dt)
	return x
}

func isPow2PlusOne(n int) bool {
	m := n - 1
	return m >= 1 && m&(m-1) == 0
}
