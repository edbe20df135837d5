package integral

import (
	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/cdnet/internal/constants"
)

// TrapezoidKernel returns the trapezoid weights for a window of n samples:
// endpoints 1, interior 2, e.g. [1 2 2 2 1] for n=5. Scaled by dt/2 it
// integrates n samples with the trapezoidal rule. A single-sample window is
// its own endpoint and gets [1].
func TrapezoidKernel(n int) []float64 {
	if n <= 1 {
		return []float64{1}
	}
	k := make([]float64, n)
	for i := range k {
		k[i] = 2
	}
	k[0], k[n-1] = 1, 1
	return k
}

// lFilter applies the FIR kernel causally and scales by dt/2. Samples before
// the start of x are taken as zero.
func lFilter(kernel, x []float64, dt float64) []float64 {
	y := fir(kernel, x, nil)
	floats.Scale(dt/2, y)
	return y
}

// filtFilt applies the kernel forward and then backward for zero phase
// distortion. x is padded at both ends with an odd extension and each pass
// starts from the steady state for its first sample, so edges do not ring.
func filtFilt(kernel, x []float64, dt float64) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	edge := constants.ZeroPhasePadFactor * len(kernel)
	if edge > n-1 {
		edge = n - 1
	}

	ext := make([]float64, 0, n+2*edge)
	for i := edge; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= edge; i++ {
		ext = append(ext, 2*x[n-1]-x[n-1-i])
	}

	zi := steadyState(kernel)
	y := fir(kernel, ext, scaled(zi, ext[0]))
	reverse(y)
	y = fir(kernel, y, scaled(zi, y[0]))
	reverse(y)

	out := make([]float64, n)
	copy(out, y[edge:edge+n])
	floats.Scale(dt/2, out)
	return out
}

// fir convolves x with b. zi is the initial filter state (len(b)-1 values)
// added to the first outputs; nil means a zero state.
func fir(b, x, zi []float64) []float64 {
	y := make([]float64, len(x))
	for t := range x {
		var acc float64
		for k := 0; k < len(b) && k <= t; k++ {
			acc += b[k] * x[t-k]
		}
		if t < len(zi) {
			acc += zi[t]
		}
		y[t] = acc
	}
	return y
}

// steadyState returns the FIR initial state for a unit step: zi[k] is the
// sum of b[k+1:].
func steadyState(b []float64) []float64 {
	if len(b) < 2 {
		return nil
	}
	zi := make([]float64, len(b)-1)
	for k := range zi {
		zi[k] = floats.Sum(b[k+1:])
	}
	return zi
}

func scaled(s []float64, c float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	floats.Scale(c, out)
	return out
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
