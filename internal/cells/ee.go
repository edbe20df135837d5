package cells

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/models"
)

// ExactlyNSpikesEE is the rate at which exactly n of the N inputs fire within
// the window. For every n-subset S it takes AllSpikesEE over S and gates it
// by EI against the complement (any further channel would make it more than
// n), then sums over the C(N, n) subsets. Subsets are enumerated iteratively.
func (e *Evaluator) ExactlyNSpikesEE(inputs [][]float64, n int, w integral.Window) ([]float64, error) {
	samples, err := matrixShape(inputs)
	if err != nil {
		return nil, fmt.Errorf("exactly-%d ee: %w", n, err)
	}
	total := len(inputs)
	if n < 1 || n > total {
		return nil, fmt.Errorf("%w: n_spikes must be in [1, %d], got %d", models.ErrInvalidParameter, total, n)
	}
	if err := e.checkTerms(total, n, n); err != nil {
		return nil, err
	}
	return e.exactly(inputs, samples, n, w)
}

func (e *Evaluator) exactly(inputs [][]float64, samples, n int, w integral.Window) ([]float64, error) {
	total := len(inputs)
	out := make([]float64, samples)

	gen := combin.NewCombinationGenerator(total, n)
	chosen := make([]int, n)
	inSubset := make([]bool, total)
	spiking := make([][]float64, n)
	silent := make([][]float64, 0, total-n)

	for gen.Next() {
		gen.Combination(chosen)
		for i := range inSubset {
			inSubset[i] = false
		}
		for j, idx := range chosen {
			inSubset[idx] = true
			spiking[j] = inputs[idx]
		}
		silent = silent[:0]
		for i, in := range inputs {
			if !inSubset[i] {
				silent = append(silent, in)
			}
		}

		term, err := e.AllSpikesEE(spiking, w)
		if err != nil {
			return nil, err
		}
		term, err = e.gate(term, silent, w)
		if err != nil {
			return nil, err
		}
		floats.Add(out, term)
	}
	return out, nil
}

// EE is the rate at which at least nSpikes of the N inputs fire within the
// window: the sum of ExactlyNSpikesEE for k = nSpikes..N.
func (e *Evaluator) EE(inputs [][]float64, nSpikes int, w integral.Window) ([]float64, error) {
	samples, err := matrixShape(inputs)
	if err != nil {
		return nil, fmt.Errorf("ee: %w", err)
	}
	total := len(inputs)
	if nSpikes < 1 || nSpikes > total {
		return nil, fmt.Errorf("%w: n_spikes must be in [1, %d], got %d", models.ErrInvalidParameter, total, nSpikes)
	}
	if err := e.checkTerms(total, nSpikes, total); err != nil {
		return nil, err
	}

	out := make([]float64, samples)
	for k := nSpikes; k <= total; k++ {
		term, err := e.exactly(inputs, samples, k, w)
		if err != nil {
			return nil, fmt.Errorf("ee: %w", err)
		}
		floats.Add(out, term)
	}
	return out, nil
}

// CD models a cell that fires when, within the window, the excitatory spike
// count exceeds the inhibitory one by at least nSpikes. With M excitatory and
// K inhibitory channels it sums, for i = 0..min(K, M-nSpikes):
//
//	i = 0:                   EI(EE(exc, n), inh)
//	1 <= i <= min(K-1, M-n): EI(EE(exc, n+i), AllSpikesEE(inh))
//	i = K:                   EE(exc, n+K)
//
// No inhibitory channels reduces to EE(exc, nSpikes).
func (e *Evaluator) CD(exc, inh [][]float64, nSpikes int, w integral.Window) ([]float64, error) {
	samples, err := matrixShape(exc)
	if err != nil {
		return nil, fmt.Errorf("cd: %w", err)
	}
	if err := sameLength(samples, inh); err != nil {
		return nil, fmt.Errorf("cd: inhibitory: %w", err)
	}
	m, k := len(exc), len(inh)
	if nSpikes < 1 || nSpikes > m {
		return nil, fmt.Errorf("%w: n_spikes must be in [1, %d], got %d", models.ErrInvalidParameter, m, nSpikes)
	}
	if err := e.checkTerms(m, nSpikes, m); err != nil {
		return nil, err
	}

	var inhAll []float64
	out := make([]float64, samples)
	last := min(k, m-nSpikes)
	for i := 0; i <= last; i++ {
		var term []float64
		switch {
		case i == 0:
			ee, err := e.EE(exc, nSpikes, w)
			if err != nil {
				return nil, fmt.Errorf("cd: %w", err)
			}
			term, err = e.gate(ee, inh, w)
			if err != nil {
				return nil, fmt.Errorf("cd: %w", err)
			}
		case i <= min(k-1, m-nSpikes):
			if inhAll == nil {
				inhAll, err = e.AllSpikesEE(inh, w)
				if err != nil {
					return nil, fmt.Errorf("cd: %w", err)
				}
			}
			ee, err := e.EE(exc, nSpikes+i, w)
			if err != nil {
				return nil, fmt.Errorf("cd: %w", err)
			}
			term, err = e.gate(ee, [][]float64{inhAll}, w)
			if err != nil {
				return nil, fmt.Errorf("cd: %w", err)
			}
		case i == k:
			term, err = e.EE(exc, nSpikes+i, w)
			if err != nil {
				return nil, fmt.Errorf("cd: %w", err)
			}
		default:
			return nil, fmt.Errorf("%w: cd term %d outside bands for M=%d K=%d n=%d",
				models.ErrInternalConsistency, i, m, k, nSpikes)
		}
		floats.Add(out, term)
	}
	return out, nil
}

// checkTerms fails with ErrInvalidParameter when enumerating the subsets of
// size from..to out of total would exceed the evaluator's term budget.
func (e *Evaluator) checkTerms(total, from, to int) error {
	if total > 62 {
		return fmt.Errorf("%w: %d input channels is too many to enumerate", models.ErrInvalidParameter, total)
	}
	var terms int
	for k := from; k <= to; k++ {
		terms += combin.Binomial(total, k)
		if terms > e.maxTerms {
			return fmt.Errorf("%w: %d channels need more than %d subset terms",
				models.ErrInvalidParameter, total, e.maxTerms)
		}
	}
	return nil
}
