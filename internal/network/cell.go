package network

import (
	"fmt"

	"github.com/nvandessel/cdnet/internal/cells"
	"github.com/nvandessel/cdnet/internal/integral"
	"github.com/nvandessel/cdnet/internal/models"
)

// Cell is a named interaction bound to its threshold and window.
// Cells are immutable after construction.
type Cell struct {
	ID     string
	Kind   models.CellKind
	Window integral.Window
}

// NewCell binds a cell spec to the network sampling rate.
func NewCell(spec models.CellSpec, fs float64) (Cell, error) {
	if spec.ID == "" {
		return Cell{}, fmt.Errorf("%w: cell id is empty", models.ErrInvalidParameter)
	}
	kind, err := models.ParseCellKind(spec.Type, spec.Params)
	if err != nil {
		return Cell{}, fmt.Errorf("cell %s: %w", spec.ID, err)
	}
	w := integral.Window{DeltaS: spec.Params.DeltaS, Fs: fs}
	if _, err := w.Samples(); err != nil {
		return Cell{}, fmt.Errorf("cell %s: %w", spec.ID, err)
	}
	return Cell{ID: spec.ID, Kind: kind, Window: w}, nil
}

// Evaluate dispatches the stacked excitatory and inhibitory inputs to the
// formula for the cell's kind.
//
// An ei cell takes exactly one excitatory channel and at least one inhibitory
// channel. simple_ee and ee cells take no inhibitory channels. cd cells take
// any number of inhibitory channels, including none.
func (c Cell) Evaluate(e *cells.Evaluator, exc, inh [][]float64) ([]float64, error) {
	if len(exc) == 0 {
		return nil, fmt.Errorf("cell %s: %w: no excitatory inputs", c.ID, models.ErrShapeMismatch)
	}
	if len(inh) > 0 && !c.Kind.UsesInhibitory() {
		return nil, fmt.Errorf("cell %s: %w: %s cell does not accept inhibitory inputs",
			c.ID, models.ErrInvalidParameter, c.Kind)
	}

	var (
		out []float64
		err error
	)
	switch c.Kind.Kind {
	case models.KindEI:
		if len(exc) != 1 {
			return nil, fmt.Errorf("cell %s: %w: ei cell takes one excitatory input, got %d",
				c.ID, models.ErrShapeMismatch, len(exc))
		}
		out, err = e.EI(exc[0], inh, c.Window)
	case models.KindSimpleEE:
		out, err = e.SimpleEE(exc, c.Window)
	case models.KindEE:
		out, err = e.EE(exc, c.Kind.NSpikes, c.Window)
	case models.KindCD:
		out, err = e.CD(exc, inh, c.Kind.NSpikes, c.Window)
	default:
		return nil, fmt.Errorf("cell %s: %w: unhandled kind %s", c.ID, models.ErrInternalConsistency, c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", c.ID, err)
	}
	return out, nil
}
