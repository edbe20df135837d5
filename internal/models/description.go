package models

import "fmt"

// CellType is the cell type name used in network descriptions.
type CellType string

const (
	CellTypeEI       CellType = "ei"        // Excitatory gated by inhibitory
	CellTypeSimpleEE CellType = "simple_ee" // All excitatory inputs coincide
	CellTypeEE       CellType = "ee"        // At least n excitatory inputs coincide
	CellTypeCD       CellType = "cd"        // Excitatory excess over inhibitory
)

// InputType tags a connection as excitatory or inhibitory.
type InputType string

const (
	InputExcitatory InputType = "excitatory"
	InputInhibitory InputType = "inhibitory"
)

// Valid reports whether t is a known input type.
func (t InputType) Valid() bool {
	return t == InputExcitatory || t == InputInhibitory
}

// Description is a parsed network description: sampling rate, cells and
// connections. It is what the configuration loader hands to the network
// package, and what gets archived alongside a run.
type Description struct {
	// Fs is the sampling rate in Hz shared by every cell.
	Fs float64 `json:"fs" yaml:"fs"`

	Cells       []CellSpec       `json:"cells" yaml:"cells"`
	Connections []ConnectionSpec `json:"connections" yaml:"connections"`
}

// CellSpec describes one cell before it is bound to a Kind.
type CellSpec struct {
	ID     string     `json:"id" yaml:"id"`
	Type   CellType   `json:"type" yaml:"type"`
	Params CellParams `json:"params" yaml:"params"`
}

// CellParams holds the per-cell parameters. NSpikes is only meaningful for
// ee and cd cells; a nil pointer means the field was absent.
type CellParams struct {
	DeltaS  float64 `json:"delta_s" yaml:"delta_s"`
	NSpikes *int    `json:"n_spikes,omitempty" yaml:"n_spikes,omitempty"`
}

// ConnectionSpec wires a source (external input name or cell id) into a
// target cell.
type ConnectionSpec struct {
	Source    string    `json:"source" yaml:"source"`
	Target    string    `json:"target" yaml:"target"`
	InputType InputType `json:"input_type" yaml:"input_type"`
}

// Kind is the closed set of cell interactions.
type Kind int

const (
	KindEI Kind = iota
	KindSimpleEE
	KindEE
	KindCD
)

// String returns the description type name for k.
func (k Kind) String() string {
	switch k {
	case KindEI:
		return string(CellTypeEI)
	case KindSimpleEE:
		return string(CellTypeSimpleEE)
	case KindEE:
		return string(CellTypeEE)
	case KindCD:
		return string(CellTypeCD)
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CellKind is a Kind plus its payload. NSpikes is set for KindEE and KindCD
// and zero otherwise.
type CellKind struct {
	Kind    Kind
	NSpikes int
}

// String renders the kind with its threshold, e.g. "ee(2)".
func (k CellKind) String() string {
	switch k.Kind {
	case KindEE, KindCD:
		return fmt.Sprintf("%s(%d)", k.Kind, k.NSpikes)
	default:
		return k.Kind.String()
	}
}

// UsesInhibitory reports whether the kind consumes inhibitory inputs.
func (k CellKind) UsesInhibitory() bool {
	return k.Kind == KindEI || k.Kind == KindCD
}

// ParseCellKind binds a description type name and its parameters to a CellKind.
// Unknown types and missing or non-positive thresholds fail with ErrInvalidParameter.
func ParseCellKind(t CellType, params CellParams) (CellKind, error) {
	switch t {
	case CellTypeEI:
		return CellKind{Kind: KindEI}, nil
	case CellTypeSimpleEE:
		return CellKind{Kind: KindSimpleEE}, nil
	case CellTypeEE, CellTypeCD:
		if params.NSpikes == nil {
			return CellKind{}, fmt.Errorf("%w: %s cell requires n_spikes", ErrInvalidParameter, t)
		}
		n := *params.NSpikes
		if n < 1 {
			return CellKind{}, fmt.Errorf("%w: n_spikes must be >= 1, got %d", ErrInvalidParameter, n)
		}
		kind := KindEE
		if t == CellTypeCD {
			kind = KindCD
		}
		return CellKind{Kind: kind, NSpikes: n}, nil
	default:
		return CellKind{}, fmt.Errorf("%w: unknown cell type %q", ErrInvalidParameter, t)
	}
}
