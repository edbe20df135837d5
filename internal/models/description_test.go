package models

import (
	"errors"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestParseCellKind(t *testing.T) {
	tests := []struct {
		name    string
		typ     CellType
		params  CellParams
		want    CellKind
		wantErr bool
	}{
		{"ei", CellTypeEI, CellParams{DeltaS: 0.1}, CellKind{Kind: KindEI}, false},
		{"simple_ee ignores n_spikes", CellTypeSimpleEE, CellParams{NSpikes: intPtr(3)}, CellKind{Kind: KindSimpleEE}, false},
		{"ee", CellTypeEE, CellParams{NSpikes: intPtr(2)}, CellKind{Kind: KindEE, NSpikes: 2}, false},
		{"cd", CellTypeCD, CellParams{NSpikes: intPtr(1)}, CellKind{Kind: KindCD, NSpikes: 1}, false},
		{"ee without n_spikes", CellTypeEE, CellParams{}, CellKind{}, true},
		{"cd with zero n_spikes", CellTypeCD, CellParams{NSpikes: intPtr(0)}, CellKind{}, true},
		{"ee with negative n_spikes", CellTypeEE, CellParams{NSpikes: intPtr(-1)}, CellKind{}, true},
		{"unknown type", CellType("lif"), CellParams{}, CellKind{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCellKind(tt.typ, tt.params)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Errorf("ParseCellKind() error = %v, want ErrInvalidParameter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCellKind() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCellKind() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCellKindString(t *testing.T) {
	tests := []struct {
		kind CellKind
		want string
	}{
		{CellKind{Kind: KindEI}, "ei"},
		{CellKind{Kind: KindSimpleEE}, "simple_ee"},
		{CellKind{Kind: KindEE, NSpikes: 2}, "ee(2)"},
		{CellKind{Kind: KindCD, NSpikes: 1}, "cd(1)"},
		{CellKind{Kind: Kind(9)}, "kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestUsesInhibitory(t *testing.T) {
	for kind, want := range map[Kind]bool{KindEI: true, KindSimpleEE: false, KindEE: false, KindCD: true} {
		if got := (CellKind{Kind: kind}).UsesInhibitory(); got != want {
			t.Errorf("%s.UsesInhibitory() = %v, want %v", kind, got, want)
		}
	}
}

func TestInputTypeValid(t *testing.T) {
	if !InputExcitatory.Valid() || !InputInhibitory.Valid() {
		t.Error("known input types should be valid")
	}
	if InputType("modulatory").Valid() || InputType("").Valid() {
		t.Error("unknown input types should be invalid")
	}
}
