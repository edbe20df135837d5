// Package network composes cells into a directed graph and evaluates it in
// dependency order.
//
// A Network is built once from a description. The inbound, outbound and
// in-degree index is constructed up front so that a run touches each
// connection a constant number of times. Networks are read-only after New
// and may be shared by concurrent runs.
package network

import (
	"fmt"
	"sort"

	"github.com/nvandessel/cdnet/internal/models"
)

// Connection wires a source into a target cell. Source names either another
// cell or an external input.
type Connection struct {
	Source    string
	Target    string
	InputType models.InputType
}

// Network is an immutable cell graph.
type Network struct {
	fs    float64
	cells []Cell
	index map[string]int
	conns []Connection

	// Per cell, indices into conns in declaration order.
	inbound  [][]int
	outbound [][]int

	// Per cell, number of inbound connections whose source is a cell.
	inDegree []int

	// Sources that are not cells, in first-seen order.
	externals []string
}

// New builds a network from a description. It fails with ErrInvalidParameter
// on duplicate or malformed cells, connections to unknown targets, and
// unknown input types. Cycles are not rejected here; Run reports them.
func New(desc models.Description) (*Network, error) {
	if !(desc.Fs > 0) {
		return nil, fmt.Errorf("%w: fs must be positive, got %v", models.ErrInvalidParameter, desc.Fs)
	}

	n := &Network{
		fs:       desc.Fs,
		cells:    make([]Cell, 0, len(desc.Cells)),
		index:    make(map[string]int, len(desc.Cells)),
		conns:    make([]Connection, 0, len(desc.Connections)),
		inbound:  make([][]int, len(desc.Cells)),
		outbound: make([][]int, len(desc.Cells)),
		inDegree: make([]int, len(desc.Cells)),
	}

	for _, spec := range desc.Cells {
		if _, dup := n.index[spec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate cell id %q", models.ErrInvalidParameter, spec.ID)
		}
		c, err := NewCell(spec, desc.Fs)
		if err != nil {
			return nil, err
		}
		n.index[c.ID] = len(n.cells)
		n.cells = append(n.cells, c)
	}

	seen := make(map[string]bool)
	for i, spec := range desc.Connections {
		if spec.Source == "" {
			return nil, fmt.Errorf("%w: connection %d has no source", models.ErrInvalidParameter, i)
		}
		if !spec.InputType.Valid() {
			return nil, fmt.Errorf("%w: connection %s -> %s has input type %q",
				models.ErrInvalidParameter, spec.Source, spec.Target, spec.InputType)
		}
		target, ok := n.index[spec.Target]
		if !ok {
			return nil, fmt.Errorf("%w: connection %s -> %s targets an unknown cell",
				models.ErrInvalidParameter, spec.Source, spec.Target)
		}

		ci := len(n.conns)
		n.conns = append(n.conns, Connection{
			Source:    spec.Source,
			Target:    spec.Target,
			InputType: spec.InputType,
		})
		n.inbound[target] = append(n.inbound[target], ci)

		if source, ok := n.index[spec.Source]; ok {
			n.outbound[source] = append(n.outbound[source], ci)
			n.inDegree[target]++
		} else if !seen[spec.Source] {
			seen[spec.Source] = true
			n.externals = append(n.externals, spec.Source)
		}
	}

	return n, nil
}

// Fs returns the sampling rate shared by every cell.
func (n *Network) Fs() float64 {
	return n.fs
}

// Len returns the number of cells.
func (n *Network) Len() int {
	return len(n.cells)
}

// Cells returns the cells in declaration order.
func (n *Network) Cells() []Cell {
	out := make([]Cell, len(n.cells))
	copy(out, n.cells)
	return out
}

// Cell looks up a cell by id.
func (n *Network) Cell(id string) (Cell, bool) {
	i, ok := n.index[id]
	if !ok {
		return Cell{}, false
	}
	return n.cells[i], true
}

// Connections returns the connections in declaration order.
func (n *Network) Connections() []Connection {
	out := make([]Connection, len(n.conns))
	copy(out, n.conns)
	return out
}

// Inbound returns the connections into cell id in declaration order.
func (n *Network) Inbound(id string) []Connection {
	i, ok := n.index[id]
	if !ok {
		return nil
	}
	out := make([]Connection, 0, len(n.inbound[i]))
	for _, ci := range n.inbound[i] {
		out = append(out, n.conns[ci])
	}
	return out
}

// Externals returns the names of sources that are not cells. Run expects an
// input sequence for each of them.
func (n *Network) Externals() []string {
	out := make([]string, len(n.externals))
	copy(out, n.externals)
	return out
}

// IsExternal reports whether name is used as a source and is not a cell.
func (n *Network) IsExternal(name string) bool {
	if _, ok := n.index[name]; ok {
		return false
	}
	for _, e := range n.externals {
		if e == name {
			return true
		}
	}
	return false
}

// Levels groups the cells into the frontiers a run would evaluate when every
// external input is supplied. It fails with ErrCyclicOrUnresolvedDependency
// when cells form a cycle.
func (n *Network) Levels() ([][]string, error) {
	inDegree := make([]int, len(n.inDegree))
	copy(inDegree, n.inDegree)

	var frontier []int
	for i, d := range inDegree {
		if d == 0 {
			frontier = append(frontier, i)
		}
	}

	var levels [][]string
	done := 0
	for len(frontier) > 0 {
		ids, next := n.advance(frontier, inDegree)
		levels = append(levels, ids)
		done += len(frontier)
		frontier = next
	}

	if done < len(n.cells) {
		return nil, n.unresolved(inDegree, nil)
	}
	return levels, nil
}

// advance completes a frontier: it decrements the in-degree of every
// successor and returns the frontier's ids along with the cells that became
// ready, in declaration order.
func (n *Network) advance(frontier []int, inDegree []int) ([]string, []int) {
	ids := make([]string, len(frontier))
	var next []int
	for j, idx := range frontier {
		ids[j] = n.cells[idx].ID
		for _, ci := range n.outbound[idx] {
			t := n.index[n.conns[ci].Target]
			inDegree[t]--
			if inDegree[t] == 0 {
				next = append(next, t)
			}
		}
	}
	sort.Ints(next)
	return ids, next
}
