// Package visualization renders cell networks in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/cdnet/internal/models"
	"github.com/nvandessel/cdnet/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (want dot or json)", s)
	}
}

// nodeColors maps cell kinds to DOT colors.
var nodeColors = map[models.Kind]string{
	models.KindEI:       "tomato",
	models.KindSimpleEE: "steelblue",
	models.KindEE:       "mediumseagreen",
	models.KindCD:       "goldenrod",
}

// edgeStyles maps input types to DOT edge attributes.
var edgeStyles = map[models.InputType]string{
	models.InputExcitatory: "style=solid",
	models.InputInhibitory: "style=dashed, arrowhead=tee",
}

// RenderDOT produces a Graphviz DOT representation of the network.
// External inputs are drawn as ellipses. When the network is acyclic, cells
// that share a scheduling frontier are placed on the same rank.
func RenderDOT(n *network.Network) string {
	var b strings.Builder
	b.WriteString("digraph cdnet {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, name := range n.Externals() {
		b.WriteString(fmt.Sprintf("  %q [shape=ellipse, fillcolor=\"white\"];\n", name))
	}
	for _, c := range n.Cells() {
		color := nodeColors[c.Kind.Kind]
		if color == "" {
			color = "lightgray"
		}
		label := truncate(c.ID, 40) + "\n" + c.Kind.String()
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q, tooltip=%q];\n",
			c.ID, label, color, "window="+c.Window.String()))
	}
	b.WriteString("\n")

	for _, conn := range n.Connections() {
		style := edgeStyles[conn.InputType]
		if style == "" {
			style = "style=solid"
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", conn.Source, conn.Target, style))
	}

	// Cyclic networks have no frontiers; they render without ranks.
	if levels, err := n.Levels(); err == nil {
		b.WriteString("\n")
		for _, level := range levels {
			quoted := make([]string, len(level))
			for i, id := range level {
				quoted[i] = fmt.Sprintf("%q", id)
			}
			b.WriteString(fmt.Sprintf("  { rank=same; %s; }\n", strings.Join(quoted, "; ")))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and edges arrays.
// Nodes carry their scheduling frontier; levels is omitted for cyclic
// networks.
func RenderJSON(n *network.Network) map[string]interface{} {
	frontier := make(map[string]int)
	levels, err := n.Levels()
	if err == nil {
		for i, level := range levels {
			for _, id := range level {
				frontier[id] = i
			}
		}
	}

	jsonNodes := make([]map[string]interface{}, 0, len(n.Externals())+n.Len())
	for _, name := range n.Externals() {
		jsonNodes = append(jsonNodes, map[string]interface{}{
			"id":       name,
			"external": true,
		})
	}
	for _, c := range n.Cells() {
		node := map[string]interface{}{
			"id":      c.ID,
			"kind":    c.Kind.Kind.String(),
			"delta_s": c.Window.DeltaS,
		}
		if c.Kind.Kind == models.KindEE || c.Kind.Kind == models.KindCD {
			node["n_spikes"] = c.Kind.NSpikes
		}
		if f, ok := frontier[c.ID]; ok {
			node["frontier"] = f
		}
		jsonNodes = append(jsonNodes, node)
	}

	conns := n.Connections()
	jsonEdges := make([]map[string]interface{}, 0, len(conns))
	for _, conn := range conns {
		jsonEdges = append(jsonEdges, map[string]interface{}{
			"source":     conn.Source,
			"target":     conn.Target,
			"input_type": string(conn.InputType),
		})
	}

	out := map[string]interface{}{
		"fs":         n.Fs(),
		"nodes":      jsonNodes,
		"edges":      jsonEdges,
		"node_count": len(jsonNodes),
		"edge_count": len(jsonEdges),
	}
	if err == nil {
		out["levels"] = levels
	} else {
		out["cycle"] = err.Error()
	}
	return out
}

// truncate shortens s to maxLen characters, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
