package output

import (
	"fmt"
	"strings"

	"callmap/internal/engine/graph"
	"callmap/internal/engine/symbols"
)

// DOTGenerator renders the call graph as Graphviz DOT, one cluster per module.
type DOTGenerator struct {
	graph     *graph.CallGraph
	highlight map[graph.EdgeKey]bool
}

func NewDOTGenerator(g *graph.CallGraph) *DOTGenerator {
	return &DOTGenerator{graph: g}
}

// SetHighlight marks the edges of a call chain, e.g. a shortest path.
func (d *DOTGenerator) SetHighlight(path []string) {
	d.highlight = make(map[graph.EdgeKey]bool, len(path))
	for i := 0; i+1 < len(path); i++ {
		d.highlight[graph.EdgeKey{Caller: path[i], Callee: path[i+1]}] = true
	}
}

func (d *DOTGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("digraph callgraph {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n")
	buf.WriteString("  ranksep=1.2;\n")
	buf.WriteString("  nodesep=0.5;\n")
	buf.WriteString("  overlap=false;\n\n")

	byModule := make(map[string][]graph.Node)
	var modules []string
	var sentinels []graph.Node
	for _, n := range d.graph.Nodes() {
		if n.IsSentinel() {
			sentinels = append(sentinels, n)
			continue
		}
		if _, ok := byModule[n.Module]; !ok {
			modules = append(modules, n.Module)
		}
		byModule[n.Module] = append(byModule[n.Module], n)
	}

	for i, module := range modules {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&buf, "    label=%q;\n", module)
		buf.WriteString("    style=filled;\n")
		buf.WriteString("    color=\"whitesmoke\";\n")
		buf.WriteString("    node [fillcolor=\"white\", style=\"rounded,filled\"];\n")
		for _, n := range byModule[module] {
			fmt.Fprintf(&buf, "    %q [%s];\n", n.QualifiedName, nodeAttrs(n))
		}
		buf.WriteString("  }\n\n")
	}

	buf.WriteString("  // Sentinels\n")
	for _, n := range sentinels {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, style=filled, fillcolor=\"gainsboro\", color=\"grey\"];\n", n.QualifiedName, n.QualifiedName)
	}
	buf.WriteString("\n")

	for _, e := range d.graph.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.Caller, e.Callee, d.edgeAttrs(e))
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func nodeAttrs(n graph.Node) string {
	label := n.Name
	if n.Kind == symbols.KindModule {
		label = "<module>"
	}
	if n.HasSignature() && n.Signature.Declared {
		label += n.Signature.String()
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch n.Kind {
	case symbols.KindClass:
		attrs = append(attrs, "shape=component")
	case symbols.KindModule:
		attrs = append(attrs, "shape=folder")
	}
	if n.Visibility == symbols.Private {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "color=\"grey40\"")
	} else {
		attrs = append(attrs, "color=\"darkslategrey\"")
	}
	return strings.Join(attrs, ", ")
}

func (d *DOTGenerator) edgeAttrs(e graph.Edge) string {
	var attrs []string
	if e.Count > 1 {
		attrs = append(attrs, fmt.Sprintf("label=\"x%d\"", e.Count))
	}
	switch {
	case d.highlight[graph.EdgeKey{Caller: e.Caller, Callee: e.Callee}]:
		attrs = append(attrs, "color=\"blue\"", "penwidth=3.0")
	case e.Callee == symbols.Unresolved:
		attrs = append(attrs, "color=\"red\"", "style=dashed")
	case !e.Resolved:
		attrs = append(attrs, "color=\"grey\"", "style=dashed")
	default:
		attrs = append(attrs, "color=\"forestgreen\"")
	}
	return strings.Join(attrs, ", ")
}
