package output

import (
	"fmt"
	"strings"

	"callmap/internal/engine/graph"
)

// TSVGenerator renders the deduplicated edge list as tab-separated rows.
type TSVGenerator struct {
	graph *graph.CallGraph
}

func NewTSVGenerator(g *graph.CallGraph) *TSVGenerator {
	return &TSVGenerator{graph: g}
}

func (t *TSVGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("Caller\tCallee\tCount\tResolved\n")
	for _, e := range t.graph.Edges() {
		fmt.Fprintf(&buf, "%s\t%s\t%d\t%t\n", e.Caller, e.Callee, e.Count, e.Resolved)
	}
	return buf.String(), nil
}

// GenerateSurface renders a public surface listing.
func (t *TSVGenerator) GenerateSurface(entries []graph.SurfaceEntry) (string, error) {
	var buf strings.Builder

	buf.WriteString("Symbol\tKind\tExternalCallers\tTotalCallers\n")
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s\t%s\t%d\t%d\n", e.QualifiedName, e.Kind, e.ExternalCallers, e.TotalCallers)
	}
	return buf.String(), nil
}
