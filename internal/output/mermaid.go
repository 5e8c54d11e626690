package output

import (
	"fmt"
	"strings"
	"unicode"

	"callmap/internal/engine/graph"
	"callmap/internal/engine/symbols"
)

// MermaidGenerator renders the call graph as a Mermaid flowchart with one
// subgraph per module.
type MermaidGenerator struct {
	graph *graph.CallGraph
}

func NewMermaidGenerator(g *graph.CallGraph) *MermaidGenerator {
	return &MermaidGenerator{graph: g}
}

func (m *MermaidGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString("flowchart LR\n")

	nodes := m.graph.Nodes()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.QualifiedName)
	}
	ids := makeMermaidIDs(names)

	current := ""
	for _, n := range nodes {
		if n.IsSentinel() || n.Kind == symbols.KindModule {
			continue
		}
		if n.Module != current {
			if current != "" {
				b.WriteString("  end\n")
			}
			current = n.Module
			fmt.Fprintf(&b, "  subgraph %s[\"%s\"]\n", sanitizeMermaidID("mod_"+n.Module), escapeMermaidLabel(n.Module))
		}
		shape := "[\"%s\"]"
		if n.Kind == symbols.KindClass {
			shape = "[[\"%s\"]]"
		}
		fmt.Fprintf(&b, "    %s"+shape+"\n", ids[n.QualifiedName], escapeMermaidLabel(n.Name))
	}
	if current != "" {
		b.WriteString("  end\n")
	}

	for _, n := range nodes {
		switch {
		case n.IsSentinel():
			fmt.Fprintf(&b, "  %s((\"%s\"))\n", ids[n.QualifiedName], escapeMermaidLabel(n.QualifiedName))
		case n.Kind == symbols.KindModule:
			fmt.Fprintf(&b, "  %s>\"%s\"]\n", ids[n.QualifiedName], escapeMermaidLabel(n.QualifiedName))
		}
	}

	for _, e := range m.graph.Edges() {
		arrow := "-->"
		if !e.Resolved {
			arrow = "-.->"
		}
		if e.Count > 1 {
			fmt.Fprintf(&b, "  %s %s|x%d| %s\n", ids[e.Caller], arrow, e.Count, ids[e.Callee])
			continue
		}
		fmt.Fprintf(&b, "  %s %s %s\n", ids[e.Caller], arrow, ids[e.Callee])
	}
	return b.String(), nil
}

func sanitizeMermaidID(name string) string {
	if name == "" {
		return "n"
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	out := b.String()
	if unicode.IsDigit(rune(out[0])) {
		return "n_" + out
	}
	return out
}

// makeMermaidIDs assigns unique IDs in input order; names that sanitize to the
// same ID get a numeric suffix.
func makeMermaidIDs(names []string) map[string]string {
	ids := make(map[string]string, len(names))
	used := make(map[string]int, len(names))
	for _, name := range names {
		base := sanitizeMermaidID(name)
		idx := used[base]
		used[base] = idx + 1
		if idx == 0 {
			ids[name] = base
			continue
		}
		ids[name] = fmt.Sprintf("%s_%d", base, idx+1)
	}
	return ids
}

func escapeMermaidLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
