package output

import (
	"strings"
	"testing"

	"callmap/internal/engine/graph"
	"callmap/internal/engine/symbols"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph(t *testing.T) *graph.CallGraph {
	t.Helper()
	g := graph.New()
	err := g.Apply(graph.Contribution{
		Module: "app",
		Nodes: []graph.Node{
			{QualifiedName: "app", Name: "app", Module: "app", Kind: symbols.KindModule, Visibility: symbols.Public},
			{QualifiedName: "app.main", Name: "main", Module: "app", Kind: symbols.KindFunction, Visibility: symbols.Public,
				Signature: symbols.Signature{Declared: true}},
			{QualifiedName: "app._cache", Name: "_cache", Module: "app", Kind: symbols.KindFunction, Visibility: symbols.Private},
		},
		Edges: []graph.Edge{
			{Caller: "app.main", Callee: "app._cache", Count: 2, Resolved: true},
			{Caller: "app.main", Callee: symbols.External, Count: 1},
			{Caller: "app._cache", Callee: symbols.Unresolved, Count: 1},
		},
	})
	require.NoError(t, err)
	return g
}

func TestDOTGenerator(t *testing.T) {
	gen := NewDOTGenerator(sampleGraph(t))
	gen.SetHighlight([]string{"app.main", "app._cache"})
	dot, err := gen.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(dot, "digraph callgraph {"))
	assert.Contains(t, dot, `label="app"`)
	assert.Contains(t, dot, `"app.main" [label="main(0)"`)
	assert.Contains(t, dot, `"app.main" -> "app._cache" [label="x2", color="blue", penwidth=3.0]`)
	assert.Contains(t, dot, `"app._cache" -> "<unresolved>" [color="red", style=dashed]`)
	assert.Contains(t, dot, `"<external>" [label="<external>", shape=ellipse`)
	assert.Contains(t, dot, "dashed\", color=\"grey40\"")
}

func TestTSVGenerator(t *testing.T) {
	g := sampleGraph(t)
	gen := NewTSVGenerator(g)

	tsv, err := gen.Generate()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(tsv), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Caller\tCallee\tCount\tResolved", lines[0])
	assert.Equal(t, "app._cache\t<unresolved>\t1\tfalse", lines[1])
	assert.Equal(t, "app.main\t<external>\t1\tfalse", lines[2])
	assert.Equal(t, "app.main\tapp._cache\t2\ttrue", lines[3])

	surface, err := gen.GenerateSurface(g.PublicSurface())
	require.NoError(t, err)
	assert.Contains(t, surface, "app.main\tfunction\t0\t0\n")
	assert.NotContains(t, surface, "app._cache")
}

func TestMermaidGenerator(t *testing.T) {
	out, err := NewMermaidGenerator(sampleGraph(t)).Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "flowchart LR\n"))
	assert.Contains(t, out, `subgraph mod_app["app"]`)
	assert.Contains(t, out, "app_main -->|x2| app__cache")
	assert.Contains(t, out, "app_main -.-> _external_")
	assert.Contains(t, out, `_unresolved_(("<unresolved>"))`)
}

func TestMakeMermaidIDs(t *testing.T) {
	ids := makeMermaidIDs([]string{"a.b", "a_b", "1x"})
	assert.Equal(t, "a_b", ids["a.b"])
	assert.Equal(t, "a_b_2", ids["a_b"])
	assert.Equal(t, "n_1x", ids["1x"])
}
