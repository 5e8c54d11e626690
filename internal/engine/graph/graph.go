package graph

import (
	"sort"
	"sync"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/resolver"
	"callmap/internal/engine/symbols"
	"callmap/internal/shared/observability"
	"callmap/internal/shared/util"
)

const reachCacheSize = 256

type Node struct {
	QualifiedName string
	Name          string
	Module        string
	Kind          symbols.Kind
	Visibility    symbols.Visibility
	Signature     symbols.Signature
	Location      parser.Location
}

func (n *Node) IsSentinel() bool { return n.Kind == symbols.KindSentinel }

// HasSignature reports whether the node is callable with a parameter shape.
func (n *Node) HasSignature() bool {
	switch n.Kind {
	case symbols.KindFunction, symbols.KindMethod, symbols.KindClass:
		return true
	}
	return false
}

type EdgeKey struct {
	Caller string
	Callee string
}

type Edge struct {
	Caller   string
	Callee   string
	Count    int
	Resolved bool
}

// Contribution is everything one module adds to the graph: its symbols and
// the edges whose caller it declares.
type Contribution struct {
	Module string
	Nodes  []Node
	Edges  []Edge
}

// NewContribution folds a module's resolved call sites into deduplicated edges.
func NewContribution(t *symbols.Table, res *resolver.Result) Contribution {
	c := Contribution{Module: t.Module, Nodes: make([]Node, 0, len(t.Symbols))}
	for i := range t.Symbols {
		sym := &t.Symbols[i]
		c.Nodes = append(c.Nodes, Node{
			QualifiedName: sym.QualifiedName,
			Name:          sym.Name,
			Module:        t.Module,
			Kind:          sym.Kind,
			Visibility:    sym.Visibility,
			Signature:     sym.Signature,
			Location:      sym.Location,
		})
	}
	if res == nil {
		return c
	}

	index := make(map[EdgeKey]int)
	for _, call := range res.Calls {
		key := EdgeKey{call.Caller, call.Callee}
		if i, ok := index[key]; ok {
			c.Edges[i].Count++
			continue
		}
		index[key] = len(c.Edges)
		c.Edges = append(c.Edges, Edge{Caller: call.Caller, Callee: call.Callee, Count: 1, Resolved: call.Resolved})
	}
	return c
}

type moduleEntry struct {
	nodes []string
	edges []EdgeKey
}

// CallGraph is the assembled call graph of a batch. A single aggregator
// mutates it; readers may query concurrently.
type CallGraph struct {
	mu sync.RWMutex

	nodes   map[string]*Node
	owners  map[string]string // qualified name -> declaring module
	edges   map[EdgeKey]*Edge
	out     map[string]map[string]*Edge
	in      map[string]map[string]*Edge
	modules map[string]*moduleEntry

	reach *LRUCache[string, map[string]bool]
}

func New() *CallGraph {
	g := &CallGraph{
		nodes:   make(map[string]*Node),
		owners:  make(map[string]string),
		edges:   make(map[EdgeKey]*Edge),
		out:     make(map[string]map[string]*Edge),
		in:      make(map[string]map[string]*Edge),
		modules: make(map[string]*moduleEntry),
		reach:   NewLRUCache[string, map[string]bool](reachCacheSize),
	}
	for _, name := range []string{symbols.Unresolved, symbols.External} {
		g.nodes[name] = &Node{QualifiedName: name, Name: name, Kind: symbols.KindSentinel, Visibility: symbols.Public}
	}
	return g
}

// Apply replaces a module's contribution. Edges owned by other modules are
// left untouched, so applying a module twice is idempotent.
//
// A module may only declare names no other module owns, and only edges whose
// caller it declares. A conflicting contribution is rejected with an
// INTERNAL_INVARIANT error and leaves the graph unchanged.
func (g *CallGraph) Apply(c Contribution) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkContributionLocked(c); err != nil {
		return err
	}

	g.removeModuleLocked(c.Module)
	entry := &moduleEntry{}
	for i := range c.Nodes {
		n := c.Nodes[i]
		g.nodes[n.QualifiedName] = &n
		g.owners[n.QualifiedName] = c.Module
		entry.nodes = append(entry.nodes, n.QualifiedName)
	}
	for _, e := range c.Edges {
		key := EdgeKey{e.Caller, e.Callee}
		edge := e
		g.edges[key] = &edge
		if g.out[e.Caller] == nil {
			g.out[e.Caller] = make(map[string]*Edge)
		}
		if g.in[e.Callee] == nil {
			g.in[e.Callee] = make(map[string]*Edge)
		}
		g.out[e.Caller][e.Callee] = &edge
		g.in[e.Callee][e.Caller] = &edge
		entry.edges = append(entry.edges, key)
	}
	g.modules[c.Module] = entry
	g.changedLocked()
	return nil
}

func (g *CallGraph) checkContributionLocked(c Contribution) error {
	declared := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if symbols.IsSentinel(n.QualifiedName) {
			return errors.AddContext(
				errors.Invariant("module %s declares reserved name %q", c.Module, n.QualifiedName),
				errors.CtxModule, c.Module)
		}
		if declared[n.QualifiedName] {
			return errors.AddContext(
				errors.Invariant("module %s declares %q twice", c.Module, n.QualifiedName),
				errors.CtxModule, c.Module)
		}
		declared[n.QualifiedName] = true
		if owner, ok := g.owners[n.QualifiedName]; ok && owner != c.Module {
			return errors.AddContext(errors.AddContext(
				errors.Invariant("symbol %q is declared by both %s and %s", n.QualifiedName, owner, c.Module),
				errors.CtxModule, c.Module), errors.CtxSymbol, n.QualifiedName)
		}
	}
	seen := make(map[EdgeKey]bool, len(c.Edges))
	for _, e := range c.Edges {
		key := EdgeKey{e.Caller, e.Callee}
		if !declared[e.Caller] {
			return errors.AddContext(
				errors.Invariant("module %s contributes edge %s -> %s for a caller it does not declare", c.Module, e.Caller, e.Callee),
				errors.CtxSymbol, e.Caller)
		}
		if seen[key] {
			return errors.AddContext(
				errors.Invariant("module %s contributes edge %s -> %s twice", c.Module, e.Caller, e.Callee),
				errors.CtxSymbol, e.Caller)
		}
		seen[key] = true
	}
	return nil
}

// RemoveModule drops a module's symbols and the edges it contributed.
func (g *CallGraph) RemoveModule(module string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeModuleLocked(module)
	g.changedLocked()
}

func (g *CallGraph) removeModuleLocked(module string) {
	entry, ok := g.modules[module]
	if !ok {
		return
	}
	for _, key := range entry.edges {
		delete(g.edges, key)
		if m := g.out[key.Caller]; m != nil {
			delete(m, key.Callee)
			if len(m) == 0 {
				delete(g.out, key.Caller)
			}
		}
		if m := g.in[key.Callee]; m != nil {
			delete(m, key.Caller)
			if len(m) == 0 {
				delete(g.in, key.Callee)
			}
		}
	}
	for _, name := range entry.nodes {
		delete(g.nodes, name)
		delete(g.owners, name)
	}
	delete(g.modules, module)
}

func (g *CallGraph) changedLocked() {
	g.reach.Clear()
	observability.GraphNodes.Set(float64(len(g.nodes)))
	observability.GraphEdges.Set(float64(len(g.edges)))
}

// Validate checks that every edge endpoint is a node and that every node
// belongs to exactly the module that declared it. A violation is an engine
// bug and fails the run.
func (g *CallGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, module := range util.SortedStringKeys(g.modules) {
		for _, name := range g.modules[module].nodes {
			if owner := g.owners[name]; owner != module {
				return errors.AddContext(
					errors.Invariant("symbol %q of module %s is owned by %q", name, module, owner),
					errors.CtxSymbol, name)
			}
		}
	}
	for _, key := range g.sortedEdgeKeysLocked() {
		for _, end := range []string{key.Caller, key.Callee} {
			if _, ok := g.nodes[end]; !ok {
				return errors.AddContext(
					errors.Invariant("edge %s -> %s references unknown symbol %q", key.Caller, key.Callee, end),
					errors.CtxSymbol, end)
			}
		}
	}
	return nil
}

func (g *CallGraph) Node(qname string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[qname]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

// Nodes returns every node sorted by qualified name.
func (g *CallGraph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out
}

// Edges returns every edge sorted by caller, then callee.
func (g *CallGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := g.sortedEdgeKeysLocked()
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, *g.edges[k])
	}
	return out
}

func (g *CallGraph) Modules() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.modules))
	for m := range g.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (g *CallGraph) sortedEdgeKeysLocked() []EdgeKey {
	keys := make([]EdgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Caller != keys[j].Caller {
			return keys[i].Caller < keys[j].Caller
		}
		return keys[i].Callee < keys[j].Callee
	})
	return keys
}
