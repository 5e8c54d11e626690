package graph

import (
	"sort"
	"strings"

	"callmap/internal/core/errors"
	"callmap/internal/engine/symbols"
)

func notFound(qname string) error {
	return errors.AddContext(errors.New(errors.CodeNotFound, "unknown symbol"), errors.CtxSymbol, qname)
}

// Callers returns the direct callers of qname, sorted.
func (g *CallGraph) Callers(qname string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[qname]; !ok {
		return nil, notFound(qname)
	}
	return sortedKeys(g.in[qname]), nil
}

// Callees returns the direct callees of qname, sorted.
func (g *CallGraph) Callees(qname string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[qname]; !ok {
		return nil, notFound(qname)
	}
	return sortedKeys(g.out[qname]), nil
}

func sortedKeys(m map[string]*Edge) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReachableFrom returns every symbol reachable from entry through one or more
// calls, sorted. Cycles are traversed once.
func (g *CallGraph) ReachableFrom(entry string) ([]string, error) {
	set, err := g.reachSet(entry)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Reachable reports whether target can be reached from entry. A symbol always
// reaches itself.
func (g *CallGraph) Reachable(entry, target string) (bool, error) {
	set, err := g.reachSet(entry)
	if err != nil {
		return false, err
	}
	if _, ok := g.Node(target); !ok {
		return false, notFound(target)
	}
	return entry == target || set[target], nil
}

func (g *CallGraph) reachSet(entry string) (map[string]bool, error) {
	if set, ok := g.reach.Get(entry); ok {
		return set, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[entry]; !ok {
		return nil, notFound(entry)
	}

	seen := make(map[string]bool)
	queue := []string{entry}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for next := range g.out[curr] {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	g.reach.Put(entry, seen)
	return seen, nil
}

// ShortestPath returns the shortest call chain from one symbol to another.
// Neighbors are visited in name order so ties break deterministically.
// maxDepth bounds the number of edges; zero means unbounded.
func (g *CallGraph) ShortestPath(from, to string, maxDepth int) ([]string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[from]; !ok {
		return nil, false, notFound(from)
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, false, notFound(to)
	}
	if from == to {
		return []string{from}, true, nil
	}

	prev := make(map[string]string)
	depth := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && depth[curr] >= maxDepth {
			continue
		}
		for _, next := range sortedKeys(g.out[curr]) {
			if _, visited := depth[next]; visited {
				continue
			}
			depth[next] = depth[curr] + 1
			prev[next] = curr
			if next == to {
				path := []string{to}
				for node := to; node != from; node = prev[node] {
					path = append(path, prev[node])
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, false, nil
}

// SurfaceEntry is a public symbol with its callers from other modules.
type SurfaceEntry struct {
	QualifiedName   string       `json:"qualified_name"`
	Kind            symbols.Kind `json:"kind"`
	ExternalCallers int          `json:"external_callers"`
	TotalCallers    int          `json:"total_callers"`
}

// PublicSurface lists every public class, function and method with the number
// of distinct callers declared outside its own module. Private symbols,
// modules and sentinels are never included.
func (g *CallGraph) PublicSurface() []SurfaceEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []SurfaceEntry
	for name, n := range g.nodes {
		if n.Visibility != symbols.Public || n.Kind == symbols.KindModule || n.IsSentinel() {
			continue
		}
		entry := SurfaceEntry{QualifiedName: name, Kind: n.Kind}
		for caller := range g.in[name] {
			entry.TotalCallers++
			if c, ok := g.nodes[caller]; ok && c.Module != n.Module {
				entry.ExternalCallers++
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out
}

// Unreferenced lists classes, functions and methods that nothing in the batch
// calls. Dunder methods are skipped since the runtime invokes them implicitly.
func (g *CallGraph) Unreferenced() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for name, n := range g.nodes {
		if n.Kind == symbols.KindModule || n.IsSentinel() || len(g.in[name]) > 0 {
			continue
		}
		if n.Kind == symbols.KindMethod && strings.HasPrefix(n.Name, "__") && strings.HasSuffix(n.Name, "__") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Stats struct {
	Modules         int `json:"modules"`
	Symbols         int `json:"symbols"`
	Edges           int `json:"edges"`
	Calls           int `json:"calls"`
	UnresolvedCalls int `json:"unresolved_calls"`
	ExternalCalls   int `json:"external_calls"`
}

func (g *CallGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Modules: len(g.modules), Edges: len(g.edges)}
	for _, n := range g.nodes {
		if !n.IsSentinel() {
			s.Symbols++
		}
	}
	for _, e := range g.edges {
		s.Calls += e.Count
		switch e.Callee {
		case symbols.Unresolved:
			s.UnresolvedCalls += e.Count
		case symbols.External:
			s.ExternalCalls += e.Count
		}
	}
	return s
}
