package graph

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"callmap/internal/core/errors"
	"callmap/internal/engine/symbols"
)

const (
	defaultTreeDepth = 5
	defaultPathDepth = 5
	defaultPathLimit = 100
)

// FindSymbols returns the symbols whose qualified name matches pattern,
// sorted by name. A pattern with glob metacharacters must match the whole
// name; a plain pattern matches any name containing it. Matching ignores
// case. When kinds is non-empty only those kinds are returned.
func (g *CallGraph) FindSymbols(pattern string, kinds ...symbols.Kind) ([]Node, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, errors.New(errors.CodeValidationError, "empty symbol pattern")
	}

	match := func(name string) bool { return strings.Contains(name, pattern) }
	if strings.ContainsAny(pattern, "*?[{") {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.AddContext(
				errors.Wrap(err, errors.CodeValidationError, "invalid symbol pattern"), "pattern", pattern)
		}
		match = compiled.Match
	}

	wanted := make(map[symbols.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Node
	for name, n := range g.nodes {
		if n.IsSentinel() || (len(wanted) > 0 && !wanted[n.Kind]) {
			continue
		}
		if match(strings.ToLower(name)) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out, nil
}

// CalleeTree layers everything qname calls by call distance. Layer 0 holds
// qname itself; each symbol appears once, at its shortest distance.
// maxDepth <= 0 uses a depth of 5.
func (g *CallGraph) CalleeTree(qname string, maxDepth int) ([][]string, error) {
	return g.layers(qname, maxDepth, g.out)
}

// CallerTree layers the transitive callers of qname by call distance.
func (g *CallGraph) CallerTree(qname string, maxDepth int) ([][]string, error) {
	return g.layers(qname, maxDepth, g.in)
}

func (g *CallGraph) layers(start string, maxDepth int, adj map[string]map[string]*Edge) ([][]string, error) {
	if maxDepth <= 0 {
		maxDepth = defaultTreeDepth
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[start]; !ok {
		return nil, notFound(start)
	}

	visited := map[string]bool{start: true}
	levels := [][]string{{start}}
	for depth := 1; depth <= maxDepth; depth++ {
		var next []string
		for _, curr := range levels[depth-1] {
			for neighbor := range adj[curr] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				next = append(next, neighbor)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Strings(next)
		levels = append(levels, next)
	}
	return levels, nil
}

// AllPaths enumerates the simple call chains from one symbol to another with
// at most maxDepth calls, in lexical order of their symbols. At most limit
// chains are returned. maxDepth <= 0 uses 5 and limit <= 0 uses 100.
func (g *CallGraph) AllPaths(from, to string, maxDepth, limit int) ([][]string, error) {
	if maxDepth <= 0 {
		maxDepth = defaultPathDepth
	}
	if limit <= 0 {
		limit = defaultPathLimit
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[from]; !ok {
		return nil, notFound(from)
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, notFound(to)
	}

	var paths [][]string
	onPath := make(map[string]bool)
	var walk func(path []string)
	walk = func(path []string) {
		if len(paths) >= limit {
			return
		}
		curr := path[len(path)-1]
		if curr == to {
			paths = append(paths, append([]string(nil), path...))
			return
		}
		if len(path) > maxDepth {
			return
		}
		onPath[curr] = true
		defer delete(onPath, curr)
		for _, next := range sortedKeys(g.out[curr]) {
			if !onPath[next] {
				walk(append(path, next))
			}
		}
	}
	walk([]string{from})
	return paths, nil
}
