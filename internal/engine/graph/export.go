package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"
)

type SymbolView struct {
	QualifiedName string             `json:"qualified_name"`
	Module        string             `json:"module,omitempty"`
	Kind          symbols.Kind       `json:"kind"`
	Visibility    symbols.Visibility `json:"visibility"`
	Signature     *symbols.Signature `json:"signature,omitempty"`
	Path          string             `json:"path,omitempty"`
	Line          int                `json:"line,omitempty"`
	Column        int                `json:"column,omitempty"`
}

type EdgeView struct {
	Caller   string `json:"caller"`
	Callee   string `json:"callee"`
	Count    int    `json:"count"`
	Resolved bool   `json:"resolved"`
}

// Export is the serializable form of one analysis run. Every slice is sorted,
// so two exports of the same batch are byte-identical.
type Export struct {
	RunID       string              `json:"run_id,omitempty"`
	Symbols     []SymbolView        `json:"symbols"`
	Edges       []EdgeView          `json:"edges"`
	Diagnostics []errors.Diagnostic `json:"diagnostics"`
}

// Export snapshots the graph together with the run's diagnostics.
func (g *CallGraph) Export(diags []errors.Diagnostic) *Export {
	nodes := g.Nodes()
	edges := g.Edges()

	out := &Export{
		Symbols:     make([]SymbolView, 0, len(nodes)),
		Edges:       make([]EdgeView, 0, len(edges)),
		Diagnostics: append([]errors.Diagnostic{}, diags...),
	}
	for _, n := range nodes {
		view := SymbolView{
			QualifiedName: n.QualifiedName,
			Module:        n.Module,
			Kind:          n.Kind,
			Visibility:    n.Visibility,
			Path:          n.Location.File,
			Line:          n.Location.Line,
			Column:        n.Location.Column,
		}
		if n.HasSignature() && n.Signature.Declared {
			sig := n.Signature
			view.Signature = &sig
		}
		out.Symbols = append(out.Symbols, view)
	}
	for _, e := range edges {
		out.Edges = append(out.Edges, EdgeView{Caller: e.Caller, Callee: e.Callee, Count: e.Count, Resolved: e.Resolved})
	}
	errors.SortDiagnostics(out.Diagnostics)
	return out
}

// FromExport rebuilds a queryable graph from a saved or decoded export.
// Signatures keep their shape but not which parameters were declared.
func FromExport(exp *Export) (*CallGraph, error) {
	g := New()
	byModule := make(map[string]*Contribution)
	var order []string
	owner := make(map[string]string, len(exp.Symbols))
	for _, sym := range exp.Symbols {
		if sym.Kind == symbols.KindSentinel {
			continue
		}
		c, ok := byModule[sym.Module]
		if !ok {
			c = &Contribution{Module: sym.Module}
			byModule[sym.Module] = c
			order = append(order, sym.Module)
		}
		node := Node{
			QualifiedName: sym.QualifiedName,
			Name:          leafName(sym.QualifiedName),
			Module:        sym.Module,
			Kind:          sym.Kind,
			Visibility:    sym.Visibility,
			Location:      parser.Location{File: sym.Path, Line: sym.Line, Column: sym.Column},
		}
		if sym.Signature != nil {
			node.Signature = *sym.Signature
			node.Signature.Declared = true
		}
		c.Nodes = append(c.Nodes, node)
		owner[sym.QualifiedName] = sym.Module
	}
	for _, e := range exp.Edges {
		if c, ok := byModule[owner[e.Caller]]; ok {
			c.Edges = append(c.Edges, Edge{Caller: e.Caller, Callee: e.Callee, Count: e.Count, Resolved: e.Resolved})
		}
	}
	for _, module := range order {
		if err := g.Apply(*byModule[module]); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func leafName(qname string) string {
	if i := strings.LastIndex(qname, "."); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

func (e *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

func ReadExport(r io.Reader) (*Export, error) {
	var e Export
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "decode export")
	}
	return &e, nil
}
