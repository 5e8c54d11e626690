package symbols

import (
	"fmt"
	"path/filepath"
	"strings"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
)

// Table is the scope arena and symbol set of one module. Scopes and symbols
// refer to each other by index only; the whole table is dropped as a unit.
type Table struct {
	Module  string
	File    *parser.File
	Scopes  []Scope
	Symbols []Symbol

	// IsPackage is set for __init__ modules, whose relative imports resolve
	// against the module itself.
	IsPackage bool

	declScopes []ScopeID // File.Decls index -> body scope
	declSyms   []SymbolID
	byQName    map[string]SymbolID
}

const RootScope ScopeID = 0

// Build walks a parsed module once and produces its table.
func Build(file *parser.File, policy VisibilityPolicy) (*Table, error) {
	if file == nil || file.Module == "" {
		return nil, errors.Invariant("module without a name cannot own scopes")
	}

	base := filepath.Base(file.Path)
	t := &Table{
		Module:     file.Module,
		File:       file,
		IsPackage:  base == "__init__.py" || base == "__init__.pyi",
		declScopes: make([]ScopeID, len(file.Decls)),
		declSyms:   make([]SymbolID, len(file.Decls)),
		byQName:    make(map[string]SymbolID, len(file.Decls)+1),
	}

	leaf := file.Module
	if i := strings.LastIndex(leaf, "."); i >= 0 {
		leaf = leaf[i+1:]
	}
	modSym := t.addSymbol(Symbol{
		Name:          leaf,
		QualifiedName: file.Module,
		Kind:          KindModule,
		Visibility:    policy.Classify(leaf),
		Location:      parser.Location{File: file.Path, Line: 1, Column: 1},
		Scope:         NoScope,
	})
	t.Symbols[modSym].Body = t.addScope(ScopeModule, NoScope, modSym)

	// Redefinitions keep the last declaration under the plain name; earlier
	// ones get a #n suffix so every declaration stays a distinct node.
	type slot struct {
		parent int
		name   string
	}
	total := make(map[slot]int)
	for _, d := range file.Decls {
		total[slot{d.Parent, d.Name}]++
	}
	seen := make(map[slot]int)

	for i, d := range file.Decls {
		if d.Parent >= i || d.Parent < parser.ModuleLevel {
			return nil, errors.AddContext(
				errors.Invariant("declaration %q has no enclosing scope", d.Name),
				errors.CtxModule, file.Module)
		}
		scope := t.ScopeOf(d.Parent)
		parentSym := t.Scopes[scope].Owner

		key := slot{d.Parent, d.Name}
		seen[key]++
		qname := t.Symbols[parentSym].QualifiedName + "." + d.Name
		if seen[key] < total[key] {
			qname = fmt.Sprintf("%s#%d", qname, seen[key])
		}

		sym := Symbol{
			Name:          d.Name,
			QualifiedName: qname,
			Visibility:    policy.Classify(d.Name),
			Location:      d.Location,
			Scope:         scope,
			Params:        d.Params,
			Returns:       d.Returns,
			Bases:         d.Bases,
			Decorators:    d.Decorators,
		}
		scopeKind := ScopeFunction
		switch {
		case d.Kind == parser.DeclClass:
			sym.Kind = KindClass
			scopeKind = ScopeClass
		case t.Scopes[scope].Kind == ScopeClass:
			sym.Kind = KindMethod
			sym.Receiver = d.Receiver
			sym.Signature = signatureOf(d.Params, d.Receiver)
		default:
			sym.Kind = KindFunction
			sym.Signature = signatureOf(d.Params, "")
		}

		id := t.addSymbol(sym)
		t.declSyms[i] = id
		t.declScopes[i] = t.addScope(scopeKind, scope, id)
		t.Symbols[id].Body = t.declScopes[i]

		sc := &t.Scopes[scope]
		sc.Symbols = append(sc.Symbols, id)
		sc.names[d.Name] = id

		// A class constructor takes the shape of its own __init__.
		if sym.Kind == KindMethod && d.Name == "__init__" {
			t.Symbols[parentSym].Signature = t.Symbols[id].Signature
		}
	}

	for i, imp := range file.Imports {
		s := t.ScopeOf(imp.Parent)
		t.Scopes[s].Imports = append(t.Scopes[s].Imports, i)
	}
	for i, call := range file.Calls {
		s := t.ScopeOf(call.Parent)
		t.Scopes[s].Calls = append(t.Scopes[s].Calls, i)
	}
	for i, a := range file.Assignments {
		s := t.ScopeOf(a.Parent)
		t.Scopes[s].Assignments = append(t.Scopes[s].Assignments, i)
	}
	return t, nil
}

func (t *Table) addSymbol(sym Symbol) SymbolID {
	id := SymbolID(len(t.Symbols))
	sym.ID = id
	t.Symbols = append(t.Symbols, sym)
	t.byQName[sym.QualifiedName] = id
	return id
}

func (t *Table) addScope(kind ScopeKind, parent ScopeID, owner SymbolID) ScopeID {
	id := ScopeID(len(t.Scopes))
	t.Scopes = append(t.Scopes, Scope{
		ID:     id,
		Kind:   kind,
		Parent: parent,
		Owner:  owner,
		names:  make(map[string]SymbolID),
	})
	if parent != NoScope {
		t.Scopes[parent].Children = append(t.Scopes[parent].Children, id)
	}
	return id
}

// ScopeOf maps a parser Parent index to the scope it opens.
func (t *Table) ScopeOf(declIndex int) ScopeID {
	if declIndex == parser.ModuleLevel {
		return RootScope
	}
	return t.declScopes[declIndex]
}

func (t *Table) Symbol(id SymbolID) *Symbol { return &t.Symbols[id] }

func (t *Table) Scope(id ScopeID) *Scope { return &t.Scopes[id] }

func (t *Table) ModuleSymbol() *Symbol { return &t.Symbols[0] }

// Owner returns the symbol a scope belongs to: the caller of any call made in it.
func (t *Table) Owner(scope ScopeID) *Symbol {
	return &t.Symbols[t.Scopes[scope].Owner]
}

// Lookup finds the live declaration of name directly in scope.
func (t *Table) Lookup(scope ScopeID, name string) (SymbolID, bool) {
	id, ok := t.Scopes[scope].names[name]
	return id, ok
}

func (t *Table) ByQualifiedName(qname string) (SymbolID, bool) {
	id, ok := t.byQName[qname]
	return id, ok
}

// Member looks up name in a class or function body.
func (t *Table) Member(owner SymbolID, name string) (SymbolID, bool) {
	body := t.Symbols[owner].Body
	if body == NoScope {
		return NoSymbol, false
	}
	return t.Lookup(body, name)
}

// TopLevel returns the live module-level declarations in source order.
func (t *Table) TopLevel() []SymbolID {
	var out []SymbolID
	root := &t.Scopes[RootScope]
	for _, id := range root.Symbols {
		if live, ok := root.names[t.Symbols[id].Name]; ok && live == id {
			out = append(out, id)
		}
	}
	return out
}

// EnclosingMethod walks outward from scope through function scopes and
// returns the first method, which supplies the receiver for self-calls.
func (t *Table) EnclosingMethod(scope ScopeID) (SymbolID, bool) {
	for s := scope; s != NoScope; s = t.Scopes[s].Parent {
		sc := &t.Scopes[s]
		if sc.Kind != ScopeFunction {
			return NoSymbol, false
		}
		if sym := &t.Symbols[sc.Owner]; sym.Kind == KindMethod && sym.Receiver != "" {
			return sym.ID, true
		}
	}
	return NoSymbol, false
}

// ClassOf returns the class declaring a method.
func (t *Table) ClassOf(method SymbolID) SymbolID {
	return t.Scopes[t.Symbols[method].Scope].Owner
}
