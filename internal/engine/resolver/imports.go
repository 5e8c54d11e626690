package resolver

import (
	"fmt"
	"strings"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetModule
	targetSymbol
	targetExternal
)

// target is what a name or dotted chain denotes: a module of the batch, a
// symbol in one of its tables, or something outside the analyzed sources.
type target struct {
	kind  targetKind
	name  string // module path, or dotted name for external targets
	table *symbols.Table
	id    symbols.SymbolID
}

func (t target) symbol() *symbols.Symbol { return t.table.Symbol(t.id) }

func (t target) isClass() bool {
	return t.kind == targetSymbol && t.symbol().Kind == symbols.KindClass
}

func symbolTarget(t *symbols.Table, id symbols.SymbolID) target {
	return target{kind: targetSymbol, table: t, id: id, name: t.Symbol(id).QualifiedName}
}

func externalTarget(name string) target {
	return target{kind: targetExternal, name: name}
}

func (r *Resolver) moduleTarget(name string) target {
	if r.packages[name] {
		return target{kind: targetModule, name: name, table: r.tables[name]}
	}
	return externalTarget(name)
}

// bound returns the import bindings declared directly in scope. A scope that is
// still being bound (an import cycle) yields whatever it has so far.
func (r *Resolver) bound(t *symbols.Table, scope symbols.ScopeID) map[string]target {
	key := scopeKey{t.Module, scope}
	if b, ok := r.bindings[key]; ok {
		return b
	}
	b := make(map[string]target)
	r.bindings[key] = b
	for _, idx := range t.Scope(scope).Imports {
		r.bindImport(t, key, b, t.File.Imports[idx])
	}
	return b
}

func (r *Resolver) bindImport(t *symbols.Table, key scopeKey, b map[string]target, imp parser.Import) {
	if !imp.From {
		for _, n := range imp.Names {
			if !r.packages[n.Name] {
				r.reportImport(t, imp, n.Name, "module %q is not part of the analyzed sources")
			}
			if n.Alias != "" {
				b[n.Alias] = r.moduleTarget(n.Name)
				continue
			}
			// import a.b.c binds a; the chain is walked at use.
			head := n.Name
			if i := strings.Index(head, "."); i >= 0 {
				head = head[:i]
			}
			b[head] = r.moduleTarget(head)
		}
		return
	}

	base, ok := r.absoluteModule(t, imp)
	if !ok {
		r.reportImport(t, imp, strings.Repeat(".", imp.Level)+imp.Module, "relative import %q escapes the top-level package")
		for _, n := range imp.Names {
			b[localName(n)] = externalTarget(n.Name)
		}
		return
	}

	if imp.Wildcard {
		src, known := r.tables[base]
		if !known {
			r.reportImport(t, imp, base, "wildcard import from %q cannot be expanded")
			r.starExternal[key] = true
			return
		}
		for _, id := range src.TopLevel() {
			if sym := src.Symbol(id); sym.IsPublic() {
				b[sym.Name] = symbolTarget(src, id)
			}
		}
		return
	}

	for _, n := range imp.Names {
		if tgt, found := r.moduleMember(base, n.Name); found {
			b[localName(n)] = tgt
			continue
		}
		if r.packages[base] {
			r.reportImport(t, imp, base+"."+n.Name, "name %q is not defined by its module")
		} else {
			r.reportImport(t, imp, base, "module %q is not part of the analyzed sources")
		}
		b[localName(n)] = externalTarget(base + "." + n.Name)
	}
}

func localName(n parser.ImportName) string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

func (r *Resolver) reportImport(t *symbols.Table, imp parser.Import, name, format string) {
	if !r.opts.ReportExternalImports {
		return
	}
	msg := fmt.Sprintf(format, name)
	if isStdlibModule(name) {
		msg += " (standard library)"
	}
	r.importDiags[t.Module] = append(r.importDiags[t.Module],
		errors.UnresolvedImport(imp.Location.File, imp.Location.Line, imp.Location.Column, msg))
}

// absoluteModule turns a possibly relative from-import into a module path.
func (r *Resolver) absoluteModule(t *symbols.Table, imp parser.Import) (string, bool) {
	if imp.Level == 0 {
		return imp.Module, true
	}
	pkg := strings.Split(t.Module, ".")
	if !t.IsPackage {
		pkg = pkg[:len(pkg)-1]
	}
	up := imp.Level - 1
	if up > len(pkg) {
		return "", false
	}
	pkg = pkg[:len(pkg)-up]
	if imp.Module != "" {
		pkg = append(pkg, imp.Module)
	}
	if len(pkg) == 0 {
		return "", false
	}
	return strings.Join(pkg, "."), true
}

// moduleMember finds name inside module: a declared top-level symbol, a name
// the module itself imported (re-export), or a submodule.
func (r *Resolver) moduleMember(module, name string) (target, bool) {
	if t, ok := r.tables[module]; ok {
		if id, ok := t.Lookup(symbols.RootScope, name); ok {
			return symbolTarget(t, id), true
		}
		if tgt, ok := r.bound(t, symbols.RootScope)[name]; ok {
			return tgt, true
		}
	}
	if sub := module + "." + name; r.packages[sub] {
		return r.moduleTarget(sub), true
	}
	return target{}, false
}
