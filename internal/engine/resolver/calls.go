package resolver

import (
	"strings"

	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"
)

// lookupName resolves a bare name from scope outward. Each scope checks its
// import bindings, then its declarations. Class bodies do not enclose the
// functions nested in them, so they are only consulted for code directly in
// the class body.
func (r *Resolver) lookupName(t *symbols.Table, scope symbols.ScopeID, name string) target {
	starExternal := false
	for s := scope; s != symbols.NoScope; s = t.Scope(s).Parent {
		if t.Scope(s).Kind == symbols.ScopeClass && s != scope {
			continue
		}
		if tgt, ok := r.bound(t, s)[name]; ok {
			return tgt
		}
		if id, ok := t.Lookup(s, name); ok {
			return symbolTarget(t, id)
		}
		if r.starExternal[scopeKey{t.Module, s}] {
			starExternal = true
		}
	}
	if starExternal || isBuiltin(name) {
		return externalTarget(name)
	}
	return target{}
}

// bases resolves a class's base expressions in the scope that declares it.
func (r *Resolver) bases(class target) []target {
	sym := class.symbol()
	out := make([]target, 0, len(sym.Bases))
	for _, base := range sym.Bases {
		cur := r.evalChain(class.table, sym.Scope, strings.Split(base, "."), anyOffset, 0)
		if !cur.isVal {
			out = append(out, cur.tgt)
		}
	}
	return out
}

// classMember finds name declared in class or, depth-first, in its bases.
// extBase reports that an unresolved base might provide it.
func (r *Resolver) classMember(class target, name string, visited map[target]bool) (tgt target, extBase bool) {
	if visited == nil {
		visited = make(map[target]bool)
	}
	if visited[class] {
		return target{}, false
	}
	visited[class] = true

	if id, ok := class.table.Member(class.id, name); ok {
		return symbolTarget(class.table, id), false
	}
	return r.inheritedMember(class, name, visited)
}

func (r *Resolver) inheritedMember(class target, name string, visited map[target]bool) (target, bool) {
	if visited == nil {
		visited = map[target]bool{class: true}
	}
	extBase := false
	for _, base := range r.bases(class) {
		switch {
		case base.isClass():
			if tgt, ext := r.classMember(base, name, visited); tgt.kind != targetNone {
				return tgt, false
			} else if ext {
				extBase = true
			}
		case base.kind == targetExternal:
			extBase = true
		}
	}
	return target{}, extBase
}

// resolveCall applies the resolution order for one call site. explicitReceiver
// is set for calls through a class name, where the receiver is an argument.
func (r *Resolver) resolveCall(t *symbols.Table, scope symbols.ScopeID, site parser.CallSite) (tgt target, explicitReceiver bool) {
	switch site.Shape {
	case parser.CallName:
		if method, ok := t.EnclosingMethod(scope); ok {
			if m := t.Symbol(method); m.Receiver == site.Name && isClassMethod(m) {
				return symbolTarget(t, t.ClassOf(method)), false
			}
		}
		return r.lookupName(t, scope, site.Name), false

	case parser.CallSelf:
		method, ok := t.EnclosingMethod(scope)
		if !ok {
			return target{}, false
		}
		member, extBase := r.classMember(symbolTarget(t, t.ClassOf(method)), site.Name, nil)
		return orExternal(member, extBase, site.Name), false

	case parser.CallSuper:
		method, ok := t.EnclosingMethod(scope)
		if !ok {
			return target{}, false
		}
		member, extBase := r.inheritedMember(symbolTarget(t, t.ClassOf(method)), site.Name, nil)
		return orExternal(member, extBase, site.Name), false

	case parser.CallAttribute:
		recv := r.evalChain(t, scope, site.Receiver, site.Offset, 0)
		callee := r.selectAttr(recv, site.Name, 0)
		if callee.isVal {
			return target{}, false
		}
		return callee.tgt, !recv.isVal && recv.tgt.isClass()

	case parser.CallChained:
		inner := r.evalChain(t, scope, site.Receiver, site.Offset, 0)
		v := r.callResult(inner, 0)
		if !v.known() {
			return target{}, false
		}
		callee := r.selectAttr(ref{val: v, isVal: true}, site.Name, 0)
		if callee.isVal {
			return target{}, false
		}
		return callee.tgt, false
	}
	return target{}, false
}

func orExternal(tgt target, extBase bool, name string) target {
	if tgt.kind == targetNone && extBase {
		return externalTarget(name)
	}
	return tgt
}
