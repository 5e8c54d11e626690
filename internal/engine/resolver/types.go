package resolver

import (
	"math"
	"strings"

	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"
)

// maxTypeDepth bounds chains of aliases, iterations and attribute lookups.
const maxTypeDepth = 8

const anyOffset = uint(math.MaxUint)

// value is the narrow static type the resolver tracks for a local name.
type value struct {
	table     *symbols.Table
	class     symbols.SymbolID // instance of this class when table != nil
	container bool
	elem      *value
	external  bool
}

func (v value) known() bool {
	return v.table != nil || v.container || v.external
}

func instanceOf(tgt target) value {
	switch {
	case tgt.isClass():
		return value{table: tgt.table, class: tgt.id}
	case tgt.kind == targetExternal:
		return value{external: true}
	}
	return value{}
}

// ref is the result of evaluating a dotted chain: either a target (module,
// symbol, external name) or a tracked value.
type ref struct {
	tgt   target
	val   value
	isVal bool
}

func (r *Resolver) evalChain(t *symbols.Table, scope symbols.ScopeID, chain []string, offset uint, depth int) ref {
	if len(chain) == 0 || depth > maxTypeDepth {
		return ref{}
	}
	var cur ref
	if v, ok := r.typeOfName(t, scope, chain[0], offset, depth); ok {
		cur = ref{val: v, isVal: true}
	} else {
		cur = ref{tgt: r.lookupName(t, scope, chain[0])}
	}
	for _, attr := range chain[1:] {
		cur = r.selectAttr(cur, attr, depth)
	}
	return cur
}

func (r *Resolver) selectAttr(cur ref, attr string, depth int) ref {
	if cur.isVal {
		v := cur.val
		switch {
		case v.external || v.container:
			return ref{tgt: externalTarget(attr)}
		case v.table != nil:
			tgt, extBase := r.classMember(symbolTarget(v.table, v.class), attr, nil)
			if tgt.kind != targetNone {
				return ref{tgt: tgt}
			}
			if av, ok := r.attributeType(v.table, v.class, attr, depth+1, nil); ok {
				return ref{val: av, isVal: true}
			}
			if extBase {
				return ref{tgt: externalTarget(attr)}
			}
		}
		return ref{}
	}

	switch cur.tgt.kind {
	case targetExternal:
		return ref{tgt: externalTarget(cur.tgt.name + "." + attr)}
	case targetModule:
		if tgt, ok := r.moduleMember(cur.tgt.name, attr); ok {
			return ref{tgt: tgt}
		}
		if mt := cur.tgt.table; mt != nil {
			if v, ok := r.typeOfName(mt, symbols.RootScope, attr, anyOffset, depth+1); ok {
				return ref{val: v, isVal: true}
			}
		}
	case targetSymbol:
		if cur.tgt.isClass() {
			tgt, extBase := r.classMember(cur.tgt, attr, nil)
			if tgt.kind != targetNone {
				return ref{tgt: tgt}
			}
			if extBase {
				return ref{tgt: externalTarget(attr)}
			}
		}
	}
	return ref{}
}

// callResult is the value produced by calling cur: an instance for classes, the
// declared return type for annotated functions.
func (r *Resolver) callResult(cur ref, depth int) value {
	if cur.isVal {
		if cur.val.external {
			return value{external: true}
		}
		return value{}
	}
	switch cur.tgt.kind {
	case targetExternal:
		return value{external: true}
	case targetSymbol:
		sym := cur.tgt.symbol()
		if sym.Kind == symbols.KindClass {
			return instanceOf(cur.tgt)
		}
		if sym.Returns != "" && (sym.Kind == symbols.KindFunction || sym.Kind == symbols.KindMethod) {
			return r.annotationType(cur.tgt.table, sym.Scope, sym.Returns, depth+1)
		}
	}
	return value{}
}

// typeOfName finds the tracked type of a local name visible at offset: the last
// assignment fact before the call in the same scope, facts of enclosing
// function and module scopes, or a parameter's annotation.
func (r *Resolver) typeOfName(t *symbols.Table, scope symbols.ScopeID, name string, offset uint, depth int) (value, bool) {
	if depth > maxTypeDepth {
		return value{}, false
	}
	for s := scope; s != symbols.NoScope; s = t.Scope(s).Parent {
		sc := t.Scope(s)
		if sc.Kind == symbols.ScopeClass && s != scope {
			continue
		}
		limit := offset
		if s != scope {
			limit = anyOffset
		}
		if fact, ok := latestFact(t, sc, []string{name}, limit); ok {
			v := r.factType(t, s, fact, depth+1)
			return v, v.known()
		}
		if sc.Kind == symbols.ScopeFunction {
			owner := t.Owner(s)
			for i, p := range owner.Params {
				if p.Name != name {
					continue
				}
				if i == 0 && owner.Receiver == name {
					cls := t.ClassOf(owner.ID)
					if isClassMethod(owner) {
						return value{}, false
					}
					return value{table: t, class: cls}, true
				}
				if p.Annotation == "" {
					return value{}, false
				}
				v := r.annotationType(t, owner.Scope, p.Annotation, depth+1)
				return v, v.known()
			}
		}
		if _, ok := t.Lookup(s, name); ok {
			return value{}, false
		}
		if _, ok := r.bound(t, s)[name]; ok {
			return value{}, false
		}
	}
	return value{}, false
}

func isClassMethod(sym *symbols.Symbol) bool {
	for _, d := range sym.Decorators {
		if d == "classmethod" {
			return true
		}
	}
	return false
}

// latestFact returns the last fact for target in sc that starts before limit.
func latestFact(t *symbols.Table, sc *symbols.Scope, target []string, limit uint) (parser.Assignment, bool) {
	var (
		best  parser.Assignment
		found bool
	)
	for _, idx := range sc.Assignments {
		a := t.File.Assignments[idx]
		if a.Offset >= limit || !sameChain(a.Target, target) {
			continue
		}
		if !found || a.Offset >= best.Offset {
			best, found = a, true
		}
	}
	return best, found
}

func sameChain(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *Resolver) factType(t *symbols.Table, scope symbols.ScopeID, fact parser.Assignment, depth int) value {
	if depth > maxTypeDepth {
		return value{}
	}
	switch fact.Kind {
	case parser.FactConstruct:
		return r.callResult(r.evalChain(t, scope, strings.Split(fact.Type, "."), fact.Offset, depth), depth)
	case parser.FactAnnotation:
		return r.annotationType(t, scope, fact.Type, depth)
	case parser.FactListOf:
		elem := r.callResult(r.evalChain(t, scope, strings.Split(fact.Type, "."), fact.Offset, depth), depth)
		if !elem.known() {
			return value{container: true}
		}
		return value{container: true, elem: &elem}
	case parser.FactIterate:
		src := r.evalChain(t, scope, fact.Source, fact.Offset, depth)
		if src.isVal && src.val.container && src.val.elem != nil {
			return *src.val.elem
		}
	case parser.FactAlias:
		src := r.evalChain(t, scope, fact.Source, fact.Offset, depth)
		if src.isVal {
			return src.val
		}
	}
	return value{}
}

// attributeType finds the type of an instance attribute from class-level
// annotations and from self.attr assignments in the class's methods.
// Annotations win over constructor assignments. Bases are searched depth-first.
func (r *Resolver) attributeType(t *symbols.Table, class symbols.SymbolID, attr string, depth int, visited map[symbols.SymbolID]bool) (value, bool) {
	if depth > maxTypeDepth {
		return value{}, false
	}
	if visited == nil {
		visited = make(map[symbols.SymbolID]bool)
	}
	if visited[class] {
		return value{}, false
	}
	visited[class] = true

	body := t.Symbol(class).Body
	type candidate struct {
		scope symbols.ScopeID
		fact  parser.Assignment
	}
	var facts []candidate
	if fact, ok := latestFact(t, t.Scope(body), []string{attr}, anyOffset); ok {
		facts = append(facts, candidate{body, fact})
	}
	for _, child := range t.Scope(body).Children {
		owner := t.Owner(child)
		if owner.Kind != symbols.KindMethod || owner.Receiver == "" {
			continue
		}
		sc := t.Scope(child)
		for _, idx := range sc.Assignments {
			a := t.File.Assignments[idx]
			if sameChain(a.Target, []string{owner.Receiver, attr}) {
				facts = append(facts, candidate{child, a})
			}
		}
	}

	var fallback value
	for _, c := range facts {
		v := r.factType(t, c.scope, c.fact, depth+1)
		if !v.known() {
			continue
		}
		if c.fact.Kind == parser.FactAnnotation {
			return v, true
		}
		if !fallback.known() {
			fallback = v
		}
	}
	if fallback.known() {
		return fallback, true
	}

	for _, base := range r.bases(symbolTarget(t, class)) {
		if base.isClass() {
			if v, ok := r.attributeType(base.table, base.id, attr, depth+1, visited); ok {
				return v, true
			}
		}
	}
	return value{}, false
}

var containerHeads = map[string]bool{
	"List": true, "list": true, "Sequence": true, "MutableSequence": true,
	"Iterable": true, "Iterator": true, "Collection": true, "Generator": true,
	"Set": true, "set": true, "FrozenSet": true, "frozenset": true, "AbstractSet": true,
	"Deque": true, "deque": true,
}

var mappingHeads = map[string]bool{
	"Dict": true, "dict": true, "Mapping": true, "MutableMapping": true,
	"DefaultDict": true, "defaultdict": true, "OrderedDict": true,
}

// annotationType interprets a type annotation in the scope where it was written.
func (r *Resolver) annotationType(t *symbols.Table, scope symbols.ScopeID, text string, depth int) value {
	if depth > maxTypeDepth {
		return value{}
	}
	text = strings.Trim(strings.TrimSpace(text), `"'`)
	if text == "" || text == "None" {
		return value{}
	}

	if alts := splitTopLevel(text, '|'); len(alts) > 1 {
		return r.unionType(t, scope, alts, depth)
	}

	head, args := splitSubscript(text)
	leaf := head
	if i := strings.LastIndex(leaf, "."); i >= 0 {
		leaf = leaf[i+1:]
	}
	if args != nil {
		switch {
		case leaf == "Optional" && len(args) == 1:
			return r.annotationType(t, scope, args[0], depth+1)
		case leaf == "Union":
			return r.unionType(t, scope, args, depth)
		case containerHeads[leaf]:
			elem := r.annotationType(t, scope, args[0], depth+1)
			if !elem.known() {
				return value{container: true}
			}
			return value{container: true, elem: &elem}
		case leaf == "Tuple" || leaf == "tuple":
			if len(args) == 2 && args[1] == "..." {
				elem := r.annotationType(t, scope, args[0], depth+1)
				if elem.known() {
					return value{container: true, elem: &elem}
				}
			}
			return value{container: true}
		case mappingHeads[leaf]:
			return value{container: true}
		}
	}
	if containerHeads[leaf] || mappingHeads[leaf] || leaf == "Tuple" || leaf == "tuple" {
		return value{container: true}
	}

	return instanceOf(r.evalChain(t, scope, strings.Split(head, "."), anyOffset, depth+1).tgt)
}

func (r *Resolver) unionType(t *symbols.Table, scope symbols.ScopeID, alts []string, depth int) value {
	var only string
	for _, alt := range alts {
		if alt == "None" {
			continue
		}
		if only != "" {
			return value{}
		}
		only = alt
	}
	if only == "" {
		return value{}
	}
	return r.annotationType(t, scope, only, depth+1)
}

// splitSubscript splits "List[A,B]" into "List" and ["A","B"].
func splitSubscript(text string) (string, []string) {
	open := strings.Index(text, "[")
	if open < 0 || !strings.HasSuffix(text, "]") {
		return text, nil
	}
	return text[:open], splitTopLevel(text[open+1:len(text)-1], ',')
}

func splitTopLevel(text string, sep byte) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(text[start:]))
}
