package resolver

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"
)

// Options toggles resolver policies that callers configure.
type Options struct {
	// ExternalSentinel routes builtin and external-import calls to <external>
	// instead of <unresolved>.
	ExternalSentinel bool
	// CheckArity emits ARITY_MISMATCH for resolved calls whose positional
	// argument count the callee cannot accept.
	CheckArity bool
	// ReportExternalImports emits UNRESOLVED_IMPORT for imports whose target
	// module is not part of the batch.
	ReportExternalImports bool
}

func DefaultOptions() Options {
	return Options{ExternalSentinel: true, ReportExternalImports: true}
}

// Resolver links a complete batch of symbol tables. It is the second phase of
// analysis: it must only be created once every module's table exists, and it is
// used by a single goroutine.
type Resolver struct {
	opts     Options
	tables   map[string]*symbols.Table
	modules  []string
	packages map[string]bool // every module path plus each enclosing package

	bindings     map[scopeKey]map[string]target
	starExternal map[scopeKey]bool
	importDiags  map[string][]errors.Diagnostic
}

type scopeKey struct {
	module string
	scope  symbols.ScopeID
}

// Call is one resolved call site.
type Call struct {
	Caller   string
	Callee   string
	Resolved bool
	Site     parser.CallSite
}

// Result is the phase-two output for one module.
type Result struct {
	Module      string
	Calls       []Call
	Diagnostics []errors.Diagnostic
}

func New(tables []*symbols.Table, opts Options) *Resolver {
	r := &Resolver{
		opts:         opts,
		tables:       make(map[string]*symbols.Table, len(tables)),
		packages:     make(map[string]bool),
		bindings:     make(map[scopeKey]map[string]target),
		starExternal: make(map[scopeKey]bool),
		importDiags:  make(map[string][]errors.Diagnostic),
	}
	for _, t := range tables {
		r.tables[t.Module] = t
		r.modules = append(r.modules, t.Module)
		parts := strings.Split(t.Module, ".")
		for i := range parts {
			r.packages[strings.Join(parts[:i+1], ".")] = true
		}
	}
	sort.Strings(r.modules)
	return r
}

// Link binds every import statement in the batch. Bindings are computed lazily
// and memoized, so Link only forces evaluation in a deterministic order.
func (r *Resolver) Link() {
	for _, mod := range r.modules {
		r.linkTable(r.tables[mod])
	}
}

// ResolveAll links the batch and resolves every module in module order.
func (r *Resolver) ResolveAll() ([]*Result, error) {
	r.Link()
	results := make([]*Result, 0, len(r.modules))
	for _, mod := range r.modules {
		res, err := r.ResolveModule(mod)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ResolveModule resolves every call site of one module.
func (r *Resolver) ResolveModule(module string) (*Result, error) {
	t, ok := r.tables[module]
	if !ok {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "module not in batch"), errors.CtxModule, module)
	}
	r.linkTable(t)

	res := &Result{Module: module}
	res.Diagnostics = append(res.Diagnostics, r.importDiags[module]...)

	for _, site := range t.File.Calls {
		scope := t.ScopeOf(site.Parent)
		call := Call{Caller: t.Owner(scope).QualifiedName, Site: site}

		tgt, explicitReceiver := r.resolveCall(t, scope, site)
		switch {
		case tgt.kind == targetSymbol && tgt.symbol().Kind != symbols.KindModule:
			callee := tgt.symbol()
			call.Callee = callee.QualifiedName
			call.Resolved = true
			if r.opts.CheckArity && !explicitReceiver && !site.Unpacked && site.Keywords == 0 && !callee.Signature.Accepts(site.Args) {
				res.Diagnostics = append(res.Diagnostics, errors.ArityMismatch(site.Location.File, site.Location.Line, site.Location.Column,
					arityMessage(callee, site.Args)))
			}
		case tgt.kind == targetExternal:
			call.Callee = symbols.Unresolved
			if r.opts.ExternalSentinel {
				call.Callee = symbols.External
			}
			res.Diagnostics = append(res.Diagnostics, errors.UnresolvedCall(site.Location.File, site.Location.Line, site.Location.Column,
				fmt.Sprintf("call to %q targets %s outside the analyzed sources", site.Text, tgt.name)))
		default:
			call.Callee = symbols.Unresolved
			res.Diagnostics = append(res.Diagnostics, errors.UnresolvedCall(site.Location.File, site.Location.Line, site.Location.Column,
				fmt.Sprintf("cannot resolve call to %q", site.Text)))
		}
		res.Calls = append(res.Calls, call)
	}

	slog.Debug("resolved module calls", "module", module, "calls", len(res.Calls), "diagnostics", len(res.Diagnostics))
	return res, nil
}

func (r *Resolver) linkTable(t *symbols.Table) {
	for i := range t.Scopes {
		if len(t.Scopes[i].Imports) > 0 {
			r.bound(t, symbols.ScopeID(i))
		}
	}
}

func arityMessage(callee *symbols.Symbol, args int) string {
	return fmt.Sprintf("%s%s cannot take %d positional argument(s)", callee.QualifiedName, callee.Signature, args)
}
