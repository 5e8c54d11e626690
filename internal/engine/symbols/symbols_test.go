package symbols

import (
	"testing"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, path, module, src string) *Table {
	t.Helper()
	p := parser.NewParser(parser.NewGrammarLoader())
	file, err := p.ParseModule(path, module, []byte(src))
	require.NoError(t, err)
	require.False(t, file.HasErrors())
	table, err := Build(file, DefaultVisibility())
	require.NoError(t, err)
	return table
}

func mustSymbol(t *testing.T, table *Table, qname string) *Symbol {
	t.Helper()
	id, ok := table.ByQualifiedName(qname)
	require.True(t, ok, "symbol %s not found", qname)
	return table.Symbol(id)
}

func TestBuild_QualifiedNamesAndKinds(t *testing.T) {
	table := build(t, "pkg/shapes.py", "pkg.shapes", `
class Shape:
    def __init__(self, name, sides=3):
        self.name = name

    def area(self):
        def helper():
            pass
        return helper()

    @staticmethod
    def unit(size):
        pass

def _internal():
    pass
`)
	mod := table.ModuleSymbol()
	assert.Equal(t, "pkg.shapes", mod.QualifiedName)
	assert.Equal(t, KindModule, mod.Kind)
	assert.Equal(t, "shapes", mod.Name)

	shape := mustSymbol(t, table, "pkg.shapes.Shape")
	assert.Equal(t, KindClass, shape.Kind)
	assert.Equal(t, RootScope, shape.Scope)
	assert.Equal(t, Signature{FixedArity: 2, RequiredArity: 1, Declared: true}, shape.Signature)

	area := mustSymbol(t, table, "pkg.shapes.Shape.area")
	assert.Equal(t, KindMethod, area.Kind)
	assert.Equal(t, "self", area.Receiver)
	assert.Equal(t, 0, area.Signature.FixedArity)

	helper := mustSymbol(t, table, "pkg.shapes.Shape.area.helper")
	assert.Equal(t, KindFunction, helper.Kind)
	assert.Equal(t, area.Body, helper.Scope)

	unit := mustSymbol(t, table, "pkg.shapes.Shape.unit")
	assert.Empty(t, unit.Receiver)
	assert.Equal(t, 1, unit.Signature.FixedArity)

	internal := mustSymbol(t, table, "pkg.shapes._internal")
	assert.Equal(t, Private, internal.Visibility)
	assert.Equal(t, Public, mustSymbol(t, table, "pkg.shapes.Shape.__init__").Visibility)

	// Nested functions are only declared in their enclosing function's scope.
	_, ok := table.Lookup(RootScope, "helper")
	assert.False(t, ok)
	_, ok = table.Lookup(area.Body, "helper")
	assert.True(t, ok)
}

func TestBuild_ScopeArena(t *testing.T) {
	table := build(t, "m.py", "m", `
import os

class A:
    def m(self):
        from x import y
        y()

def f():
    g()
`)
	root := table.Scope(RootScope)
	assert.Equal(t, NoScope, root.Parent)
	assert.Equal(t, SymbolID(0), root.Owner)
	assert.Len(t, root.Symbols, 2)
	assert.Equal(t, []int{0}, root.Imports)

	m := mustSymbol(t, table, "m.A.m")
	mScope := table.Scope(m.Body)
	assert.Equal(t, ScopeFunction, mScope.Kind)
	assert.Equal(t, []int{1}, mScope.Imports)
	assert.Len(t, mScope.Calls, 1)

	classScope := table.Scope(mScope.Parent)
	assert.Equal(t, ScopeClass, classScope.Kind)
	assert.Equal(t, "m.A", table.Owner(classScope.ID).QualifiedName)

	method, ok := table.EnclosingMethod(m.Body)
	require.True(t, ok)
	assert.Equal(t, m.ID, method)
	assert.Equal(t, "m.A", table.Symbol(table.ClassOf(method)).QualifiedName)

	f := mustSymbol(t, table, "m.f")
	_, ok = table.EnclosingMethod(f.Body)
	assert.False(t, ok)
	assert.Equal(t, "m.f", table.Owner(f.Body).QualifiedName)
}

func TestBuild_Redefinition(t *testing.T) {
	table := build(t, "m.py", "m", `
def f():
    pass

def f(a):
    pass
`)
	first := mustSymbol(t, table, "m.f#1")
	live := mustSymbol(t, table, "m.f")
	assert.Equal(t, 0, first.Signature.FixedArity)
	assert.Equal(t, 1, live.Signature.FixedArity)

	id, ok := table.Lookup(RootScope, "f")
	require.True(t, ok)
	assert.Equal(t, live.ID, id)
	assert.Equal(t, []SymbolID{live.ID}, table.TopLevel())
}

func TestBuild_VariadicSignature(t *testing.T) {
	table := build(t, "main.py", "main", `
def variadic_func(*args, **kwargs):
    pass

def fixed_then_variadic(a, b, *rest):
    pass
`)
	v := mustSymbol(t, table, "main.variadic_func")
	assert.Equal(t, Signature{VariadicPositional: true, VariadicKeyword: true, Declared: true}, v.Signature)
	assert.True(t, v.Signature.Accepts(0))
	assert.True(t, v.Signature.Accepts(7))

	f := mustSymbol(t, table, "main.fixed_then_variadic")
	assert.True(t, f.Signature.VariadicPositional)
	assert.False(t, f.Signature.VariadicKeyword)
	assert.Equal(t, 2, f.Signature.FixedArity)
	assert.False(t, f.Signature.Accepts(1))
	assert.True(t, f.Signature.Accepts(5))
}

func TestSignature_Accepts(t *testing.T) {
	sig := Signature{FixedArity: 3, RequiredArity: 1, Declared: true}
	assert.False(t, sig.Accepts(0))
	assert.True(t, sig.Accepts(1))
	assert.True(t, sig.Accepts(3))
	assert.False(t, sig.Accepts(4))
	assert.Equal(t, "(1..3)", sig.String())

	assert.True(t, Signature{}.Accepts(99), "undeclared shapes accept anything")
}

func TestVisibilityPolicy(t *testing.T) {
	cases := []struct {
		name   string
		policy VisibilityPolicy
		want   Visibility
	}{
		{"public", DefaultVisibility(), Public},
		{"_private", DefaultVisibility(), Private},
		{"_", DefaultVisibility(), Private},
		{"__init__", DefaultVisibility(), Public},
		{"__init__", VisibilityPolicy{DunderPublic: false}, Private},
		{"__mangled", DefaultVisibility(), Public},
		{"__mangled", VisibilityPolicy{DunderPublic: true, MangledPrivate: true}, Private},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.policy.Classify(tc.name), "%s with %+v", tc.name, tc.policy)
	}
}

func TestBuild_RejectsUnnamedModule(t *testing.T) {
	_, err := Build(&parser.File{Path: "x.py"}, DefaultVisibility())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvariantViolated))
}

func TestBuild_PackageInit(t *testing.T) {
	table := build(t, "pkg/__init__.py", "pkg", "VALUE = 1\n")
	assert.True(t, table.IsPackage)
	assert.Empty(t, table.TopLevel())
}
