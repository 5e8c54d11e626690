package parser

import (
	"os"
	"path/filepath"
	"testing"

	"callmap/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *File {
	t.Helper()
	p := NewParser(NewGrammarLoader())
	file, err := p.ParseModule("pkg/mod.py", "pkg.mod", []byte(src))
	require.NoError(t, err)
	return file
}

func findDecl(f *File, name string) (Decl, int) {
	for i, d := range f.Decls {
		if d.Name == name {
			return d, i
		}
	}
	return Decl{}, -1
}

func TestParseModule_Unsupported(t *testing.T) {
	p := NewParser(NewGrammarLoader())
	_, err := p.ParseModule("README.md", "README", []byte("# hi"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
}

func TestParseModule_Declarations(t *testing.T) {
	f := parse(t, `
class Base:
    pass

class Child(Base, mixins.Loggable, metaclass=Meta):
    @staticmethod
    def build(x):
        pass

    @classmethod
    def create(cls, *args, **kwargs):
        return cls()

    def run(self, a: int, b=1, *rest, key, **opts):
        def inner():
            pass
        inner()

def top(a, b, /, c, *, d=3):
    pass
`)
	assert.Equal(t, "pkg.mod", f.Module)
	assert.Equal(t, LanguagePython, f.Language)
	assert.False(t, f.HasErrors())

	child, childIdx := findDecl(f, "Child")
	require.GreaterOrEqual(t, childIdx, 0)
	assert.Equal(t, DeclClass, child.Kind)
	assert.Equal(t, ModuleLevel, child.Parent)
	assert.Equal(t, []string{"Base", "mixins.Loggable"}, child.Bases)

	build, _ := findDecl(f, "build")
	assert.Equal(t, childIdx, build.Parent)
	assert.Equal(t, []string{"staticmethod"}, build.Decorators)
	assert.Empty(t, build.Receiver, "static methods have no receiver")

	create, _ := findDecl(f, "create")
	assert.Equal(t, "cls", create.Receiver)
	require.Len(t, create.Params, 3)
	assert.Equal(t, ParamVariadicPositional, create.Params[1].Kind)
	assert.Equal(t, ParamVariadicKeyword, create.Params[2].Kind)

	run, runIdx := findDecl(f, "run")
	assert.Equal(t, "self", run.Receiver)
	require.Len(t, run.Params, 6)
	assert.Equal(t, "a", run.Params[1].Name)
	assert.Equal(t, "int", run.Params[1].Annotation)
	assert.True(t, run.Params[2].HasDefault)
	assert.Equal(t, ParamVariadicPositional, run.Params[3].Kind)
	assert.Equal(t, ParamKeywordOnly, run.Params[4].Kind)
	assert.Equal(t, ParamVariadicKeyword, run.Params[5].Kind)

	inner, _ := findDecl(f, "inner")
	assert.Equal(t, runIdx, inner.Parent)
	assert.Empty(t, inner.Receiver)

	top, _ := findDecl(f, "top")
	require.Len(t, top.Params, 4)
	assert.Equal(t, ParamPositional, top.Params[2].Kind)
	assert.Equal(t, ParamKeywordOnly, top.Params[3].Kind)
	assert.True(t, top.Params[3].HasDefault)
}

func TestParseModule_Imports(t *testing.T) {
	f := parse(t, `
import os
import os.path as osp, json
from typing import List, Optional as Opt
from . import sibling
from ..pkg.util import helper
from models import *

def late():
    from main import hello
`)
	require.Len(t, f.Imports, 7)

	assert.False(t, f.Imports[0].From)
	assert.Equal(t, []ImportName{{Name: "os"}}, f.Imports[0].Names)
	assert.Equal(t, ModuleLevel, f.Imports[0].Parent)

	assert.Equal(t, []ImportName{{Name: "os.path", Alias: "osp"}, {Name: "json"}}, f.Imports[1].Names)

	assert.True(t, f.Imports[2].From)
	assert.Equal(t, "typing", f.Imports[2].Module)
	assert.Equal(t, []ImportName{{Name: "List"}, {Name: "Optional", Alias: "Opt"}}, f.Imports[2].Names)

	assert.Equal(t, 1, f.Imports[3].Level)
	assert.Equal(t, "", f.Imports[3].Module)
	assert.Equal(t, []ImportName{{Name: "sibling"}}, f.Imports[3].Names)

	assert.Equal(t, 2, f.Imports[4].Level)
	assert.Equal(t, "pkg.util", f.Imports[4].Module)
	assert.Equal(t, []ImportName{{Name: "helper"}}, f.Imports[4].Names)

	assert.True(t, f.Imports[5].Wildcard)
	assert.Equal(t, "models", f.Imports[5].Module)
	assert.Empty(t, f.Imports[5].Names)

	_, lateIdx := findDecl(f, "late")
	assert.Equal(t, "main", f.Imports[6].Module)
	assert.Equal(t, lateIdx, f.Imports[6].Parent)
}

func TestParseModule_Calls(t *testing.T) {
	f := parse(t, `
class A:
    def m(self):
        self.helper(1, 2)
        self.items.append(3)
        super().m()
        A().other()
        def nested():
            self.helper()
        handlers[0]()
        run(*args)
        go(key=1)

print(len(x))
`)
	byText := map[string]CallSite{}
	for _, c := range f.Calls {
		if _, seen := byText[c.Text]; !seen {
			byText[c.Text] = c
		}
	}

	_, mIdx := findDecl(f, "m")
	_, nestedIdx := findDecl(f, "nested")

	c := byText["self.helper"]
	assert.Equal(t, CallSelf, c.Shape)
	assert.Equal(t, "helper", c.Name)
	assert.Equal(t, 2, c.Args)
	assert.Equal(t, mIdx, c.Parent)

	c = byText["self.items.append"]
	assert.Equal(t, CallAttribute, c.Shape)
	assert.Equal(t, []string{"self", "items"}, c.Receiver)

	c = byText["super().m"]
	assert.Equal(t, CallSuper, c.Shape)
	assert.Equal(t, "m", c.Name)

	c = byText["A().other"]
	assert.Equal(t, CallChained, c.Shape)
	assert.Equal(t, []string{"A"}, c.Receiver)
	_, ok := byText["A"]
	assert.True(t, ok, "inner constructor call is recorded too")

	assert.Equal(t, CallDynamic, byText["handlers[0]"].Shape)
	assert.True(t, byText["run"].Unpacked)
	assert.Equal(t, 1, byText["go"].Keywords)

	assert.Equal(t, ModuleLevel, byText["print"].Parent)
	assert.Equal(t, ModuleLevel, byText["len"].Parent)
	assert.Equal(t, CallName, byText["len"].Shape)

	nestedSelf := 0
	for _, call := range f.Calls {
		if call.Text == "self.helper" && call.Parent == nestedIdx {
			nestedSelf++
			assert.Equal(t, CallSelf, call.Shape, "closures see the method receiver")
		}
	}
	assert.Equal(t, 1, nestedSelf)
}

func TestParseModule_CallsInTargetsAndBases(t *testing.T) {
	f := parse(t, `
def f():
    d = {}
    d[key()] = 1
    make().x = 2

class A(make_base(), metaclass=Meta()):
    pass
`)
	parents := map[string]int{}
	for _, c := range f.Calls {
		parents[c.Text] = c.Parent
	}
	_, fIdx := findDecl(f, "f")

	require.Contains(t, parents, "key")
	require.Contains(t, parents, "make")
	assert.Equal(t, fIdx, parents["key"])
	assert.Equal(t, fIdx, parents["make"])

	require.Contains(t, parents, "make_base")
	require.Contains(t, parents, "Meta")
	assert.Equal(t, ModuleLevel, parents["make_base"], "bases are evaluated where the class is declared")
	assert.Equal(t, ModuleLevel, parents["Meta"])
}

func TestParseModule_DecoratorsAndAnnotationsAreNotCalls(t *testing.T) {
	f := parse(t, `
@app.route("/x")
def handler(a: make_type()) -> other():
    pass
`)
	assert.Empty(t, f.Calls)
	handler, _ := findDecl(f, "handler")
	assert.Equal(t, []string{`app.route("/x")`}, handler.Decorators)
}

func TestParseModule_Assignments(t *testing.T) {
	f := parse(t, `
class S:
    def __init__(self):
        self.users: List[User] = []
        self.repo = db.Repo()

def f():
    u = User("a")
    us = [User(n) for n in names]
    alias = u
    for x in us:
        x.greet()
`)
	kinds := map[string]Assignment{}
	for _, a := range f.Assignments {
		kinds[joinChain(a.Target)+"/"+factName(a.Kind)] = a
	}

	assert.Equal(t, "List[User]", kinds["self.users/annotation"].Type)
	assert.Equal(t, "db.Repo", kinds["self.repo/construct"].Type)
	assert.Equal(t, "User", kinds["u/construct"].Type)
	assert.Equal(t, "User", kinds["us/list"].Type)
	assert.Equal(t, []string{"u"}, kinds["alias/alias"].Source)
	assert.Equal(t, []string{"us"}, kinds["x/iterate"].Source)

	greet := f.Calls[len(f.Calls)-1]
	assert.Equal(t, "x.greet", greet.Text)
	assert.Greater(t, greet.Offset, kinds["x/iterate"].Offset)
}

func joinChain(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func factName(k FactKind) string {
	switch k {
	case FactConstruct:
		return "construct"
	case FactAnnotation:
		return "annotation"
	case FactListOf:
		return "list"
	case FactIterate:
		return "iterate"
	default:
		return "alias"
	}
}

func TestParseModule_SyntaxError(t *testing.T) {
	f := parse(t, `def broken(:
    pass

def ok():
    ok()
`)
	require.True(t, f.HasErrors())
	assert.Empty(t, f.Decls, "files with syntax errors contribute nothing")
	assert.Empty(t, f.Calls)
	for _, d := range f.Diagnostics {
		assert.Equal(t, errors.CodeSyntax, d.Kind)
		assert.Equal(t, "pkg/mod.py", d.Path)
		assert.GreaterOrEqual(t, d.Line, 1)
	}
}

func TestParseModule_Corpus(t *testing.T) {
	p := NewParser(NewGrammarLoader())
	dir := filepath.Join("..", "testdata", "corpus", "python")

	src, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	f, err := p.ParseModule(filepath.Join(dir, "main.py"), "main", src)
	require.NoError(t, err)
	require.False(t, f.HasErrors())

	var names []string
	for _, d := range f.Decls {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"main", "hello", "add", "process", "helper", "nested", "variadic_func"}, names)

	_, mainIdx := findDecl(f, "main")
	var fromMain []string
	for _, c := range f.Calls {
		if c.Parent == mainIdx {
			fromMain = append(fromMain, c.Name)
		}
	}
	assert.Equal(t, []string{"hello", "print", "add", "print", "process"}, fromMain)

	variadic, _ := findDecl(f, "variadic_func")
	require.Len(t, variadic.Params, 2)
	assert.Equal(t, ParamVariadicPositional, variadic.Params[0].Kind)
	assert.Equal(t, ParamVariadicKeyword, variadic.Params[1].Kind)
}

func TestIsTestFile(t *testing.T) {
	p := NewParser(NewGrammarLoader())
	assert.True(t, p.IsTestFile("test_models.py"))
	assert.True(t, p.IsTestFile("models_test.py"))
	assert.False(t, p.IsTestFile("models.py"))
	assert.True(t, p.IsSupportedPath("stubs/models.pyi"))
	assert.False(t, p.IsSupportedPath("models.go"))
}
