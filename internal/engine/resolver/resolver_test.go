package resolver

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"callmap/internal/core/errors"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/symbols"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	path   string
	module string
	code   string
}

func resolve(t *testing.T, opts Options, sources ...source) map[string]*Result {
	t.Helper()
	p := parser.NewParser(parser.NewGrammarLoader())
	var tables []*symbols.Table
	for _, src := range sources {
		file, err := p.ParseModule(src.path, src.module, []byte(src.code))
		require.NoError(t, err)
		require.False(t, file.HasErrors(), "syntax error in %s: %v", src.path, file.Diagnostics)
		table, err := symbols.Build(file, symbols.DefaultVisibility())
		require.NoError(t, err)
		tables = append(tables, table)
	}
	results, err := New(tables, opts).ResolveAll()
	require.NoError(t, err)
	out := make(map[string]*Result, len(results))
	for _, res := range results {
		out[res.Module] = res
	}
	return out
}

func edges(results map[string]*Result) []string {
	var out []string
	for _, res := range results {
		for _, c := range res.Calls {
			out = append(out, c.Caller+" -> "+c.Callee)
		}
	}
	sort.Strings(out)
	return out
}

func diagnostics(results map[string]*Result, kind errors.ErrorCode) []errors.Diagnostic {
	var out []errors.Diagnostic
	for _, res := range results {
		for _, d := range res.Diagnostics {
			if d.Kind == kind {
				out = append(out, d)
			}
		}
	}
	return out
}

func corpus(t *testing.T) []source {
	t.Helper()
	dir := filepath.Join("..", "testdata", "corpus", "python")
	var out []source
	for _, name := range []string{"main", "classes"} {
		path := filepath.Join(dir, name+".py")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		out = append(out, source{path: path, module: name, code: string(data)})
	}
	return out
}

func TestResolve_CorpusScenarioA(t *testing.T) {
	results := resolve(t, DefaultOptions(), corpus(t)...)
	got := edges(results)

	for _, want := range []string{
		"main.main -> main.hello",
		"main.main -> main.add",
		"main.main -> main.process",
		"main.process -> main.helper",
		"main.helper -> main.nested",
		"classes.User.greet -> main.hello",
		"classes.Service.process_all -> classes.User.greet",
		"classes.create_user -> classes.User",
		"main -> main.main",
	} {
		assert.Contains(t, got, want)
	}
	// list.append on a tracked List[User] attribute is outside the sources.
	assert.Contains(t, got, "classes.Service.add_user -> <external>")
}

func TestResolve_CorpusScenarioD(t *testing.T) {
	results := resolve(t, DefaultOptions(), corpus(t)...)
	assert.Contains(t, edges(results), "main.nested -> <external>")

	var printDiag bool
	for _, d := range diagnostics(results, errors.CodeUnresolvedCall) {
		if d.Line == 39 && filepath.Base(d.Path) == "main.py" {
			printDiag = true
			assert.Equal(t, errors.SeverityWarning, d.Severity)
		}
	}
	assert.True(t, printDiag, "print() in nested must be reported")

	opts := DefaultOptions()
	opts.ExternalSentinel = false
	results = resolve(t, opts, corpus(t)...)
	assert.Contains(t, edges(results), "main.nested -> <unresolved>")
}

func TestResolve_ImportScoping(t *testing.T) {
	results := resolve(t, DefaultOptions(),
		source{"lib.py", "lib", "def tool():\n    pass\n"},
		source{"app.py", "app", `
def uses_local_import():
    from lib import tool
    tool()

def no_import_here():
    tool()
`},
	)
	got := edges(results)
	assert.Contains(t, got, "app.uses_local_import -> lib.tool")
	assert.Contains(t, got, "app.no_import_here -> <unresolved>")
}

func TestResolve_ImportForms(t *testing.T) {
	results := resolve(t, DefaultOptions(),
		source{"pkg/__init__.py", "pkg", "from .core import engine\n"},
		source{"pkg/core.py", "pkg.core", `
def engine():
    pass

def _hidden():
    pass

class Runner:
    def go(self):
        pass
`},
		source{"pkg/util.py", "pkg.util", `
from . import core
from .core import Runner as R

def relative():
    core.engine()
    R().go()
`},
		source{"app.py", "app", `
import pkg.core
import pkg.core as pc
from pkg import engine
from pkg.core import *
import requests

def dotted():
    pkg.core.engine()

def aliased():
    pc.engine()

def reexport():
    engine()

def star():
    Runner().go()
    _hidden()

def external():
    requests.get("x")
`},
	)
	got := edges(results)
	assert.Contains(t, got, "pkg.util.relative -> pkg.core.engine")
	assert.Contains(t, got, "pkg.util.relative -> pkg.core.Runner")
	assert.Contains(t, got, "pkg.util.relative -> pkg.core.Runner.go")
	assert.Contains(t, got, "app.dotted -> pkg.core.engine")
	assert.Contains(t, got, "app.aliased -> pkg.core.engine")
	assert.Contains(t, got, "app.reexport -> pkg.core.engine")
	assert.Contains(t, got, "app.star -> pkg.core.Runner.go")
	assert.Contains(t, got, "app.star -> <unresolved>", "private names are not star-imported")
	assert.Contains(t, got, "app.external -> <external>")

	imports := diagnostics(results, errors.CodeUnresolvedImport)
	require.Len(t, imports, 1)
	assert.Contains(t, imports[0].Message, "requests")
	assert.Equal(t, "app.py", imports[0].Path)
}

func TestResolve_MissingNameInKnownModule(t *testing.T) {
	results := resolve(t, DefaultOptions(),
		source{"lib.py", "lib", "def real():\n    pass\n"},
		source{"app.py", "app", "from lib import ghost\n\ndef f():\n    ghost()\n"},
	)
	assert.Contains(t, edges(results), "app.f -> <external>")
	imports := diagnostics(results, errors.CodeUnresolvedImport)
	require.Len(t, imports, 1)
	assert.Contains(t, imports[0].Message, "lib.ghost")
}

func TestResolve_ExternalImportReportingCanBeDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.ReportExternalImports = false
	results := resolve(t, opts, source{"app.py", "app", "import os\n\nos.getcwd()\n"})
	assert.Empty(t, diagnostics(results, errors.CodeUnresolvedImport))
	assert.Contains(t, edges(results), "app -> <external>")
}

func TestResolve_SelfSuperAndInheritance(t *testing.T) {
	results := resolve(t, DefaultOptions(), source{"shapes.py", "shapes", `
class Base:
    def describe(self):
        pass

    def area(self):
        pass

class Square(Base):
    def area(self):
        super().area()
        self.describe()
        self.missing()

    @classmethod
    def make(cls):
        cls.unit()
        return cls()

    @staticmethod
    def unit():
        pass

class Error(Exception):
    def show(self):
        self.with_traceback(None)
`})
	got := edges(results)
	assert.Contains(t, got, "shapes.Square.area -> shapes.Base.area")
	assert.Contains(t, got, "shapes.Square.area -> shapes.Base.describe")
	assert.Contains(t, got, "shapes.Square.area -> <unresolved>")
	assert.Contains(t, got, "shapes.Square.make -> shapes.Square.unit")
	assert.Contains(t, got, "shapes.Square.make -> shapes.Square")
	assert.Contains(t, got, "shapes.Error.show -> <external>")
	assert.NotContains(t, got, "shapes.Square.area -> shapes.Square.area")
}

func TestResolve_LocalTypeTracking(t *testing.T) {
	results := resolve(t, DefaultOptions(), source{"svc.py", "svc", `
from typing import List, Optional

class Repo:
    def save(self):
        pass

class Other:
    def save(self):
        pass

def make_repo() -> Repo:
    return Repo()

class Service:
    repo: Repo

    def __init__(self):
        self.cache = Repo()
        self.items: List[Repo] = []

    def run(self, maybe: Optional[Repo], many: "list[Repo]"):
        r = Repo()
        r.save()
        self.repo.save()
        self.cache.save()
        maybe.save()
        made = make_repo()
        made.save()
        alias = made
        alias.save()
        for item in self.items:
            item.save()
        for each in many:
            each.save()
        built = [Repo() for _ in range(3)]
        for b in built:
            b.save()
        unknown.save()

    def reassigned(self):
        x = Repo()
        x = Other()
        x.save()
`})
	calls := map[string][]string{}
	for _, c := range results["svc"].Calls {
		calls[c.Caller] = append(calls[c.Caller], c.Site.Text+" -> "+c.Callee)
	}
	run := calls["svc.Service.run"]
	for _, want := range []string{
		"r.save -> svc.Repo.save",
		"self.repo.save -> svc.Repo.save",
		"self.cache.save -> svc.Repo.save",
		"maybe.save -> svc.Repo.save",
		"made.save -> svc.Repo.save",
		"alias.save -> svc.Repo.save",
		"item.save -> svc.Repo.save",
		"each.save -> svc.Repo.save",
		"b.save -> svc.Repo.save",
		"unknown.save -> <unresolved>",
		"make_repo -> svc.make_repo",
	} {
		assert.Contains(t, run, want)
	}
	assert.Equal(t, []string{"Repo -> svc.Repo", "Other -> svc.Other", "x.save -> svc.Other.save"}, calls["svc.Service.reassigned"])
}

func TestResolve_NeverGuessesAcrossClasses(t *testing.T) {
	results := resolve(t, DefaultOptions(), source{"m.py", "m", `
class A:
    def only_here(self):
        pass

def f(thing):
    thing.only_here()
`})
	assert.Equal(t, []string{"m.f -> <unresolved>"}, edges(results))
}

func TestResolve_CallsInTargetsAndBases(t *testing.T) {
	results := resolve(t, DefaultOptions(), source{"m.py", "m", `
def key():
    return 1

def make_base():
    return object

class Meta(type):
    pass

def f():
    d = {}
    d[key()] = 1

class A(make_base(), metaclass=Meta()):
    pass
`})
	got := edges(results)
	assert.Contains(t, got, "m.f -> m.key")
	assert.Contains(t, got, "m -> m.make_base")
	assert.Contains(t, got, "m -> m.Meta")
}

func TestResolve_NestedFunctionsAndClassScope(t *testing.T) {
	results := resolve(t, DefaultOptions(), source{"m.py", "m", `
def helper():
    pass

class K:
    def helper(self):
        pass

    def run(self):
        def inner():
            pass
        inner()
        helper()

def sibling():
    inner()
`})
	got := edges(results)
	assert.Contains(t, got, "m.K.run -> m.K.run.inner")
	// Class members are not in scope for nested code without self.
	assert.Contains(t, got, "m.K.run -> m.helper")
	assert.Contains(t, got, "m.sibling -> <unresolved>")
}

func TestResolve_Arity(t *testing.T) {
	code := `
def two(a, b):
    pass

def var(a, *rest):
    pass

class C:
    def __init__(self, x):
        pass

    def m(self, y):
        pass

def caller():
    two(1)
    two(1, 2)
    var(1, 2, 3)
    var()
    C()
    C(1).m(2)
    C.m(C(1), 2)
    two(*args)
    two(a=1, b=2)
`
	results := resolve(t, DefaultOptions(), source{"m.py", "m", code})
	assert.Empty(t, diagnostics(results, errors.CodeArityMismatch), "arity check is opt-in")

	opts := DefaultOptions()
	opts.CheckArity = true
	results = resolve(t, opts, source{"m.py", "m", code})
	arity := diagnostics(results, errors.CodeArityMismatch)
	var lines []int
	for _, d := range arity {
		lines = append(lines, d.Line)
		assert.Equal(t, errors.SeverityInfo, d.Severity)
	}
	assert.Equal(t, []int{16, 19, 20}, lines)
}

func TestResolveModule_Unknown(t *testing.T) {
	r := New(nil, DefaultOptions())
	_, err := r.ResolveModule("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}
