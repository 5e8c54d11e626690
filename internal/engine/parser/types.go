package parser

import (
	"time"

	"callmap/internal/core/errors"
)

// File is the syntax model of one analyzed source file. It is immutable once
// returned by the parser.
type File struct {
	Path        string
	Module      string // Fully qualified module path, e.g. pkg.sub.mod
	Language    string
	Decls       []Decl
	Imports     []Import
	Calls       []CallSite
	Assignments []Assignment
	Diagnostics []errors.Diagnostic
	ParsedAt    time.Time
}

// HasErrors reports whether the file failed to parse. Such files contribute
// no declarations to the graph.
func (f *File) HasErrors() bool {
	for _, d := range f.Diagnostics {
		if d.Kind == errors.CodeSyntax {
			return true
		}
	}
	return false
}

// ModuleLevel is the Parent index of facts that sit directly in the module body.
const ModuleLevel = -1

type DeclKind int

const (
	DeclClass DeclKind = iota
	DeclFunction
)

func (k DeclKind) String() string {
	if k == DeclClass {
		return "class"
	}
	return "function"
}

type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamKeywordOnly
	ParamVariadicPositional
	ParamVariadicKeyword
)

type Param struct {
	Name       string
	Kind       ParamKind
	HasDefault bool
	Annotation string
}

// Decl is a class or function declaration. Parent indexes into File.Decls.
type Decl struct {
	Parent     int
	Kind       DeclKind
	Name       string
	Location   Location
	Decorators []string
	Params     []Param
	Returns    string   // Return annotation text, functions only
	Receiver   string   // First parameter of a method, empty for static methods and plain functions
	Bases      []string // Superclass expressions of a class, as dotted text
}

type ImportName struct {
	Name  string // Dotted name as written
	Alias string
}

// Import is one import statement. For `import a.b as x` Names holds the module
// paths; for `from m import n` Module is m and Names holds the imported items.
type Import struct {
	Parent   int
	From     bool
	Module   string
	Level    int // Number of leading dots of a relative from-import
	Names    []ImportName
	Wildcard bool
	Location Location
}

type CallShape int

const (
	CallName      CallShape = iota // f()
	CallSelf                       // self.f() / cls.f() through the method's receiver parameter
	CallAttribute                  // a.b.f() on any other dotted receiver
	CallSuper                      // super().f()
	CallChained                    // C().f() or make().f()
	CallDynamic                    // anything else: f()(), x[0](), (a or b)()
)

func (s CallShape) String() string {
	switch s {
	case CallName:
		return "name"
	case CallSelf:
		return "self"
	case CallAttribute:
		return "attribute"
	case CallSuper:
		return "super"
	case CallChained:
		return "chained"
	default:
		return "dynamic"
	}
}

// CallSite is one call expression, attributed to its innermost enclosing declaration.
type CallSite struct {
	Parent   int
	Shape    CallShape
	Name     string   // Leaf callee name
	Receiver []string // Dotted receiver chain for CallSelf/CallAttribute, callee chain of the inner call for CallChained
	Args     int      // Positional arguments
	Keywords int
	Unpacked bool
	Text     string
	Location Location
	Offset   uint
}

type FactKind int

const (
	FactConstruct  FactKind = iota // x = C(...)
	FactAnnotation                 // x: T
	FactListOf                     // xs = [C(...), ...]
	FactIterate                    // for x in xs
	FactAlias                      // x = y
)

// Assignment is a local type fact used by the call resolver's narrow type tracking.
type Assignment struct {
	Parent   int
	Kind     FactKind
	Target   []string
	Type     string   // Constructor chain or annotation text
	Source   []string // Iterated or aliased chain
	Location Location
	Offset   uint
}

type Location struct {
	File   string
	Line   int
	Column int
}
