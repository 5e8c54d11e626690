package symbols

import (
	"fmt"
	"strings"

	"callmap/internal/engine/parser"
)

type Kind string

const (
	KindModule   Kind = "module"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindSentinel Kind = "sentinel"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Sentinel graph nodes for call targets outside the analyzed symbol set.
const (
	Unresolved = "<unresolved>"
	External   = "<external>"
)

func IsSentinel(name string) bool {
	return name == Unresolved || name == External
}

type ScopeID int
type SymbolID int

const (
	NoScope  ScopeID  = -1
	NoSymbol SymbolID = -1
)

type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
)

// Signature is the call shape of a function, method or class constructor.
// The receiver parameter is never counted.
type Signature struct {
	FixedArity         int  `json:"fixed_arity"`
	RequiredArity      int  `json:"required_arity"`
	VariadicPositional bool `json:"variadic_positional"`
	VariadicKeyword    bool `json:"variadic_keyword"`
	Declared           bool `json:"-"` // false when no parameter list was seen, e.g. a class without __init__
}

// Accepts reports whether n positional arguments fit the signature.
func (s Signature) Accepts(n int) bool {
	if !s.Declared {
		return true
	}
	if n < s.RequiredArity {
		return false
	}
	return s.VariadicPositional || n <= s.FixedArity
}

func (s Signature) String() string {
	parts := []string{fmt.Sprintf("%d", s.FixedArity)}
	if s.RequiredArity != s.FixedArity {
		parts[0] = fmt.Sprintf("%d..%d", s.RequiredArity, s.FixedArity)
	}
	if s.VariadicPositional {
		parts = append(parts, "*args")
	}
	if s.VariadicKeyword {
		parts = append(parts, "**kwargs")
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func signatureOf(params []parser.Param, receiver string) Signature {
	sig := Signature{Declared: true}
	for i, p := range params {
		if i == 0 && receiver != "" && p.Name == receiver {
			continue
		}
		switch p.Kind {
		case parser.ParamPositional:
			sig.FixedArity++
			if !p.HasDefault {
				sig.RequiredArity++
			}
		case parser.ParamVariadicPositional:
			sig.VariadicPositional = true
		case parser.ParamVariadicKeyword:
			sig.VariadicKeyword = true
		}
	}
	return sig
}

type Symbol struct {
	ID            SymbolID
	Name          string
	QualifiedName string
	Kind          Kind
	Visibility    Visibility
	Location      parser.Location
	Scope         ScopeID // Enclosing scope, NoScope for the module symbol
	Body          ScopeID // Scope this symbol owns
	Signature     Signature
	Receiver      string
	Params        []parser.Param
	Returns       string
	Bases         []string
	Decorators    []string
}

func (s *Symbol) IsPublic() bool { return s.Visibility == Public }

type Scope struct {
	ID       ScopeID
	Kind     ScopeKind
	Parent   ScopeID
	Owner    SymbolID
	Symbols  []SymbolID
	Children []ScopeID

	// Indexes into the parsed file's Imports, Calls and Assignments.
	Imports     []int
	Calls       []int
	Assignments []int

	names map[string]SymbolID
}
