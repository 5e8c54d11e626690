package parser

import (
	"fmt"
	"strings"
	"time"

	"callmap/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// maxSyntaxDiagnostics caps how many syntax errors are reported per file.
const maxSyntaxDiagnostics = 10

type PythonExtractor struct {
	engine *ExtractorEngine
}

func NewPythonExtractor() *PythonExtractor {
	e := &PythonExtractor{}
	e.engine = NewExtractorEngine(map[string]NodeHandler{
		"import_statement":      e.extractImport,
		"import_from_statement": e.extractFromImport,
		"function_definition":   e.extractFunction,
		"class_definition":      e.extractClass,
		"decorator":             skipNode,
		"assignment":            e.extractAssignment,
		"for_statement":         e.extractFor,
		"call":                  e.extractCall,
	})
	return e
}

func (e *PythonExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*File, error) {
	if root == nil {
		return nil, errors.New(errors.CodeInternal, "nil syntax tree")
	}
	file := &File{
		Path:     filePath,
		Language: LanguagePython,
		ParsedAt: time.Now(),
	}
	ctx := &ExtractionContext{Source: source, File: file}

	if root.HasError() {
		e.collectSyntaxErrors(ctx, root)
		if len(file.Diagnostics) == 0 {
			file.Diagnostics = append(file.Diagnostics, errors.SyntaxError(filePath, 1, 1, "file contains syntax errors"))
		}
		return file, nil
	}

	e.engine.Walk(ctx, root)
	return file, nil
}

func skipNode(*ExtractionContext, *sitter.Node) bool { return true }

func (e *PythonExtractor) collectSyntaxErrors(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil || len(ctx.File.Diagnostics) >= maxSyntaxDiagnostics {
		return
	}
	switch {
	case node.IsMissing():
		loc := ctx.Location(node)
		ctx.File.Diagnostics = append(ctx.File.Diagnostics,
			errors.SyntaxError(loc.File, loc.Line, loc.Column, fmt.Sprintf("missing %q", node.Kind())))
		return
	case node.IsError():
		loc := ctx.Location(node)
		ctx.File.Diagnostics = append(ctx.File.Diagnostics,
			errors.SyntaxError(loc.File, loc.Line, loc.Column, fmt.Sprintf("unexpected %q", snippet(ctx.Text(node)))))
		return
	}
	if !node.HasError() {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		e.collectSyntaxErrors(ctx, node.Child(i))
	}
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 40 {
		return text[:40] + "..."
	}
	return text
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	imp := Import{Parent: ctx.Current(), Location: ctx.Location(node)}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			imp.Names = append(imp.Names, ImportName{Name: ctx.CompactText(child)})
		case "aliased_import":
			imp.Names = append(imp.Names, e.aliasedName(ctx, child))
		}
	}
	if len(imp.Names) > 0 {
		ctx.File.Imports = append(ctx.File.Imports, imp)
	}
	return true
}

func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	imp := Import{Parent: ctx.Current(), From: true, Location: ctx.Location(node)}

	afterImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			afterImport = true
		case "relative_import":
			text := ctx.CompactText(child)
			trimmed := strings.TrimLeft(text, ".")
			imp.Level = len(text) - len(trimmed)
			imp.Module = trimmed
		case "dotted_name":
			if afterImport {
				imp.Names = append(imp.Names, ImportName{Name: ctx.CompactText(child)})
			} else {
				imp.Module = ctx.CompactText(child)
			}
		case "aliased_import":
			imp.Names = append(imp.Names, e.aliasedName(ctx, child))
		case "wildcard_import":
			imp.Wildcard = true
		}
	}

	ctx.File.Imports = append(ctx.File.Imports, imp)
	return true
}

func (e *PythonExtractor) aliasedName(ctx *ExtractionContext, node *sitter.Node) ImportName {
	name := ImportName{
		Name:  ctx.CompactText(node.ChildByFieldName("name")),
		Alias: ctx.Text(node.ChildByFieldName("alias")),
	}
	if name.Name == "" {
		name.Name = ctx.ChildText(node, "dotted_name")
	}
	return name
}

func (e *PythonExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return false
	}
	params := node.ChildByFieldName("parameters")

	decl := Decl{
		Parent:     ctx.Current(),
		Kind:       DeclFunction,
		Name:       ctx.Text(nameNode),
		Location:   ctx.Location(nameNode),
		Decorators: e.decorators(ctx, node),
		Params:     e.parameters(ctx, params),
		Returns:    ctx.CompactText(node.ChildByFieldName("return_type")),
	}
	if decl.Parent != ModuleLevel && ctx.File.Decls[decl.Parent].Kind == DeclClass {
		decl.Receiver = receiverParam(decl)
	}

	// Default values are evaluated in the enclosing scope.
	e.walkDefaults(ctx, params)

	idx := len(ctx.File.Decls)
	ctx.File.Decls = append(ctx.File.Decls, decl)
	ctx.Enter(idx, func() {
		ctx.Walk(node.ChildByFieldName("body"))
	})
	return true
}

func receiverParam(decl Decl) string {
	for _, dec := range decl.Decorators {
		if dec == "staticmethod" {
			return ""
		}
	}
	if len(decl.Params) == 0 || decl.Params[0].Kind != ParamPositional {
		return ""
	}
	return decl.Params[0].Name
}

func (e *PythonExtractor) parameters(ctx *ExtractionContext, params *sitter.Node) []Param {
	if params == nil {
		return nil
	}
	var out []Param
	keywordOnly := false
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		switch child.Kind() {
		case "keyword_separator":
			keywordOnly = true
			continue
		case "positional_separator", "comment":
			continue
		}
		param, ok := e.parameter(ctx, child)
		if !ok {
			continue
		}
		if param.Kind == ParamVariadicPositional {
			keywordOnly = true
		} else if keywordOnly && param.Kind == ParamPositional {
			param.Kind = ParamKeywordOnly
		}
		out = append(out, param)
	}
	return out
}

func (e *PythonExtractor) parameter(ctx *ExtractionContext, node *sitter.Node) (Param, bool) {
	switch node.Kind() {
	case "identifier":
		return Param{Name: ctx.Text(node), Kind: ParamPositional}, true
	case "list_splat_pattern":
		return Param{Name: ctx.ChildText(node, "identifier"), Kind: ParamVariadicPositional}, true
	case "dictionary_splat_pattern":
		return Param{Name: ctx.ChildText(node, "identifier"), Kind: ParamVariadicKeyword}, true
	case "default_parameter":
		return Param{Name: ctx.Text(node.ChildByFieldName("name")), Kind: ParamPositional, HasDefault: true}, true
	case "typed_default_parameter":
		return Param{
			Name:       ctx.Text(node.ChildByFieldName("name")),
			Kind:       ParamPositional,
			HasDefault: true,
			Annotation: ctx.CompactText(node.ChildByFieldName("type")),
		}, true
	case "typed_parameter":
		if node.NamedChildCount() == 0 {
			return Param{}, false
		}
		param, ok := e.parameter(ctx, node.NamedChild(0))
		if !ok {
			return Param{}, false
		}
		param.Annotation = ctx.CompactText(node.ChildByFieldName("type"))
		return param, true
	}
	return Param{}, false
}

func (e *PythonExtractor) walkDefaults(ctx *ExtractionContext, params *sitter.Node) {
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		if child.Kind() == "default_parameter" || child.Kind() == "typed_default_parameter" {
			ctx.Walk(child.ChildByFieldName("value"))
		}
	}
}

func (e *PythonExtractor) decorators(ctx *ExtractionContext, node *sitter.Node) []string {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}
	var decorators []string
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ctx.Text(child)), "@"))
		if dec != "" {
			decorators = append(decorators, dec)
		}
	}
	return decorators
}

func (e *PythonExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return false
	}
	decl := Decl{
		Parent:     ctx.Current(),
		Kind:       DeclClass,
		Name:       ctx.Text(nameNode),
		Location:   ctx.Location(nameNode),
		Decorators: e.decorators(ctx, node),
	}
	supers := node.ChildByFieldName("superclasses")
	if supers != nil {
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			arg := supers.NamedChild(i)
			// metaclass=... and other keywords are not bases.
			if arg.Kind() == "keyword_argument" {
				continue
			}
			if chain := ctx.Chain(arg); chain != nil {
				decl.Bases = append(decl.Bases, strings.Join(chain, "."))
			}
		}
	}

	// Base and keyword expressions run in the enclosing scope.
	ctx.Walk(supers)

	idx := len(ctx.File.Decls)
	ctx.File.Decls = append(ctx.File.Decls, decl)
	ctx.Enter(idx, func() {
		ctx.Walk(node.ChildByFieldName("body"))
	})
	return true
}

func (e *PythonExtractor) extractAssignment(ctx *ExtractionContext, node *sitter.Node) bool {
	right := node.ChildByFieldName("right")
	if target := ctx.Chain(node.ChildByFieldName("left")); target != nil {
		fact := Assignment{
			Parent:   ctx.Current(),
			Target:   target,
			Location: ctx.Location(node),
			Offset:   node.StartByte(),
		}
		if typ := node.ChildByFieldName("type"); typ != nil {
			annotated := fact
			annotated.Kind = FactAnnotation
			annotated.Type = ctx.CompactText(typ)
			ctx.File.Assignments = append(ctx.File.Assignments, annotated)
		}
		if right != nil && e.valueFact(ctx, right, &fact) {
			ctx.File.Assignments = append(ctx.File.Assignments, fact)
		}
	}
	ctx.Walk(right)
	// Subscripts and receivers on the target side can hold calls too.
	ctx.Walk(node.ChildByFieldName("left"))
	return true
}

func (e *PythonExtractor) valueFact(ctx *ExtractionContext, value *sitter.Node, fact *Assignment) bool {
	switch value.Kind() {
	case "call":
		chain := ctx.Chain(value.ChildByFieldName("function"))
		if chain == nil {
			return false
		}
		fact.Kind = FactConstruct
		fact.Type = strings.Join(chain, ".")
		return true
	case "identifier", "attribute":
		chain := ctx.Chain(value)
		if chain == nil {
			return false
		}
		fact.Kind = FactAlias
		fact.Source = chain
		return true
	case "list", "set", "tuple":
		elem := ""
		for i := uint(0); i < value.NamedChildCount(); i++ {
			item := value.NamedChild(i)
			if item.Kind() != "call" {
				return false
			}
			chain := strings.Join(ctx.Chain(item.ChildByFieldName("function")), ".")
			if chain == "" || (elem != "" && elem != chain) {
				return false
			}
			elem = chain
		}
		if elem == "" {
			return false
		}
		fact.Kind = FactListOf
		fact.Type = elem
		return true
	case "list_comprehension", "set_comprehension", "generator_expression":
		body := value.ChildByFieldName("body")
		if body == nil || body.Kind() != "call" {
			return false
		}
		chain := ctx.Chain(body.ChildByFieldName("function"))
		if chain == nil {
			return false
		}
		fact.Kind = FactListOf
		fact.Type = strings.Join(chain, ".")
		return true
	}
	return false
}

func (e *PythonExtractor) extractFor(ctx *ExtractionContext, node *sitter.Node) bool {
	target := ctx.Chain(node.ChildByFieldName("left"))
	source := ctx.Chain(node.ChildByFieldName("right"))
	if len(target) == 1 && source != nil {
		ctx.File.Assignments = append(ctx.File.Assignments, Assignment{
			Parent:   ctx.Current(),
			Kind:     FactIterate,
			Target:   target,
			Source:   source,
			Location: ctx.Location(node),
			Offset:   node.StartByte(),
		})
	}
	return false
}

func (e *PythonExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")
	if fn == nil {
		return false
	}

	site := CallSite{
		Parent:   ctx.Current(),
		Shape:    CallDynamic,
		Name:     ctx.CompactText(fn),
		Text:     ctx.CompactText(fn),
		Location: ctx.Location(node),
		Offset:   node.StartByte(),
	}
	site.Args, site.Keywords, site.Unpacked = countArguments(args)

	switch fn.Kind() {
	case "identifier":
		site.Shape = CallName
	case "attribute":
		obj := fn.ChildByFieldName("object")
		site.Name = ctx.Text(fn.ChildByFieldName("attribute"))
		if chain := ctx.Chain(obj); chain != nil {
			site.Shape = CallAttribute
			site.Receiver = chain
			if len(chain) == 1 && chain[0] == ctx.ReceiverName() {
				site.Shape = CallSelf
			}
		} else if obj != nil && obj.Kind() == "call" {
			inner := ctx.Chain(obj.ChildByFieldName("function"))
			switch {
			case len(inner) == 1 && inner[0] == "super":
				site.Shape = CallSuper
			case inner != nil:
				site.Shape = CallChained
				site.Receiver = inner
			}
		}
		ctx.Walk(obj)
	default:
		ctx.Walk(fn)
	}

	ctx.File.Calls = append(ctx.File.Calls, site)
	ctx.Walk(args)
	return true
}

// countArguments splits call arguments into positional and keyword counts.
// Unpacked reports *args or **kwargs at the call site.
func countArguments(args *sitter.Node) (positional, keywords int, unpacked bool) {
	if args == nil {
		return 0, 0, false
	}
	if args.Kind() == "generator_expression" {
		return 1, 0, false
	}
	for i := uint(0); i < args.NamedChildCount(); i++ {
		switch args.NamedChild(i).Kind() {
		case "comment":
		case "keyword_argument":
			keywords++
		case "list_splat", "dictionary_splat":
			unpacked = true
		default:
			positional++
		}
	}
	return positional, keywords, unpacked
}
