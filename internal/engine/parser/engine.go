package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for a language-specific extractor.
// Returns true if the handler has processed children and the walker should stop.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries shared state/helpers used by all extractors.
type ExtractionContext struct {
	Source []byte
	File   *File

	engine *ExtractorEngine
	decls  []int // stack of enclosing File.Decls indexes
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}
	ctx.engine = e

	if handler, ok := e.handlers[node.Kind()]; ok {
		if handler(ctx, node) {
			return
		}
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		e.Walk(ctx, node.Child(i))
	}
}

// Walk lets a handler descend into selected children.
func (c *ExtractionContext) Walk(node *sitter.Node) {
	c.engine.Walk(c, node)
}

// Enter pushes a declaration for the duration of fn.
func (c *ExtractionContext) Enter(decl int, fn func()) {
	c.decls = append(c.decls, decl)
	defer func() { c.decls = c.decls[:len(c.decls)-1] }()
	fn()
}

// Current returns the innermost enclosing declaration, or ModuleLevel.
func (c *ExtractionContext) Current() int {
	if len(c.decls) == 0 {
		return ModuleLevel
	}
	return c.decls[len(c.decls)-1]
}

// ReceiverName returns the receiver parameter visible at the current position:
// the receiver of the nearest enclosing method, looking through nested functions.
func (c *ExtractionContext) ReceiverName() string {
	for i := len(c.decls) - 1; i >= 0; i-- {
		decl := c.File.Decls[c.decls[i]]
		if decl.Kind == DeclClass {
			return ""
		}
		if decl.Receiver != "" {
			return decl.Receiver
		}
	}
	return ""
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

func (c *ExtractionContext) Location(node *sitter.Node) Location {
	return Location{
		File:   c.File.Path,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}

func (c *ExtractionContext) ChildText(node *sitter.Node, kind string) string {
	if node == nil {
		return ""
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return c.Text(child)
		}
	}
	return ""
}

// Chain flattens an identifier or attribute access into its dotted parts.
// It returns nil for any other expression.
func (c *ExtractionContext) Chain(node *sitter.Node) []string {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier":
		return []string{c.Text(node)}
	case "attribute":
		head := c.Chain(node.ChildByFieldName("object"))
		if head == nil {
			return nil
		}
		attr := node.ChildByFieldName("attribute")
		if attr == nil {
			return nil
		}
		return append(head, c.Text(attr))
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return c.Chain(node.NamedChild(0))
		}
	}
	return nil
}

// CompactText returns node text with whitespace removed, for annotations and bases.
func (c *ExtractionContext) CompactText(node *sitter.Node) string {
	return strings.Join(strings.Fields(c.Text(node)), "")
}
