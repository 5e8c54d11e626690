package parser

import (
	"sync"
	"testing"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

func pythonLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_python.Language())
}

func TestParserPool_GetPut(t *testing.T) {
	pool := NewParserPool(pythonLanguage())

	sp := pool.Get()
	if sp == nil {
		t.Fatal("expected non-nil parser from pool")
	}
	if pool.Leased() != 1 {
		t.Errorf("expected 1 leased parser, got %d", pool.Leased())
	}
	pool.Put(sp)
	if pool.Leased() != 0 {
		t.Errorf("expected 0 leased parsers after Put, got %d", pool.Leased())
	}
}

func TestParserPool_PutNil(t *testing.T) {
	pool := NewParserPool(pythonLanguage())
	pool.Put(nil)
}

func TestParserPool_ParsesPython(t *testing.T) {
	pool := NewParserPool(pythonLanguage())

	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse([]byte("def f():\n    return 1\n"), nil)
	if tree == nil {
		t.Fatal("expected a tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.Kind() != "module" {
		t.Errorf("expected module root, got %q", root.Kind())
	}
	if root.HasError() {
		t.Error("unexpected syntax error")
	}
}

func TestParserPool_Concurrent(t *testing.T) {
	pool := NewParserPool(pythonLanguage())
	src := []byte("class A:\n    def m(self):\n        pass\n")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				sp := pool.Get()
				tree := sp.Parse(src, nil)
				if tree == nil || tree.RootNode().HasError() {
					t.Error("concurrent parse failed")
				}
				if tree != nil {
					tree.Close()
				}
				pool.Put(sp)
			}
		}()
	}
	wg.Wait()

	if pool.Leased() != 0 {
		t.Errorf("expected all parsers returned, got %d leased", pool.Leased())
	}
}
