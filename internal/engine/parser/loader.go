package parser

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

const LanguagePython = "python"

// LanguageSpec describes which files a grammar claims.
type LanguageSpec struct {
	Name             string
	Extensions       []string
	TestFilePrefixes []string
	TestFileSuffixes []string
}

var pythonSpec = LanguageSpec{
	Name:             LanguagePython,
	Extensions:       []string{".py", ".pyi"},
	TestFilePrefixes: []string{"test_"},
	TestFileSuffixes: []string{"_test.py"},
}

type GrammarLoader struct {
	languages map[string]*sitter.Language
	registry  map[string]LanguageSpec
	pools     map[string]*ParserPool
}

func NewGrammarLoader() *GrammarLoader {
	lang := sitter.NewLanguage(tree_sitter_python.Language())
	return &GrammarLoader{
		languages: map[string]*sitter.Language{LanguagePython: lang},
		registry:  map[string]LanguageSpec{LanguagePython: pythonSpec},
		pools:     map[string]*ParserPool{LanguagePython: NewParserPool(lang)},
	}
}

func (gl *GrammarLoader) Language(name string) *sitter.Language {
	return gl.languages[name]
}

func (gl *GrammarLoader) Pool(name string) *ParserPool {
	return gl.pools[name]
}

// LanguageFor returns the language claiming path, or "" if none does.
func (gl *GrammarLoader) LanguageFor(path string) string {
	lower := strings.ToLower(path)
	for name, spec := range gl.registry {
		for _, ext := range spec.Extensions {
			if strings.HasSuffix(lower, ext) {
				return name
			}
		}
	}
	return ""
}

func (gl *GrammarLoader) IsTestFile(base string) bool {
	lower := strings.ToLower(base)
	for _, spec := range gl.registry {
		for _, prefix := range spec.TestFilePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
		for _, suffix := range spec.TestFileSuffixes {
			if strings.HasSuffix(lower, suffix) {
				return true
			}
		}
	}
	return false
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	set := make(map[string]bool)
	for _, spec := range gl.registry {
		for _, ext := range spec.Extensions {
			set[ext] = true
		}
	}
	extensions := make([]string, 0, len(set))
	for ext := range set {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}
