package parser

import (
	"fmt"
	"time"

	"callmap/internal/core/errors"
	"callmap/internal/shared/observability"
)

// Parser turns source bytes into a File. It holds no per-file state and is
// safe to share between workers.
type Parser struct {
	loader    *GrammarLoader
	extractor *PythonExtractor
}

func NewParser(loader *GrammarLoader) *Parser {
	return &Parser{loader: loader, extractor: NewPythonExtractor()}
}

// ParseModule parses the file at path as the module named module.
// Syntax errors are reported as diagnostics on the returned File, not as an error.
func (p *Parser) ParseModule(path, module string, content []byte) (*File, error) {
	lang := p.loader.LanguageFor(path)
	if lang == "" {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotSupported, "unsupported language"),
			errors.CtxPath, path)
	}
	pool := p.loader.Pool(lang)
	if pool == nil {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("grammar not loaded: %s", lang))
	}

	sp := pool.Get()
	defer pool.Put(sp)

	start := time.Now()
	tree := sp.Parse(content, nil)
	observability.ParsingDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parse failed"), errors.CtxPath, path)
	}
	defer tree.Close()

	file, err := p.extractor.Extract(tree.RootNode(), content, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "extraction failed")
	}
	file.Module = module
	return file, nil
}

func (p *Parser) IsSupportedPath(path string) bool {
	return p.loader.LanguageFor(path) != ""
}

func (p *Parser) IsTestFile(base string) bool {
	return p.loader.IsTestFile(base)
}
