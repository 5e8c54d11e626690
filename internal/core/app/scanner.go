package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"callmap/internal/core/config"
	"callmap/internal/engine/parser"
	"callmap/internal/shared/util"
)

// SourceFile is one discovered module and the root it was found under.
type SourceFile struct {
	Path   string
	Root   string
	Module string
}

// Scanner discovers Python modules under the configured roots.
type Scanner struct {
	parser       *parser.Parser
	roots        []string
	includeTests bool
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

func NewScanner(p *parser.Parser, paths config.Paths, includeTests bool) (*Scanner, error) {
	excludeDirs, err := compileGlobs(paths.ExcludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	excludeFiles, err := compileGlobs(paths.ExcludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}

	roots := make([]string, 0, len(paths.Roots))
	for _, root := range paths.Roots {
		roots = append(roots, filepath.Clean(root))
	}
	return &Scanner{
		parser:       p,
		roots:        roots,
		includeTests: includeTests,
		excludeDirs:  excludeDirs,
		excludeFiles: excludeFiles,
	}, nil
}

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Scanner) Roots() []string { return s.roots }

// Accept reports whether a file path is a module candidate, ignoring its
// directory. Directory exclusion is handled by Scan and Locate.
func (s *Scanner) Accept(path string) bool {
	if !s.parser.IsSupportedPath(path) {
		return false
	}
	base := filepath.Base(path)
	if !s.includeTests && s.parser.IsTestFile(base) {
		return false
	}
	for _, g := range s.excludeFiles {
		if g.Match(base) {
			return false
		}
	}
	return true
}

func (s *Scanner) excludedDir(name string) bool {
	for _, g := range s.excludeDirs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Scan walks every root and returns the discovered modules sorted by path.
// When two files map to the same module the first path wins.
func (s *Scanner) Scan() ([]SourceFile, error) {
	var files []SourceFile
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && s.excludedDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.Accept(path) {
				return nil
			}
			module, err := ModulePath(root, path)
			if err != nil {
				slog.Debug("skipping file without module path", "path", path, "error", err)
				return nil
			}
			files = append(files, SourceFile{Path: path, Root: root, Module: module})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	seen := make(map[string]string, len(files))
	out := files[:0]
	for _, f := range files {
		if prev, ok := seen[f.Module]; ok {
			slog.Warn("duplicate module path, keeping first file", "module", f.Module, "kept", prev, "skipped", f.Path)
			continue
		}
		seen[f.Module] = f.Path
		out = append(out, f)
	}
	return out, nil
}

// Locate maps a single path back to its root and module, applying the same
// filters as Scan.
func (s *Scanner) Locate(path string) (SourceFile, bool) {
	path = filepath.Clean(path)
	if !s.Accept(path) {
		return SourceFile{}, false
	}
	for _, root := range s.roots {
		if !util.HasPathPrefix(path, root) {
			continue
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			continue
		}
		excluded := false
		for _, part := range strings.Split(util.NormalizePatternPath(rel), "/") {
			if part != "" && s.excludedDir(part) {
				excluded = true
				break
			}
		}
		if excluded {
			return SourceFile{}, false
		}
		module, err := ModulePath(root, path)
		if err != nil {
			return SourceFile{}, false
		}
		return SourceFile{Path: path, Root: root, Module: module}, true
	}
	return SourceFile{}, false
}

// ModulePath derives the dotted module path of a file relative to its root:
// pkg/mod.py is pkg.mod and pkg/__init__.py is pkg.
func ModulePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = util.NormalizePatternPath(rel)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside root %s", path, root)
	}

	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(rel, "/")
	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%s is the root package initializer", path)
	}
	return strings.Join(parts, "."), nil
}
