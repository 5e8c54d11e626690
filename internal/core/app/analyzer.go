package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"callmap/internal/core/config"
	"callmap/internal/core/errors"
	"callmap/internal/engine/graph"
	"callmap/internal/engine/parser"
	"callmap/internal/engine/resolver"
	"callmap/internal/engine/symbols"
	"callmap/internal/shared/observability"
	"callmap/internal/shared/util"
)

// ModuleResult is the immutable phase-one output for one module.
type ModuleResult struct {
	Source SourceFile
	File   *parser.File
	Table  *symbols.Table // nil when the file has syntax errors
}

// Report summarizes one analysis run.
type Report struct {
	RunID       string
	Modules     int
	Failed      int
	Stats       graph.Stats
	Diagnostics []errors.Diagnostic
	Duration    time.Duration
}

// Analyzer owns the call graph of a source tree. Runs are serialized; the
// graph itself may be queried concurrently through Graph.
type Analyzer struct {
	cfg     *config.Config
	parser  *parser.Parser
	scanner *Scanner
	policy  symbols.VisibilityPolicy
	opts    resolver.Options
	store   *graph.SnapshotStore

	mu          sync.Mutex
	graph       *graph.CallGraph
	modules     map[string]*ModuleResult
	byPath      map[string]string
	diagnostics []errors.Diagnostic
}

func New(cfg *config.Config) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	p := parser.NewParser(parser.NewGrammarLoader())
	scanner, err := NewScanner(p, cfg.Paths, cfg.Analysis.IncludeTests)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg:     cfg,
		parser:  p,
		scanner: scanner,
		policy: symbols.VisibilityPolicy{
			DunderPublic:   cfg.Visibility.DunderIsPublic(),
			MangledPrivate: cfg.Visibility.MangledPrivate,
		},
		opts: resolver.Options{
			ExternalSentinel:      cfg.Resolver.UseExternalSentinel(),
			CheckArity:            cfg.Resolver.CheckArity,
			ReportExternalImports: cfg.Resolver.ShouldReportExternalImports(),
		},
		graph:   graph.New(),
		modules: make(map[string]*ModuleResult),
		byPath:  make(map[string]string),
	}

	if cfg.Store.Enabled {
		store, err := graph.OpenSnapshotStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func (a *Analyzer) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *Analyzer) Graph() *graph.CallGraph {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph
}

func (a *Analyzer) Scanner() *Scanner { return a.scanner }

func (a *Analyzer) Store() *graph.SnapshotStore { return a.store }

// Diagnostics returns the diagnostics of the latest run, sorted.
func (a *Analyzer) Diagnostics() []errors.Diagnostic {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]errors.Diagnostic(nil), a.diagnostics...)
}

// Export snapshots the current graph with the latest run's diagnostics.
func (a *Analyzer) Export() *graph.Export {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph.Export(a.diagnostics)
}

// Run analyzes every module under the configured roots from scratch.
func (a *Analyzer) Run(ctx context.Context) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "analyzer.run")
	defer span.End()
	start := time.Now()

	sources, err := a.scanner.Scan()
	if err != nil {
		return nil, failSpan(span, errors.Wrap(err, errors.CodeValidationError, "scan source roots"))
	}
	span.SetAttributes(attribute.Int("files", len(sources)))

	results, err := a.parseAll(ctx, sources)
	if err != nil {
		return nil, failSpan(span, err)
	}

	a.modules = make(map[string]*ModuleResult, len(results))
	a.byPath = make(map[string]string, len(results))
	for _, res := range results {
		a.modules[res.Source.Module] = res
		a.byPath[res.Source.Path] = res.Source.Module
	}

	report, err := a.link(ctx, start)
	if err != nil {
		return report, failSpan(span, err)
	}
	return report, nil
}

// Update re-parses changed files, drops removed ones and re-links the batch.
// Modules whose files did not change keep their phase-one results.
func (a *Analyzer) Update(ctx context.Context, changed, removed []string) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "analyzer.update", trace.WithAttributes(
		attribute.Int("changed", len(changed)),
		attribute.Int("removed", len(removed)),
	))
	defer span.End()
	start := time.Now()

	for _, path := range removed {
		a.dropPath(path)
	}

	var sources []SourceFile
	for _, path := range changed {
		src, ok := a.scanner.Locate(path)
		if !ok {
			a.dropPath(path)
			continue
		}
		if owner, ok := a.modules[src.Module]; ok && owner.Source.Path != src.Path {
			slog.Warn("duplicate module path, keeping first file", "module", src.Module, "kept", owner.Source.Path, "skipped", src.Path)
			continue
		}
		sources = append(sources, src)
	}

	results, err := a.parseAll(ctx, sources)
	if err != nil {
		return nil, failSpan(span, err)
	}
	for _, res := range results {
		a.modules[res.Source.Module] = res
		a.byPath[res.Source.Path] = res.Source.Module
	}

	report, err := a.link(ctx, start)
	if err != nil {
		return report, failSpan(span, err)
	}
	return report, nil
}

func (a *Analyzer) dropPath(path string) {
	path = filepath.Clean(path)
	module, ok := a.byPath[path]
	if !ok {
		return
	}
	delete(a.byPath, path)
	delete(a.modules, module)
	slog.Debug("dropped module", "module", module, "path", path)
}

// parseAll is phase one: each source is read, parsed and turned into a symbol
// table on a bounded worker pool. Workers share nothing but the parser.
func (a *Analyzer) parseAll(ctx context.Context, sources []SourceFile) ([]*ModuleResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analyzer.parse")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds())
	}()

	results := make([]*ModuleResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Analysis.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.analyzeFile(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "analysis canceled during parsing")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "analysis canceled after parsing")
	}

	out := results[:0]
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out, nil
}

func (a *Analyzer) analyzeFile(src SourceFile) *ModuleResult {
	content, err := os.ReadFile(src.Path)
	if err != nil {
		slog.Warn("failed to read source file", "path", src.Path, "error", err)
		observability.ModulesAnalyzed.WithLabelValues("read_error").Inc()
		return nil
	}

	file, err := a.parser.ParseModule(src.Path, src.Module, content)
	if err != nil {
		slog.Warn("failed to parse source file", "path", src.Path, "error", err)
		observability.ModulesAnalyzed.WithLabelValues("parse_error").Inc()
		return nil
	}
	res := &ModuleResult{Source: src, File: file}
	if file.HasErrors() {
		slog.Warn("syntax error, module excluded from graph", "path", src.Path, "diagnostics", len(file.Diagnostics))
		observability.ModulesAnalyzed.WithLabelValues("syntax_error").Inc()
		return res
	}

	table, err := symbols.Build(file, a.policy)
	if err != nil {
		slog.Warn("failed to build symbol table", "path", src.Path, "error", err)
		observability.ModulesAnalyzed.WithLabelValues("symbol_error").Inc()
		return res
	}
	res.Table = table
	observability.ModulesAnalyzed.WithLabelValues("ok").Inc()
	return res
}

// link is phase two and assembly. It runs on the calling goroutine, the only
// writer of the graph. The batch is assembled into a new graph that replaces
// the served one only once it validates, so a failed run leaves the previous
// graph and diagnostics in place.
func (a *Analyzer) link(ctx context.Context, start time.Time) (*Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "analyzer.resolve")
	resolveStart := time.Now()

	modules := util.SortedStringKeys(a.modules)
	tables := make([]*symbols.Table, 0, len(modules))
	var diags []errors.Diagnostic
	failed := 0
	for _, module := range modules {
		res := a.modules[module]
		diags = append(diags, res.File.Diagnostics...)
		if res.Table == nil {
			failed++
			continue
		}
		tables = append(tables, res.Table)
	}

	resolved, err := resolver.New(tables, a.opts).ResolveAll()
	observability.AnalysisDuration.WithLabelValues("resolve").Observe(time.Since(resolveStart).Seconds())
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = observability.Tracer.Start(ctx, "analyzer.assemble")
	defer span.End()
	assembleStart := time.Now()

	byModule := make(map[string]*resolver.Result, len(resolved))
	for _, res := range resolved {
		byModule[res.Module] = res
		diags = append(diags, res.Diagnostics...)
	}
	next := graph.New()
	var assembleErr error
	for _, module := range modules {
		res := a.modules[module]
		if res.Table == nil {
			continue
		}
		if err := next.Apply(graph.NewContribution(res.Table, byModule[module])); err != nil {
			assembleErr = err
			break
		}
	}
	if assembleErr == nil {
		assembleErr = next.Validate()
	}
	observability.AnalysisDuration.WithLabelValues("assemble").Observe(time.Since(assembleStart).Seconds())

	errors.SortDiagnostics(diags)
	for kind, n := range errors.CountByKind(diags) {
		observability.DiagnosticsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}

	report := &Report{
		Modules:     len(modules),
		Failed:      failed,
		Stats:       next.Stats(),
		Diagnostics: diags,
	}
	if assembleErr != nil {
		report.Duration = time.Since(start)
		slog.Error("graph assembly failed, keeping previous graph", "error", assembleErr)
		return report, assembleErr
	}
	a.graph = next
	a.diagnostics = diags

	if a.store != nil {
		runID, err := a.store.Save(ctx, a.graph.Export(diags), strings.Join(a.scanner.Roots(), string(os.PathListSeparator)))
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("save snapshot: %w", err)
		}
		report.RunID = runID
	}

	report.Duration = time.Since(start)
	slog.Info("analysis complete",
		"modules", report.Modules,
		"failed", report.Failed,
		"symbols", report.Stats.Symbols,
		"edges", report.Stats.Edges,
		"diagnostics", len(diags),
		"duration", report.Duration,
		"heap_mb", util.HeapAllocMB(),
	)
	return report, nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
