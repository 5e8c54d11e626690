package graph

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"callmap/internal/core/errors"
	"callmap/internal/engine/symbols"
)

const sqliteDriverName = "sqlite"

// SnapshotStore persists exported runs in SQLite, one row set per run ID.
type SnapshotStore struct {
	db *sql.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, errors.New(errors.CodeValidationError, "snapshot store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, errors.Newf(errors.CodeValidationError, "snapshot store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite snapshot store %q: %w", cleanPath, err)
	}
	if err := migrateSnapshotSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes exp as a new run and returns its ID. The export itself is not
// modified; its RunID field is ignored.
func (s *SnapshotStore) Save(ctx context.Context, exp *Export, root string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New(errors.CodeInternal, "snapshot store not initialized")
	}
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, root, created_at) VALUES (?, ?, ?)`,
		runID, root, time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	symStmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols(
  run_id, qualified_name, module_name, kind, visibility,
  has_signature, fixed_arity, required_arity, variadic_positional, variadic_keyword,
  file_path, line_number, column_number
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer symStmt.Close()
	for _, sym := range exp.Symbols {
		var sig symbols.Signature
		if sym.Signature != nil {
			sig = *sym.Signature
		}
		if _, err := symStmt.ExecContext(ctx,
			runID, sym.QualifiedName, sym.Module, string(sym.Kind), string(sym.Visibility),
			boolToInt(sym.Signature != nil), sig.FixedArity, sig.RequiredArity,
			boolToInt(sig.VariadicPositional), boolToInt(sig.VariadicKeyword),
			sym.Path, sym.Line, sym.Column); err != nil {
			return "", fmt.Errorf("insert symbol %s: %w", sym.QualifiedName, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO edges(run_id, caller, callee, count, resolved) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range exp.Edges {
		if _, err := edgeStmt.ExecContext(ctx, runID, e.Caller, e.Callee, e.Count, boolToInt(e.Resolved)); err != nil {
			return "", fmt.Errorf("insert edge %s -> %s: %w", e.Caller, e.Callee, err)
		}
	}

	diagStmt, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics(
  run_id, ordinal, kind, severity, file_path, line_number, column_number, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer diagStmt.Close()
	for i, d := range exp.Diagnostics {
		if _, err := diagStmt.ExecContext(ctx,
			runID, i, string(d.Kind), string(d.Severity), d.Path, d.Line, d.Column, d.Message); err != nil {
			return "", fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", runID, err)
	}
	return runID, nil
}

// LatestRunID returns the most recently saved run, or NOT_FOUND for an empty store.
func (s *SnapshotStore) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&runID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.New(errors.CodeNotFound, "snapshot store has no runs")
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

// Load reads a saved run back in the same order Export produced it.
func (s *SnapshotStore) Load(ctx context.Context, runID string) (*Export, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "unknown run"), "run_id", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	exp := &Export{RunID: runID, Symbols: []SymbolView{}, Edges: []EdgeView{}, Diagnostics: []errors.Diagnostic{}}
	if err := s.loadSymbols(ctx, exp); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, exp); err != nil {
		return nil, err
	}
	if err := s.loadDiagnostics(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SnapshotStore) loadSymbols(ctx context.Context, exp *Export) error {
	rows, err := s.db.QueryContext(ctx, `SELECT
  qualified_name, module_name, kind, visibility,
  has_signature, fixed_arity, required_arity, variadic_positional, variadic_keyword,
  file_path, line_number, column_number
FROM symbols
WHERE run_id = ?
ORDER BY qualified_name`, exp.RunID)
	if err != nil {
		return fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			view                  SymbolView
			kind, visibility      string
			hasSig, varPos, varKW int
			fixed, required       int
		)
		if err := rows.Scan(&view.QualifiedName, &view.Module, &kind, &visibility,
			&hasSig, &fixed, &required, &varPos, &varKW,
			&view.Path, &view.Line, &view.Column); err != nil {
			return fmt.Errorf("scan symbol: %w", err)
		}
		view.Kind = symbols.Kind(kind)
		view.Visibility = symbols.Visibility(visibility)
		if hasSig == 1 {
			view.Signature = &symbols.Signature{
				FixedArity:         fixed,
				RequiredArity:      required,
				VariadicPositional: varPos == 1,
				VariadicKeyword:    varKW == 1,
				Declared:           true,
			}
		}
		exp.Symbols = append(exp.Symbols, view)
	}
	return rows.Err()
}

func (s *SnapshotStore) loadEdges(ctx context.Context, exp *Export) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT caller, callee, count, resolved FROM edges WHERE run_id = ? ORDER BY caller, callee`, exp.RunID)
	if err != nil {
		return fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EdgeView
		var resolved int
		if err := rows.Scan(&e.Caller, &e.Callee, &e.Count, &resolved); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		e.Resolved = resolved == 1
		exp.Edges = append(exp.Edges, e)
	}
	return rows.Err()
}

func (s *SnapshotStore) loadDiagnostics(ctx context.Context, exp *Export) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, severity, file_path, line_number, column_number, message
FROM diagnostics
WHERE run_id = ?
ORDER BY ordinal`, exp.RunID)
	if err != nil {
		return fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d errors.Diagnostic
		var kind, severity string
		if err := rows.Scan(&kind, &severity, &d.Path, &d.Line, &d.Column, &d.Message); err != nil {
			return fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Kind = errors.ErrorCode(kind)
		d.Severity = errors.Severity(severity)
		exp.Diagnostics = append(exp.Diagnostics, d)
	}
	return rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
