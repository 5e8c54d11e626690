package graph

import (
	"database/sql"
	"fmt"
)

const snapshotSchemaVersion = 1

// migrateSnapshotSchema brings the store to snapshotSchemaVersion, tracked in
// PRAGMA user_version.
func migrateSnapshotSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > snapshotSchemaVersion {
		return fmt.Errorf("snapshot store schema v%d is newer than supported v%d", version, snapshotSchemaVersion)
	}
	if version == snapshotSchemaVersion {
		return nil
	}

	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id     TEXT    NOT NULL UNIQUE,
  root       TEXT    NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  run_id              TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  qualified_name      TEXT    NOT NULL,
  module_name         TEXT    NOT NULL DEFAULT '',
  kind                TEXT    NOT NULL,
  visibility          TEXT    NOT NULL,
  has_signature       INTEGER NOT NULL DEFAULT 0,
  fixed_arity         INTEGER NOT NULL DEFAULT 0,
  required_arity      INTEGER NOT NULL DEFAULT 0,
  variadic_positional INTEGER NOT NULL DEFAULT 0,
  variadic_keyword    INTEGER NOT NULL DEFAULT 0,
  file_path           TEXT    NOT NULL DEFAULT '',
  line_number         INTEGER NOT NULL DEFAULT 0,
  column_number       INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, qualified_name)
);

CREATE TABLE IF NOT EXISTS edges (
  run_id   TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  caller   TEXT    NOT NULL,
  callee   TEXT    NOT NULL,
  count    INTEGER NOT NULL,
  resolved INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, caller, callee)
);
CREATE INDEX IF NOT EXISTS idx_edges_run_callee ON edges(run_id, callee);

CREATE TABLE IF NOT EXISTS diagnostics (
  run_id        TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  ordinal       INTEGER NOT NULL,
  kind          TEXT    NOT NULL,
  severity      TEXT    NOT NULL,
  file_path     TEXT    NOT NULL DEFAULT '',
  line_number   INTEGER NOT NULL DEFAULT 0,
  column_number INTEGER NOT NULL DEFAULT 0,
  message       TEXT    NOT NULL DEFAULT '',
  PRIMARY KEY (run_id, ordinal)
);

PRAGMA user_version = 1;
`)
	if err != nil {
		return fmt.Errorf("create v%d schema: %w", snapshotSchemaVersion, err)
	}
	return nil
}
