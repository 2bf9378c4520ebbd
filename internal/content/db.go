package content

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Open opens the content database at path, creating it if needed.
// WAL mode lets the background worker read while a scope holds the write transaction.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("content database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set them again.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS nodes (
	id                INTEGER PRIMARY KEY,
	node_key          TEXT NOT NULL UNIQUE,
	category          TEXT NOT NULL,
	parent_id         INTEGER NOT NULL,
	path              TEXT NOT NULL,
	level             INTEGER NOT NULL,
	type_id           INTEGER NOT NULL DEFAULT 0,
	type_alias        TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL DEFAULT '',
	published         INTEGER NOT NULL DEFAULT 0,
	varies_by_culture INTEGER NOT NULL DEFAULT 0,
	cultures          TEXT NOT NULL DEFAULT '{}',
	properties        TEXT NOT NULL DEFAULT '{}',
	email             TEXT NOT NULL DEFAULT '',
	login_name        TEXT NOT NULL DEFAULT '',
	create_date       TEXT NOT NULL,
	update_date       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_category ON nodes(category, id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type_id);

CREATE TABLE IF NOT EXISTS public_access (
	node_id INTEGER PRIMARY KEY
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
