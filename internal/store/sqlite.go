package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// SQLiteIndex stores documents in SQLite: one row per document plus one row
// per field value for exact lookups. WAL mode lets other processes read the
// index while it is being written.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Index = (*SQLiteIndex)(nil)

// checkSQLiteIntegrity returns an error if an existing database fails
// integrity_check or lacks the documents table. A missing file is not an error.
func checkSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='documents'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table 'documents' missing")
	}
	return nil
}

// NewSQLiteIndex opens the index at path, creating it if needed. An empty path
// creates an in-memory index. A corrupted database is removed and recreated
// empty; the caller is expected to rebuild it.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}

		if validErr := checkSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("sqlite_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, rebuild required"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; also keeps an in-memory database on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set them again.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id    TEXT PRIMARY KEY,
		category  TEXT NOT NULL,
		item_type TEXT NOT NULL,
		fields    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS field_values (
		doc_id TEXT NOT NULL,
		field  TEXT NOT NULL,
		value  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_field_values_lookup ON field_values(field, value, doc_id);
	CREATE INDEX IF NOT EXISTS idx_field_values_doc ON field_values(doc_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	return err
}

// WriteItems adds or replaces documents in one transaction.
func (s *SQLiteIndex) WriteItems(ctx context.Context, items []*valueset.ValueSet) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents(doc_id, category, item_type, fields) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer docStmt.Close()

	clearStmt, err := tx.PrepareContext(ctx, `DELETE FROM field_values WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer clearStmt.Close()

	valueStmt, err := tx.PrepareContext(ctx, `INSERT INTO field_values(doc_id, field, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare value statement: %w", err)
	}
	defer valueStmt.Close()

	for _, vs := range items {
		doc := document(vs)
		encoded, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", vs.ID, err)
		}
		if _, err := docStmt.ExecContext(ctx, vs.ID, string(vs.Category), vs.ItemType, string(encoded)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", vs.ID, err)
		}
		if _, err := clearStmt.ExecContext(ctx, vs.ID); err != nil {
			return fmt.Errorf("failed to clear fields of %s: %w", vs.ID, err)
		}
		for field, values := range doc {
			for _, v := range values {
				if _, err := valueStmt.ExecContext(ctx, vs.ID, field, v); err != nil {
					return fmt.Errorf("failed to index field %s of %s: %w", field, vs.ID, err)
				}
			}
		}
	}
	return tx.Commit()
}

// DeleteItems removes documents by id.
func (s *SQLiteIndex) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inClause := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id IN (`+inClause+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM field_values WHERE doc_id IN (`+inClause+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete field values: %w", err)
	}
	return tx.Commit()
}

// Exists reports whether the index is open and, for on-disk indexes, its file is present.
func (s *SQLiteIndex) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	return s.path == "" || fileExists(s.path)
}

// SearchField returns the ids whose field holds value exactly, ordered by id.
func (s *SQLiteIndex) SearchField(ctx context.Context, field, value string, skip, take int) ([]string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, errIndexClosed
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT doc_id) FROM field_values WHERE field = ? AND value = ?`,
		field, value).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT doc_id FROM field_values WHERE field = ? AND value = ? ORDER BY doc_id LIMIT ? OFFSET ?`,
		field, value, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("failed to scan result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, total, rows.Err()
}

// DocumentCount returns the number of documents in the index.
func (s *SQLiteIndex) DocumentCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errIndexClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Clear deletes every document.
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errIndexClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents; DELETE FROM field_values;`); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Closing twice is a no-op.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
