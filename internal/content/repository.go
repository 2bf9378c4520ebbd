package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists entities. Calls made with a context carrying a scope
// run inside that scope's transaction.
type Repository struct {
	db  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

// NewRepository creates a Repository over db. The schema must exist (see Migrate).
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// DB returns the underlying database.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) q(ctx context.Context) querier {
	if r.tx != nil {
		return r.tx
	}
	if s, ok := scope.Current(ctx); ok && s.Tx() != nil {
		return s.Tx()
	}
	return r.db
}

// ReadUnit is a read-only unit of work with its own transaction. It never
// commits; Close releases it.
type ReadUnit struct {
	*Repository
}

// BeginRead opens a read unit that is independent of any ambient scope.
func (r *Repository) BeginRead(ctx context.Context) (*ReadUnit, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ierrors.RepositoryError("begin read unit", err)
	}
	return &ReadUnit{Repository: &Repository{db: r.db, tx: tx, now: r.now}}, nil
}

// Close rolls the read transaction back.
func (u *ReadUnit) Close() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

const nodeColumns = `id, node_key, category, parent_id, path, level, type_id, type_alias, name,
	published, varies_by_culture, cultures, properties, email, login_name, create_date, update_date`

// Save inserts or updates e. A zero ID is assigned by the database; a zero
// Key gets a random UUID. Path and Level are derived from ParentID.
func (r *Repository) Save(ctx context.Context, e *Entity) error {
	if e.Category == "" {
		return ierrors.InvalidInput("entity category is required")
	}
	if e.ParentID == 0 {
		e.ParentID = valueset.RootID
	}
	if e.Key == uuid.Nil {
		e.Key = uuid.New()
	}
	if e.Category == valueset.CategoryMedia {
		e.Published = true
	}

	now := r.now().UTC()
	if e.CreateDate.IsZero() {
		e.CreateDate = now
	}
	e.UpdateDate = now

	parentPath, err := r.parentPath(ctx, e.ParentID)
	if err != nil {
		return err
	}

	q := r.q(ctx)
	if e.ID == 0 {
		res, err := q.ExecContext(ctx, `INSERT INTO nodes (node_key, category, parent_id, path, level, create_date, update_date)
			VALUES (?, ?, ?, '', 0, ?, ?)`,
			e.Key.String(), string(e.Category), e.ParentID, formatTime(now), formatTime(now))
		if err != nil {
			return ierrors.RepositoryError("insert node", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ierrors.RepositoryError("insert node", err)
		}
		e.ID = int(id)
	}
	e.Path = childPath(parentPath, e.ID)
	e.Level = pathLevel(e.Path)

	cultures, err := json.Marshal(e.Cultures)
	if err != nil {
		return ierrors.RepositoryError("encode cultures", err)
	}
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return ierrors.RepositoryError("encode properties", err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			node_key = excluded.node_key,
			category = excluded.category,
			parent_id = excluded.parent_id,
			path = excluded.path,
			level = excluded.level,
			type_id = excluded.type_id,
			type_alias = excluded.type_alias,
			name = excluded.name,
			published = excluded.published,
			varies_by_culture = excluded.varies_by_culture,
			cultures = excluded.cultures,
			properties = excluded.properties,
			email = excluded.email,
			login_name = excluded.login_name,
			update_date = excluded.update_date`,
		e.ID, e.Key.String(), string(e.Category), e.ParentID, e.Path, e.Level,
		e.TypeID, e.TypeAlias, e.Name, e.Published, e.VariesByCulture,
		string(cultures), string(props), e.Email, e.LoginName,
		formatTime(e.CreateDate), formatTime(e.UpdateDate))
	if err != nil {
		return ierrors.RepositoryError("save node", err).WithDetail("entity_id", strconv.Itoa(e.ID))
	}
	return nil
}

func (r *Repository) parentPath(ctx context.Context, parentID int) (string, error) {
	if p, ok := sentinelPath(parentID); ok {
		return p, nil
	}
	var path string
	err := r.q(ctx).QueryRowContext(ctx, `SELECT path FROM nodes WHERE id = ?`, parentID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ierrors.New(ierrors.ErrCodeEntityNotFound, fmt.Sprintf("parent %d not found", parentID), nil)
	}
	if err != nil {
		return "", ierrors.RepositoryError("load parent", err)
	}
	return path, nil
}

// Get loads one entity. A missing entity yields ErrEntityNotFound.
func (r *Repository) Get(ctx context.Context, id int) (*Entity, error) {
	row := r.q(ctx).QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ierrors.New(ierrors.ErrCodeEntityNotFound, fmt.Sprintf("entity %d not found", id), nil)
	}
	if err != nil {
		return nil, ierrors.RepositoryError("load node", err)
	}
	return e, nil
}

// Children returns the direct children of id ordered by id.
func (r *Repository) Children(ctx context.Context, id int) ([]*Entity, error) {
	return r.query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? ORDER BY id`, id)
}

// Descendants returns every entity below id ordered by level then id.
func (r *Repository) Descendants(ctx context.Context, id int) ([]*Entity, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE path LIKE ? ORDER BY level, id`, e.Path+",%")
}

// List returns up to limit entities of category with id greater than afterID.
func (r *Repository) List(ctx context.Context, category valueset.Category, afterID, limit int) ([]*Entity, error) {
	return r.query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE category = ? AND id > ? ORDER BY id LIMIT ?`,
		string(category), afterID, limit)
}

// Count returns the number of entities of category.
func (r *Repository) Count(ctx context.Context, category valueset.Category) (int, error) {
	var n int
	err := r.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE category = ?`, string(category)).Scan(&n)
	if err != nil {
		return 0, ierrors.RepositoryError("count nodes", err)
	}
	return n, nil
}

// IDsByType returns the ids of entities with the given type.
func (r *Repository) IDsByType(ctx context.Context, typeID int) ([]int, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT id FROM nodes WHERE type_id = ? ORDER BY id`, typeID)
	if err != nil {
		return nil, ierrors.RepositoryError("list nodes by type", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, ierrors.RepositoryError("scan node id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Move re-parents id and rewrites the paths of its subtree.
func (r *Repository) Move(ctx context.Context, id, newParentID int) (*Entity, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	parentPath, err := r.parentPath(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if valueset.PathContainsAncestor(childPath(parentPath, 0), id) || newParentID == id {
		return nil, ierrors.InvalidInput(fmt.Sprintf("cannot move %d below itself", id))
	}

	oldPath := e.Path
	newPath := childPath(parentPath, id)
	delta := pathLevel(newPath) - e.Level

	q := r.q(ctx)
	now := formatTime(r.now().UTC())
	if _, err := q.ExecContext(ctx, `UPDATE nodes SET parent_id = ?, path = ?, level = ?, update_date = ? WHERE id = ?`,
		newParentID, newPath, pathLevel(newPath), now, id); err != nil {
		return nil, ierrors.RepositoryError("move node", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE nodes
		SET path = ? || substr(path, ?), level = level + ?, update_date = ?
		WHERE path LIKE ?`,
		newPath, len(oldPath)+1, delta, now, oldPath+",%"); err != nil {
		return nil, ierrors.RepositoryError("move subtree", err)
	}
	return r.Get(ctx, id)
}

// Delete removes id and its subtree, returning the removed ids.
func (r *Repository) Delete(ctx context.Context, id int) ([]int, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	desc, err := r.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := []int{e.ID}
	for _, d := range desc {
		ids = append(ids, d.ID)
	}

	q := r.q(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ? OR path LIKE ?`, id, e.Path+",%"); err != nil {
		return nil, ierrors.RepositoryError("delete nodes", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM public_access WHERE node_id IN (`+placeholders+`)`, args...); err != nil {
		return nil, ierrors.RepositoryError("delete access rules", err)
	}
	return ids, nil
}

// Protect adds a public-access rule on id.
func (r *Repository) Protect(ctx context.Context, id int) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if _, err := r.q(ctx).ExecContext(ctx, `INSERT OR IGNORE INTO public_access (node_id) VALUES (?)`, id); err != nil {
		return ierrors.RepositoryError("protect node", err)
	}
	return nil
}

// Unprotect removes the public-access rule on id.
func (r *Repository) Unprotect(ctx context.Context, id int) error {
	if _, err := r.q(ctx).ExecContext(ctx, `DELETE FROM public_access WHERE node_id = ?`, id); err != nil {
		return ierrors.RepositoryError("unprotect node", err)
	}
	return nil
}

// ProtectedNodeIDs lists the nodes carrying a public-access rule.
func (r *Repository) ProtectedNodeIDs(ctx context.Context) ([]int, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT node_id FROM public_access ORDER BY node_id`)
	if err != nil {
		return nil, ierrors.RepositoryError("list access rules", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, ierrors.RepositoryError("scan access rule", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]*Entity, error) {
	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierrors.RepositoryError("query nodes", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, ierrors.RepositoryError("scan node", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ierrors.RepositoryError("query nodes", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(s scanner) (*Entity, error) {
	var (
		e                      Entity
		key, category          string
		cultures, props        string
		createDate, updateDate string
	)
	err := s.Scan(&e.ID, &key, &category, &e.ParentID, &e.Path, &e.Level, &e.TypeID, &e.TypeAlias, &e.Name,
		&e.Published, &e.VariesByCulture, &cultures, &props, &e.Email, &e.LoginName, &createDate, &updateDate)
	if err != nil {
		return nil, err
	}

	e.Category = valueset.Category(category)
	if e.Key, err = uuid.Parse(key); err != nil {
		return nil, fmt.Errorf("node %d: bad key: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(cultures), &e.Cultures); err != nil {
		return nil, fmt.Errorf("node %d: bad cultures: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
		return nil, fmt.Errorf("node %d: bad properties: %w", e.ID, err)
	}
	e.CreateDate = parseTime(createDate)
	e.UpdateDate = parseTime(updateDate)
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
