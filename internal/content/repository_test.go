package content

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(openTestDB(t))
}

func saveContent(t *testing.T, repo *Repository, parentID int, name string) *Entity {
	t.Helper()
	e := &Entity{Category: valueset.CategoryContent, ParentID: parentID, TypeID: 1, TypeAlias: "page", Name: name}
	require.NoError(t, repo.Save(context.Background(), e))
	return e
}

func TestRepository_SaveDerivesPathAndLevel(t *testing.T) {
	// Given: a root node and a child
	repo := newTestRepo(t)
	home := saveContent(t, repo, 0, "Home")
	about := saveContent(t, repo, home.ID, "About")

	// Then: ids are assigned and paths follow the tree
	assert.NotZero(t, home.ID)
	assert.Equal(t, valueset.RootID, home.ParentID)
	assert.Equal(t, "-1,"+itoa(home.ID), home.Path)
	assert.Equal(t, 1, home.Level)
	assert.Equal(t, home.Path+","+itoa(about.ID), about.Path)
	assert.Equal(t, 2, about.Level)

	// And: the stored entity round-trips
	got, err := repo.Get(context.Background(), about.ID)
	require.NoError(t, err)
	assert.Equal(t, about.Key, got.Key)
	assert.Equal(t, "About", got.Name)
	assert.Equal(t, "page", got.TypeAlias)
	assert.False(t, got.CreateDate.IsZero())
}

func TestRepository_SaveKeepsPropertiesAndCultures(t *testing.T) {
	repo := newTestRepo(t)
	e := &Entity{
		Category:        valueset.CategoryContent,
		TypeAlias:       "article",
		Name:            "Article",
		VariesByCulture: true,
		Cultures: map[string]Culture{
			"en-US": {Name: "Article", Published: true},
			"da-DK": {Name: "Artikel"},
		},
	}
	e.SetProperty("title", "en-US", "Hello")
	e.SetProperty("summary", InvariantCulture, "shared")
	require.NoError(t, repo.Save(context.Background(), e))

	got, err := repo.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, got.Cultures["en-US"].Published)
	assert.Equal(t, "Artikel", got.Cultures["da-DK"].Name)
	assert.Equal(t, "Hello", got.Properties["title"]["en-us"])
	assert.Equal(t, "shared", got.Properties["summary"][InvariantCulture])
}

func TestRepository_MediaIsAlwaysPublished(t *testing.T) {
	repo := newTestRepo(t)
	m := &Entity{Category: valueset.CategoryMedia, TypeAlias: "image", Name: "logo.png"}
	require.NoError(t, repo.Save(context.Background(), m))

	got, err := repo.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, got.Published)
}

func TestRepository_SaveRejectsMissingParent(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Save(context.Background(), &Entity{Category: valueset.CategoryContent, ParentID: 999})
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), 42)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}

func TestRepository_MoveRewritesSubtree(t *testing.T) {
	// Given: Home > Blog > Post, and a separate Archive root
	repo := newTestRepo(t)
	ctx := context.Background()
	home := saveContent(t, repo, 0, "Home")
	blog := saveContent(t, repo, home.ID, "Blog")
	post := saveContent(t, repo, blog.ID, "Post")
	archive := saveContent(t, repo, 0, "Archive")

	// When: moving Blog under Archive
	moved, err := repo.Move(ctx, blog.ID, archive.ID)
	require.NoError(t, err)

	// Then: Blog and Post carry the new ancestry
	assert.Equal(t, archive.Path+","+itoa(blog.ID), moved.Path)
	assert.Equal(t, 2, moved.Level)
	gotPost, err := repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, moved.Path+","+itoa(post.ID), gotPost.Path)
	assert.Equal(t, 3, gotPost.Level)
	assert.False(t, valueset.PathContainsAncestor(gotPost.Path, home.ID))
}

func TestRepository_MoveToRecycleBin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	home := saveContent(t, repo, 0, "Home")
	child := saveContent(t, repo, home.ID, "Child")

	moved, err := repo.Move(ctx, home.ID, valueset.RecycleBinContentID)
	require.NoError(t, err)
	assert.Equal(t, "-1,-20,"+itoa(home.ID), moved.Path)
	assert.True(t, moved.IsTrashed())

	gotChild, err := repo.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, gotChild.IsTrashed())
	assert.Equal(t, 3, gotChild.Level)
}

func TestRepository_MoveBelowItselfFails(t *testing.T) {
	repo := newTestRepo(t)
	home := saveContent(t, repo, 0, "Home")
	child := saveContent(t, repo, home.ID, "Child")

	_, err := repo.Move(context.Background(), home.ID, child.ID)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))

	_, err = repo.Move(context.Background(), home.ID, home.ID)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
}

func TestRepository_DeleteRemovesSubtreeAndRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	home := saveContent(t, repo, 0, "Home")
	child := saveContent(t, repo, home.ID, "Child")
	grandchild := saveContent(t, repo, child.ID, "Grandchild")
	other := saveContent(t, repo, 0, "Other")
	require.NoError(t, repo.Protect(ctx, child.ID))

	removed, err := repo.Delete(ctx, home.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{home.ID, child.ID, grandchild.ID}, removed)

	_, err = repo.Get(ctx, grandchild.ID)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
	_, err = repo.Get(ctx, other.ID)
	assert.NoError(t, err)

	rules, err := repo.ProtectedNodeIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRepository_ProtectUnprotect(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := saveContent(t, repo, 0, "A")
	b := saveContent(t, repo, 0, "B")

	require.NoError(t, repo.Protect(ctx, b.ID))
	require.NoError(t, repo.Protect(ctx, a.ID))
	require.NoError(t, repo.Protect(ctx, a.ID))

	ids, err := repo.ProtectedNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{a.ID, b.ID}, ids)

	require.NoError(t, repo.Unprotect(ctx, a.ID))
	ids, err = repo.ProtectedNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{b.ID}, ids)

	assert.True(t, errors.Is(repo.Protect(ctx, 999), ierrors.ErrEntityNotFound))
}

func TestRepository_ListPagesByCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	var ids []int
	for i := 0; i < 5; i++ {
		ids = append(ids, saveContent(t, repo, 0, "Page").ID)
	}
	require.NoError(t, repo.Save(ctx, &Entity{Category: valueset.CategoryMedia, Name: "img"}))

	first, err := repo.List(ctx, valueset.CategoryContent, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].ID)

	rest, err := repo.List(ctx, valueset.CategoryContent, first[1].ID, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 3)

	n, err := repo.Count(ctx, valueset.CategoryContent)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRepository_IDsByType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := &Entity{Category: valueset.CategoryContent, TypeID: 7, Name: "a"}
	b := &Entity{Category: valueset.CategoryContent, TypeID: 8, Name: "b"}
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	ids, err := repo.IDsByType(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{a.ID}, ids)
}

func TestRepository_ScopeRollbackDiscardsWrites(t *testing.T) {
	// Given: a save inside a scope that is never completed
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx, s, err := scope.NewProvider(db).Begin(context.Background())
	require.NoError(t, err)

	e := &Entity{Category: valueset.CategoryContent, Name: "draft"}
	require.NoError(t, repo.Save(ctx, e))

	// When: closing without completing
	require.NoError(t, s.Close(ctx))

	// Then: nothing was persisted
	_, err = repo.Get(context.Background(), e.ID)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}

func TestRepository_ReadUnitIgnoresAmbientScope(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	committed := saveContent(t, repo, 0, "Committed")

	ctx, s, err := scope.NewProvider(db).Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Close(ctx) }()
	pending := &Entity{Category: valueset.CategoryContent, Name: "Pending"}
	require.NoError(t, repo.Save(ctx, pending))

	unit, err := repo.BeginRead(ctx)
	require.NoError(t, err)
	defer unit.Close()

	_, err = unit.Get(ctx, committed.ID)
	assert.NoError(t, err)
	_, err = unit.Get(ctx, pending.ID)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}

func itoa(i int) string {
	return itoas([]int{i})[0]
}
