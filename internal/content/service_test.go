package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

// recordingHandler records notifications as readable strings.
type recordingHandler struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (h *recordingHandler) Reindex(_ context.Context, category valueset.Category, id int, published bool) error {
	h.record(fmt.Sprintf("reindex %s %d %t", category, id, published))
	return h.err
}

func (h *recordingHandler) DeleteFromIndex(_ context.Context, ids []string, keepIfUnpublished bool) error {
	h.record(fmt.Sprintf("delete %v %t", ids, keepIfUnpublished))
	return h.err
}

func (h *recordingHandler) DeleteDocumentsForContentTypes(_ context.Context, typeIDs []int) error {
	h.record(fmt.Sprintf("purge %v", typeIDs))
	return h.err
}

func (h *recordingHandler) record(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, s)
}

func (h *recordingHandler) take() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

type serviceFixture struct {
	svc     *Service
	repo    *Repository
	scopes  *scope.Provider
	handler *recordingHandler
	access  *countingInvalidator
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := openTestDB(t)
	f := &serviceFixture{
		repo:    NewRepository(db),
		scopes:  scope.NewProvider(db),
		handler: &recordingHandler{},
		access:  &countingInvalidator{},
	}
	f.svc = NewService(f.repo, f.scopes, f.handler, f.access)
	return f
}

func (f *serviceFixture) page(t *testing.T, parentID int, name string, published bool) *Entity {
	t.Helper()
	e := &Entity{Category: valueset.CategoryContent, ParentID: parentID, TypeID: 1, TypeAlias: "page", Name: name, Published: published}
	require.NoError(t, f.svc.Save(context.Background(), e))
	f.handler.take()
	return e
}

func TestService_SaveReindexes(t *testing.T) {
	f := newServiceFixture(t)
	e := &Entity{Category: valueset.CategoryContent, Name: "Home", Published: true}
	require.NoError(t, f.svc.Save(context.Background(), e))
	assert.Equal(t, []string{fmt.Sprintf("reindex content %d true", e.ID)}, f.handler.take())
}

func TestService_PublishVariantCultures(t *testing.T) {
	// Given: an unpublished variant page
	f := newServiceFixture(t)
	ctx := context.Background()
	e := &Entity{
		Category: valueset.CategoryContent, Name: "Home", VariesByCulture: true,
		Cultures: map[string]Culture{"en-US": {Name: "Home"}, "da-DK": {Name: "Hjem"}},
	}
	require.NoError(t, f.svc.Save(ctx, e))
	f.handler.take()

	// When: publishing only en-US
	require.NoError(t, f.svc.Publish(ctx, e.ID, "en-US"))

	// Then: only that culture is published and the node is reindexed as published
	got, err := f.repo.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.True(t, got.Cultures["en-US"].Published)
	assert.False(t, got.Cultures["da-DK"].Published)
	assert.Equal(t, []string{fmt.Sprintf("reindex content %d true", e.ID)}, f.handler.take())
}

func TestService_PublishRejectsTrashedAndNonContent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	page := f.page(t, 0, "Old", false)
	require.NoError(t, f.svc.MoveToRecycleBin(ctx, page.ID))

	err := f.svc.Publish(ctx, page.ID)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))

	media := &Entity{Category: valueset.CategoryMedia, Name: "img"}
	require.NoError(t, f.svc.Save(ctx, media))
	err = f.svc.Publish(ctx, media.ID)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
}

func TestService_UnpublishRemovesSubtreeFromPublishedIndexes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	home := f.page(t, 0, "Home", true)
	child := f.page(t, home.ID, "Child", true)

	require.NoError(t, f.svc.Unpublish(ctx, home.ID))

	assert.Equal(t, []string{
		fmt.Sprintf("delete [%d %d] true", home.ID, child.ID),
		fmt.Sprintf("reindex content %d false", home.ID),
	}, f.handler.take())

	got, err := f.repo.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.False(t, got.Published)
}

func TestService_TrashContentLeavesEveryIndex(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	home := f.page(t, 0, "Home", true)
	child := f.page(t, home.ID, "Child", true)

	require.NoError(t, f.svc.MoveToRecycleBin(ctx, home.ID))

	assert.Equal(t, []string{fmt.Sprintf("delete [%d %d] false", home.ID, child.ID)}, f.handler.take())
	got, err := f.repo.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTrashed())
}

func TestService_TrashMediaIsReindexed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	media := &Entity{Category: valueset.CategoryMedia, TypeAlias: "image", Name: "logo.png"}
	require.NoError(t, f.svc.Save(ctx, media))
	f.handler.take()

	require.NoError(t, f.svc.MoveToRecycleBin(ctx, media.ID))

	assert.Equal(t, []string{
		fmt.Sprintf("delete [%d] true", media.ID),
		fmt.Sprintf("reindex media %d true", media.ID),
	}, f.handler.take())
}

func TestService_TrashMemberFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	m := &Entity{Name: "ada", Email: "ada@example.com"}
	require.NoError(t, f.svc.SaveMember(ctx, m))

	err := f.svc.MoveToRecycleBin(ctx, m.ID)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
}

func TestService_RestoreReindexesSubtree(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	home := f.page(t, 0, "Home", true)
	child := f.page(t, home.ID, "Child", false)
	require.NoError(t, f.svc.MoveToRecycleBin(ctx, home.ID))
	f.handler.take()

	require.NoError(t, f.svc.Restore(ctx, home.ID, valueset.RootID))

	assert.Equal(t, []string{
		fmt.Sprintf("reindex content %d true", home.ID),
		fmt.Sprintf("reindex content %d false", child.ID),
	}, f.handler.take())
	got, err := f.repo.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTrashed())
}

func TestService_DeleteRemovesEverywhere(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	home := f.page(t, 0, "Home", true)
	child := f.page(t, home.ID, "Child", true)

	require.NoError(t, f.svc.Delete(ctx, home.ID))

	assert.Equal(t, []string{fmt.Sprintf("delete [%d %d] false", home.ID, child.ID)}, f.handler.take())
}

func TestService_MemberLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	m := &Entity{Name: "ada", Email: "ada@example.com", LoginName: "ada", Published: true}
	require.NoError(t, f.svc.SaveMember(ctx, m))
	assert.Equal(t, valueset.CategoryMember, m.Category)
	assert.Equal(t, []string{fmt.Sprintf("reindex member %d true", m.ID)}, f.handler.take())

	require.NoError(t, f.svc.DeleteMember(ctx, m.ID))
	assert.Equal(t, []string{fmt.Sprintf("delete [%d] false", m.ID)}, f.handler.take())

	err := f.svc.SaveMember(ctx, &Entity{Category: valueset.CategoryMedia})
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
}

func TestService_ProtectInvalidatesAndReindexes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	home := f.page(t, 0, "Home", true)
	child := f.page(t, home.ID, "Child", true)

	require.NoError(t, f.svc.Protect(ctx, home.ID))

	assert.Equal(t, []string{
		fmt.Sprintf("delete [%d %d] true", home.ID, child.ID),
		fmt.Sprintf("reindex content %d true", home.ID),
		fmt.Sprintf("reindex content %d true", child.ID),
	}, f.handler.take())
	// Once immediately and once when the scope ends.
	assert.Equal(t, 2, f.access.n)

	rules, err := f.repo.ProtectedNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{home.ID}, rules)

	require.NoError(t, f.svc.Unprotect(ctx, home.ID))
	assert.Equal(t, 4, f.access.n)
	assert.Len(t, f.handler.take(), 2)
}

func TestService_DeleteContentTypePurgesAfterCommit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := &Entity{Category: valueset.CategoryContent, TypeID: 7, Name: "a"}
	b := &Entity{Category: valueset.CategoryContent, TypeID: 7, Name: "b"}
	require.NoError(t, f.svc.Save(ctx, a))
	require.NoError(t, f.svc.Save(ctx, b))
	f.handler.take()

	require.NoError(t, f.svc.DeleteContentType(ctx, 7))

	assert.Equal(t, []string{"purge [7]"}, f.handler.take())
	ids, err := f.repo.IDsByType(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_HandlerErrorRollsBack(t *testing.T) {
	// Given: a handler that rejects every notification
	f := newServiceFixture(t)
	f.handler.err = errors.New("boom")

	// When: saving
	e := &Entity{Category: valueset.CategoryContent, Name: "Home"}
	err := f.svc.Save(context.Background(), e)

	// Then: the error surfaces and the write is rolled back
	require.Error(t, err)
	_, err = f.repo.Get(context.Background(), e.ID)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}

func TestService_OuterScopeRollbackDiscardsNestedOperations(t *testing.T) {
	// Given: two operations inside an outer scope
	f := newServiceFixture(t)
	ctx, outer, err := f.scopes.Begin(context.Background())
	require.NoError(t, err)

	e := &Entity{Category: valueset.CategoryContent, Name: "Home", Published: true}
	require.NoError(t, f.svc.Save(ctx, e))
	require.NoError(t, f.svc.Unpublish(ctx, e.ID))

	// When: the outer scope closes without completing
	require.NoError(t, outer.Close(ctx))

	// Then: nothing was persisted
	_, err = f.repo.Get(context.Background(), e.ID)
	assert.True(t, errors.Is(err, ierrors.ErrEntityNotFound))
}
