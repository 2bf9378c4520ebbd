package indexing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/contentindex/internal/access"
	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/content"
	ierrors "github.com/Aman-CERP/contentindex/internal/errors"
	"github.com/Aman-CERP/contentindex/internal/lifecycle"
	"github.com/Aman-CERP/contentindex/internal/registry"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/store"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

const (
	internalIndex = "InternalIndex"
	externalIndex = "ExternalIndex"
	membersIndex  = "MembersIndex"
)

type fixture struct {
	h        *Handler
	svc      *content.Service
	repo     *content.Repository
	scopes   *scope.Provider
	registry *registry.Registry
	internal store.Index
	external store.Index
	members  store.Index
}

type fixtureOption func(cfg *HandlerConfig, reg *registry.Registry)

// newFixture wires a content service to a handler over three in-memory
// indexes shaped like the defaults.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db, err := content.Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, content.Migrate(context.Background(), db))

	f := &fixture{
		repo:     content.NewRepository(db),
		scopes:   scope.NewProvider(db),
		registry: registry.New(),
	}
	f.internal = newMemIndex(t)
	f.external = newMemIndex(t)
	f.members = newMemIndex(t)

	require.NoError(t, f.registry.Register(internalIndex, f.internal, valueset.IndexConfiguration{
		EnableDefaultEventHandler: true,
		IncludeProtected:          true,
		Categories:                []valueset.Category{valueset.CategoryContent, valueset.CategoryMedia},
	}))
	require.NoError(t, f.registry.Register(externalIndex, f.external, valueset.IndexConfiguration{
		EnableDefaultEventHandler: true,
		PublishedValuesOnly:       true,
		Categories:                []valueset.Category{valueset.CategoryContent, valueset.CategoryMedia},
	}))
	require.NoError(t, f.registry.Register(membersIndex, f.members, valueset.IndexConfiguration{
		EnableDefaultEventHandler: true,
		Categories:                []valueset.Category{valueset.CategoryMember},
	}))

	policy := access.NewPolicy(f.repo, 0)
	cfg := HandlerConfig{
		Registry: f.registry,
		Source:   content.NewSource(f.repo),
		Access:   policy,
		DataDir:  t.TempDir(),
	}
	for _, opt := range opts {
		opt(&cfg, f.registry)
	}

	f.h = NewHandler(cfg)
	f.h.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.h.Close(ctx)
		_ = f.registry.Close()
	})

	f.svc = content.NewService(f.repo, f.scopes, f.h, policy)
	return f
}

func withArbiter(a lifecycle.Arbiter) fixtureOption {
	return func(cfg *HandlerConfig, _ *registry.Registry) { cfg.Arbiter = a }
}

func withIndex(name string, idx registry.Index, icfg valueset.IndexConfiguration) fixtureOption {
	return func(_ *HandlerConfig, reg *registry.Registry) {
		if err := reg.Register(name, idx, icfg); err != nil {
			panic(err)
		}
	}
}

func newMemIndex(t *testing.T) store.Index {
	t.Helper()
	idx, err := store.New(store.BackendBleve, "")
	require.NoError(t, err)
	return idx
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.h.Drain(ctx))
}

func (f *fixture) page(t *testing.T, parentID int, name string, published bool) *content.Entity {
	t.Helper()
	e := &content.Entity{
		Category:  valueset.CategoryContent,
		ParentID:  parentID,
		TypeID:    1,
		TypeAlias: "page",
		Name:      name,
		Published: published,
	}
	require.NoError(t, f.svc.Save(context.Background(), e))
	return e
}

// has reports whether idx holds a document for entity id.
func has(t *testing.T, idx registry.Searcher, id int) bool {
	t.Helper()
	ids, _, err := idx.SearchField(context.Background(), valueset.FieldID, strconv.Itoa(id), 0, 10)
	require.NoError(t, err)
	return len(ids) > 0
}

func count(t *testing.T, idx registry.Counter) int {
	t.Helper()
	n, err := idx.DocumentCount(context.Background())
	require.NoError(t, err)
	return n
}

func TestHandler_PublishedContentReachesEveryContentIndex(t *testing.T) {
	// Given: a published page
	f := newFixture(t)
	e := f.page(t, 0, "Home", true)

	// When: the scope commits and the worker drains
	f.drain(t)

	// Then: both content indexes hold it and the member index does not
	assert.True(t, has(t, f.internal, e.ID))
	assert.True(t, has(t, f.external, e.ID))
	assert.Zero(t, count(t, f.members))

	// And: the published-only index sees it as valid and published
	results, err := f.h.Validate(context.Background(), valueset.CategoryContent, e.ID, externalIndex)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, valueset.Valid, results[0].Status)
	published, _ := results[0].ValueSet.First(valueset.FieldPublished)
	assert.Equal(t, valueset.Yes, published)
}

func TestHandler_UnpublishedContentStaysOutOfPublishedOnlyIndex(t *testing.T) {
	f := newFixture(t)
	e := f.page(t, 0, "Draft", false)
	f.drain(t)

	assert.True(t, has(t, f.internal, e.ID))
	assert.False(t, has(t, f.external, e.ID))

	_, err := f.h.Validate(context.Background(), valueset.CategoryContent, e.ID, externalIndex)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
}

func TestHandler_UnpublishRemovesSubtreeFromPublishedOnlyIndex(t *testing.T) {
	// Given: a published parent with a published child
	f := newFixture(t)
	ctx := context.Background()
	parent := f.page(t, 0, "News", true)
	child := f.page(t, parent.ID, "Story", true)
	f.drain(t)
	require.True(t, has(t, f.external, child.ID))

	// When: unpublishing the parent
	require.NoError(t, f.svc.Unpublish(ctx, parent.ID))
	f.drain(t)

	// Then: both leave the published-only index and the parent stays in the other
	assert.False(t, has(t, f.external, parent.ID))
	assert.False(t, has(t, f.external, child.ID))
	assert.True(t, has(t, f.internal, parent.ID))
}

func TestHandler_TrashedContentLeavesEveryIndex(t *testing.T) {
	// Given: an indexed published page
	f := newFixture(t)
	ctx := context.Background()
	e := f.page(t, 0, "Old", true)
	f.drain(t)
	require.True(t, has(t, f.internal, e.ID))

	// When: moving it to the recycle bin
	require.NoError(t, f.svc.MoveToRecycleBin(ctx, e.ID))
	f.drain(t)

	// Then: no index holds it
	assert.False(t, has(t, f.internal, e.ID))
	assert.False(t, has(t, f.external, e.ID))

	// And: validating it is rejected as a recycle bin failure
	results, err := f.h.Validate(ctx, valueset.CategoryContent, e.ID, internalIndex)
	require.Error(t, err)
	assert.Equal(t, ierrors.ErrCodeInvalidInput, ierrors.GetCode(err))
	require.Len(t, results, 1)
	assert.Equal(t, valueset.Failed, results[0].Status)
	assert.Equal(t, valueset.ReasonRecycleBin, results[0].Reason)
}

func TestHandler_TrashedMediaIsFilteredWithoutError(t *testing.T) {
	// Given: an indexed media item
	f := newFixture(t)
	ctx := context.Background()
	m := &content.Entity{Category: valueset.CategoryMedia, TypeID: 2, TypeAlias: "image", Name: "Logo"}
	require.NoError(t, f.svc.Save(ctx, m))
	f.drain(t)
	require.True(t, has(t, f.external, m.ID))

	// When: moving it to the media recycle bin
	require.NoError(t, f.svc.MoveToRecycleBin(ctx, m.ID))
	f.drain(t)

	// Then: it leaves the published-only index and nothing failed
	assert.False(t, has(t, f.external, m.ID))
	assert.Zero(t, f.h.Status(ctx).Worker.Failed)

	results, err := f.h.Validate(ctx, valueset.CategoryMedia, m.ID, internalIndex)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, valueset.Filtered, results[0].Status)
}

func TestHandler_ProtectedContentIsFilteredWhereNotAllowed(t *testing.T) {
	// Given: a published page in both indexes
	f := newFixture(t)
	ctx := context.Background()
	e := f.page(t, 0, "Members area", true)
	f.drain(t)
	require.True(t, has(t, f.external, e.ID))

	// When: protecting it
	require.NoError(t, f.svc.Protect(ctx, e.ID))
	f.drain(t)

	// Then: only the index that includes protected content keeps it
	assert.False(t, has(t, f.external, e.ID))
	assert.True(t, has(t, f.internal, e.ID))

	// When: removing the protection
	require.NoError(t, f.svc.Unprotect(ctx, e.ID))
	f.drain(t)

	// Then: it is back
	assert.True(t, has(t, f.external, e.ID))
}

func TestHandler_DeleteRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	parent := f.page(t, 0, "Parent", true)
	child := f.page(t, parent.ID, "Child", false)
	f.drain(t)
	require.True(t, has(t, f.internal, child.ID))

	require.NoError(t, f.svc.Delete(context.Background(), parent.ID))
	f.drain(t)

	assert.Zero(t, count(t, f.internal))
	assert.Zero(t, count(t, f.external))
}

func TestHandler_MembersAreIndexedWithoutApproval(t *testing.T) {
	// Given: an unapproved member
	f := newFixture(t)
	ctx := context.Background()
	m := &content.Entity{Name: "Jo", TypeID: 3, TypeAlias: "member", Email: "jo@example.com", LoginName: "jo"}
	require.NoError(t, f.svc.SaveMember(ctx, m))
	f.drain(t)

	// Then: the member index holds it and the content indexes do not
	assert.True(t, has(t, f.members, m.ID))
	assert.Zero(t, count(t, f.internal))

	// When: deleting the member
	require.NoError(t, f.svc.DeleteMember(ctx, m.ID))
	f.drain(t)

	// Then: it is gone
	assert.False(t, has(t, f.members, m.ID))
}

func TestHandler_RolledBackScopeWritesNothing(t *testing.T) {
	// Given: an outer scope around a save
	f := newFixture(t)
	ctx, sc, err := f.scopes.Begin(context.Background())
	require.NoError(t, err)

	e := &content.Entity{Category: valueset.CategoryContent, Name: "Ghost", Published: true}
	require.NoError(t, f.svc.Save(ctx, e))
	assert.Equal(t, 1, f.h.Pending(ctx))

	// When: the outer scope closes without completing
	require.NoError(t, sc.Close(ctx))
	f.drain(t)

	// Then: no document was written and the action was discarded
	assert.Zero(t, count(t, f.internal))
	assert.Zero(t, count(t, f.external))
	st := f.h.Status(context.Background())
	assert.Equal(t, int64(1), st.Deferred.Discarded)
	assert.Zero(t, st.Worker.Enqueued)
}

func TestHandler_WritesWaitForOutermostCommit(t *testing.T) {
	// Given: two saves inside one outer scope
	f := newFixture(t)
	ctx, sc, err := f.scopes.Begin(context.Background())
	require.NoError(t, err)

	a := &content.Entity{Category: valueset.CategoryContent, Name: "A", Published: true}
	b := &content.Entity{Category: valueset.CategoryContent, Name: "B", Published: true}
	require.NoError(t, f.svc.Save(ctx, a))
	require.NoError(t, f.svc.Save(ctx, b))
	require.NoError(t, sc.Complete())

	// Then: nothing is written before the outer scope closes
	f.drain(t)
	assert.Zero(t, count(t, f.internal))

	// When: it closes
	require.NoError(t, sc.Close(ctx))
	f.drain(t)

	// Then: both are indexed
	assert.True(t, has(t, f.internal, a.ID))
	assert.True(t, has(t, f.internal, b.ID))
	assert.Equal(t, int64(2), f.h.Status(context.Background()).Deferred.Fired)
}

func TestHandler_ReindexWithoutScopeRunsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := &content.Entity{Category: valueset.CategoryContent, Name: "Direct", Published: true}
	require.NoError(t, f.repo.Save(ctx, e))

	require.NoError(t, f.h.Reindex(ctx, valueset.CategoryContent, e.ID, true))
	f.drain(t)

	assert.True(t, has(t, f.internal, e.ID))
	assert.Equal(t, int64(1), f.h.Status(ctx).Deferred.Immediate)
}

func TestHandler_DisabledIndexIgnoresEvents(t *testing.T) {
	// Given: an extra index with event handling off
	manual := &fakeIndex{}
	f := newFixture(t, withIndex("ManualIndex", manual, valueset.IndexConfiguration{}))

	// When: saving content
	f.page(t, 0, "Home", true)
	f.drain(t)

	// Then: the manual index received nothing
	assert.Zero(t, manual.size())
	assert.True(t, f.h.IsEnabled())
}

func TestHandler_ReplicaIsDisabled(t *testing.T) {
	// Given: a process that does not own the writers
	f := newFixture(t, withArbiter(lifecycle.StaticArbiter(false)))

	// When: saving content
	f.page(t, 0, "Home", true)
	f.drain(t)

	// Then: nothing is indexed and nothing is enlisted
	assert.False(t, f.h.IsEnabled())
	assert.Zero(t, count(t, f.internal))
	st := f.h.Status(context.Background())
	assert.False(t, st.Enabled)
	assert.Zero(t, st.Deferred.Immediate+st.Deferred.Fired)
}

func TestHandler_NoEnabledIndexIsDisabled(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("ManualIndex", &fakeIndex{}, valueset.IndexConfiguration{}))
	h := NewHandler(HandlerConfig{Registry: reg})

	assert.False(t, h.IsEnabled())
	assert.NoError(t, h.Reindex(context.Background(), valueset.CategoryContent, 1, true))
	assert.NoError(t, h.DeleteFromIndex(context.Background(), []string{"1"}, false))
}

func TestHandler_EnablementIsDecidedOnce(t *testing.T) {
	arb := &countingArbiter{}
	f := newFixture(t, withArbiter(arb))

	for i := 0; i < 3; i++ {
		assert.True(t, f.h.IsEnabled())
	}
	assert.Equal(t, 1, arb.acquired)
}

func TestHandler_ReindexTargets(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{internalIndex, externalIndex}, f.h.reindexTargets(valueset.CategoryContent, true))
	assert.Equal(t, []string{internalIndex}, f.h.reindexTargets(valueset.CategoryContent, false))
	assert.Equal(t, []string{membersIndex}, f.h.reindexTargets(valueset.CategoryMember, false))
}

func TestHandler_DeleteTargets(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{internalIndex, externalIndex, membersIndex}, f.h.deleteTargets(false))
	assert.Equal(t, []string{externalIndex}, f.h.deleteTargets(true))
}

func TestHandler_DeleteDocumentsForContentTypesPages(t *testing.T) {
	// Given: more documents of one type than fit in a purge page
	fake := &fakeIndex{}
	f := newFixture(t, withIndex("FakeIndex", fake, valueset.IndexConfiguration{}))
	ctx := context.Background()

	var sets []*valueset.ValueSet
	for i := 1; i <= 2*PurgePageSize+1; i++ {
		sets = append(sets, typed(i, 9))
	}
	for i := 5000; i < 5003; i++ {
		sets = append(sets, typed(i, 8))
	}
	require.NoError(t, fake.WriteItems(ctx, sets))
	require.NoError(t, f.internal.WriteItems(ctx, sets[:10]))

	// When: purging the type
	require.NoError(t, f.h.DeleteDocumentsForContentTypes(ctx, []int{9}))

	// Then: only the other type remains, in every index regardless of event handling
	assert.Equal(t, 3, fake.size())
	assert.Equal(t, 3, fake.searchCalls())
	assert.Zero(t, count(t, f.internal))
}

func TestHandler_DeleteDocumentsForContentTypesSkipsWhenDisabled(t *testing.T) {
	fake := &fakeIndex{}
	f := newFixture(t, withArbiter(lifecycle.StaticArbiter(false)), withIndex("FakeIndex", fake, valueset.IndexConfiguration{}))
	require.NoError(t, fake.WriteItems(context.Background(), []*valueset.ValueSet{typed(1, 9)}))

	require.NoError(t, f.h.DeleteDocumentsForContentTypes(context.Background(), []int{9}))

	assert.Equal(t, 1, fake.size())
}

func TestHandler_DeleteContentTypePurgesIndexes(t *testing.T) {
	// Given: two pages of type 1 and one of type 2
	f := newFixture(t)
	ctx := context.Background()
	f.page(t, 0, "A", true)
	f.page(t, 0, "B", true)
	other := &content.Entity{Category: valueset.CategoryContent, TypeID: 2, TypeAlias: "article", Name: "C", Published: true}
	require.NoError(t, f.svc.Save(ctx, other))
	f.drain(t)
	require.Equal(t, 3, count(t, f.internal))

	// When: deleting type 1
	require.NoError(t, f.svc.DeleteContentType(ctx, 1))
	f.drain(t)

	// Then: only the other type is left
	assert.Equal(t, 1, count(t, f.internal))
	assert.True(t, has(t, f.internal, other.ID))
}

func TestHandler_DeleteContentTypePurgesRedactedIndexes(t *testing.T) {
	// Given: indexes whose field lists leave out or exclude the node type
	slim := newMemIndex(t)
	bare := newMemIndex(t)
	f := newFixture(t,
		withIndex("SlimIndex", slim, valueset.IndexConfiguration{
			EnableDefaultEventHandler: true,
			IncludeFields:             []string{valueset.FieldNodeName},
			Categories:                []valueset.Category{valueset.CategoryContent},
		}),
		withIndex("BareIndex", bare, valueset.IndexConfiguration{
			EnableDefaultEventHandler: true,
			ExcludeFields:             []string{valueset.FieldNodeType},
			Categories:                []valueset.Category{valueset.CategoryContent},
		}))
	ctx := context.Background()
	e := f.page(t, 0, "Home", true)
	f.drain(t)
	require.True(t, has(t, slim, e.ID))
	require.True(t, has(t, bare, e.ID))

	// When: deleting the page's content type
	require.NoError(t, f.svc.DeleteContentType(ctx, 1))
	f.drain(t)

	// Then: the document is gone from every index
	assert.Zero(t, count(t, f.internal))
	assert.Zero(t, count(t, slim))
	assert.Zero(t, count(t, bare))
}

func TestHandler_CircuitOpensAfterRepeatedWriteFailures(t *testing.T) {
	// Given: an index that fails every write, tripping after two failures
	fake := &fakeIndex{writeErr: errors.New("disk full")}
	f := newFixture(t,
		withIndex("FakeIndex", fake, valueset.IndexConfiguration{EnableDefaultEventHandler: true}),
		func(cfg *HandlerConfig, _ *registry.Registry) {
			cfg.BreakerFailures = 2
			cfg.BreakerReset = time.Hour
		})

	// When: three saves reach it
	for i := 0; i < 3; i++ {
		f.page(t, 0, "Page "+strconv.Itoa(i), true)
		f.drain(t)
	}

	// Then: the third write was not attempted and the other indexes were unaffected
	assert.Equal(t, 2, fake.writeCalls())
	assert.Equal(t, 3, count(t, f.internal))

	st := f.h.Status(context.Background())
	assert.Equal(t, int64(3), st.Worker.Failed)
	for _, is := range st.Indexes {
		if is.Name == "FakeIndex" {
			assert.Equal(t, "open", is.Circuit)
		} else {
			assert.Equal(t, "closed", is.Circuit)
		}
	}
}

func TestHandler_ValidateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.Validate(ctx, valueset.CategoryContent, 1, "NoSuchIndex")
	assert.Equal(t, ierrors.ErrCodeUnknownIndex, ierrors.GetCode(err))

	_, err = f.h.Validate(ctx, valueset.CategoryContent, 404, internalIndex)
	assert.Equal(t, ierrors.ErrCodeEntityNotFound, ierrors.GetCode(err))
}

func TestHandler_StatusReportsIndexes(t *testing.T) {
	f := newFixture(t)
	f.page(t, 0, "Home", true)
	f.drain(t)

	st := f.h.Status(context.Background())

	assert.True(t, st.Enabled)
	require.Len(t, st.Indexes, 3)
	assert.Equal(t, internalIndex, st.Indexes[0].Name)
	assert.Equal(t, 1, st.Indexes[0].Documents)
	assert.True(t, st.Indexes[0].Exists)
	assert.True(t, st.Indexes[1].PublishedValuesOnly)
	assert.Nil(t, st.Indexes[0].Rebuild)
	assert.Equal(t, string(async.WorkerRunning), st.Worker.Status)
	assert.Equal(t, int64(1), st.Worker.Processed)
}

func TestHandler_CloseStopsWorkerAndReleases(t *testing.T) {
	arb := &countingArbiter{}
	f := newFixture(t, withArbiter(arb))
	ctx := context.Background()
	require.True(t, f.h.IsEnabled())

	require.NoError(t, f.h.Close(ctx))

	assert.Equal(t, 1, arb.released)
	err := f.h.Reindex(ctx, valueset.CategoryContent, 1, true)
	assert.Equal(t, ierrors.ErrCodeQueueFull, ierrors.GetCode(err))
	assert.Contains(t, metricsText(t, f.h), `contentindex_worker_items_total{kind="reindex",result="dropped"} 1`)
}

// typed returns a value set of the given node type.
func typed(id, typeID int) *valueset.ValueSet {
	vs := valueset.New(strconv.Itoa(id), valueset.CategoryContent, "page", nil)
	vs.Set(valueset.FieldID, strconv.Itoa(id))
	vs.Set(valueset.FieldPath, "-1,"+strconv.Itoa(id))
	vs.Set(valueset.FieldNodeType, strconv.Itoa(typeID))
	return vs
}

// fakeIndex keeps node types by document id.
type fakeIndex struct {
	mu       sync.Mutex
	docs     map[string]string
	writeErr error
	writes   int
	searches int
}

var (
	_ registry.Index    = (*fakeIndex)(nil)
	_ registry.Searcher = (*fakeIndex)(nil)
)

func (f *fakeIndex) WriteItems(_ context.Context, items []*valueset.ValueSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.docs == nil {
		f.docs = make(map[string]string)
	}
	for _, vs := range items {
		f.docs[vs.ID], _ = vs.First(valueset.FieldNodeType)
	}
	return nil
}

func (f *fakeIndex) DeleteItems(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeIndex) Exists() bool { return true }

func (f *fakeIndex) SearchField(_ context.Context, field, value string, skip, take int) ([]string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if field != valueset.FieldNodeType {
		return nil, 0, nil
	}
	var ids []string
	for id, nt := range f.docs {
		if nt == value {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	total := len(ids)
	if skip >= total {
		return nil, total, nil
	}
	return ids[skip:min(skip+take, total)], total, nil
}

func (f *fakeIndex) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeIndex) writeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeIndex) searchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

type countingArbiter struct {
	acquired int
	released int
}

func (a *countingArbiter) TryAcquire() (bool, error) {
	a.acquired++
	return true, nil
}

func (a *countingArbiter) Release() error {
	a.released++
	return nil
}

// metricsText returns the handler's metrics in the text exposition format.
func metricsText(t *testing.T, h *Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contentindex.prom")
	require.NoError(t, h.Metrics().WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestHandler_MetricsCountPipelineOutcomes(t *testing.T) {
	// Given: one published page and one draft
	f := newFixture(t)
	f.page(t, 0, "Home", true)
	f.page(t, 0, "Draft", false)

	// When: the worker drains
	f.drain(t)

	// Then: writes, validation outcomes and items are counted
	text := metricsText(t, f.h)
	assert.Contains(t, text, `contentindex_index_documents_written_total{index="InternalIndex"} 2`)
	assert.Contains(t, text, `contentindex_index_documents_written_total{index="ExternalIndex"} 1`)
	assert.Contains(t, text, `contentindex_validator_results_total{index="InternalIndex",status="valid"} 2`)
	assert.Contains(t, text, `contentindex_worker_items_total{kind="reindex",result="ok"}`)
	assert.False(t, strings.Contains(text, `result="failed"`))
}

func TestHandler_MetricsCountPurgeAndRebuild(t *testing.T) {
	// Given: a searchable index holding two documents of type 9
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.internal.WriteItems(ctx, []*valueset.ValueSet{typed(1, 9), typed(2, 9)}))

	// When: purging the type and rebuilding the index
	require.NoError(t, f.h.DeleteDocumentsForContentTypes(ctx, []int{9}))
	_, err := f.h.Rebuild(ctx, internalIndex)
	require.NoError(t, err)

	// Then: both are recorded
	text := metricsText(t, f.h)
	assert.Contains(t, text, `contentindex_index_type_purged_documents_total{index="InternalIndex"} 2`)
	assert.Contains(t, text, `contentindex_index_rebuild_duration_seconds_count{index="InternalIndex",result="ok"} 1`)
}
