package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/contentindex/internal/valueset"
)

func page(id int, typeID string, published bool) *valueset.ValueSet {
	vs := valueset.New(fmt.Sprint(id), valueset.CategoryContent, "page", nil)
	vs.Set(valueset.FieldID, fmt.Sprint(id))
	vs.Set(valueset.FieldNodeType, typeID)
	vs.Set(valueset.FieldPath, fmt.Sprintf("-1,%d", id))
	vs.Set(valueset.FieldLevel, 1)
	if published {
		vs.Set(valueset.FieldPublished, valueset.Yes)
	} else {
		vs.Set(valueset.FieldPublished, valueset.No)
	}
	vs.Set("tags", "news", "Big Story")
	return vs
}

// forEachBackend runs fn against an in-memory index of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, idx Index)) {
	for _, b := range Backends {
		t.Run(string(b), func(t *testing.T) {
			idx, err := New(b, "")
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			fn(t, idx)
		})
	}
}

func TestIndex_WriteReplaceDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx Index) {
		ctx := context.Background()

		// Given: three documents
		require.NoError(t, idx.WriteItems(ctx, []*valueset.ValueSet{page(1, "10", true), page(2, "10", false), page(3, "11", true)}))
		n, err := idx.DocumentCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.True(t, idx.Exists())

		// When: rewriting one with another type
		require.NoError(t, idx.WriteItems(ctx, []*valueset.ValueSet{page(2, "11", false)}))

		// Then: the replacement wins and the count is unchanged
		ids, total, err := idx.SearchField(ctx, valueset.FieldNodeType, "10", 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids)
		assert.Equal(t, 1, total)
		n, err = idx.DocumentCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// When: deleting, including an unknown id
		require.NoError(t, idx.DeleteItems(ctx, []string{"1", "404"}))

		// Then: the document is gone
		ids, total, err = idx.SearchField(ctx, valueset.FieldNodeType, "10", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Zero(t, total)
	})
}

func TestIndex_SearchFieldPagesAndMatchesWholeValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		var items []*valueset.ValueSet
		for i := 1; i <= 5; i++ {
			items = append(items, page(i, "7", true))
		}
		require.NoError(t, idx.WriteItems(ctx, items))

		first, total, err := idx.SearchField(ctx, valueset.FieldNodeType, "7", 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Equal(t, []string{"1", "2"}, first)

		last, _, err := idx.SearchField(ctx, valueset.FieldNodeType, "7", 4, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"5"}, last)

		// Multi-value fields match any value, and only whole values match
		ids, _, err := idx.SearchField(ctx, "tags", "Big Story", 0, 10)
		require.NoError(t, err)
		assert.Len(t, ids, 5)
		ids, _, err = idx.SearchField(ctx, "tags", "Big", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)

		// The category is stored on every document
		ids, _, err = idx.SearchField(ctx, FieldCategory, string(valueset.CategoryContent), 0, 10)
		require.NoError(t, err)
		assert.Len(t, ids, 5)
	})
}

func TestIndex_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		require.NoError(t, idx.WriteItems(ctx, []*valueset.ValueSet{page(1, "1", true), page(2, "1", true)}))

		require.NoError(t, idx.Clear(ctx))

		n, err := idx.DocumentCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestIndex_ClosedIndexRejectsWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx Index) {
		require.NoError(t, idx.Close())
		require.NoError(t, idx.Close())

		assert.False(t, idx.Exists())
		assert.Error(t, idx.WriteItems(context.Background(), []*valueset.ValueSet{page(1, "1", true)}))
		assert.Error(t, idx.DeleteItems(context.Background(), []string{"1"}))
		_, err := idx.DocumentCount(context.Background())
		assert.Error(t, err)
	})
}

func TestIndex_EmptyBatchesAreNoOps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx Index) {
		assert.NoError(t, idx.WriteItems(context.Background(), nil))
		assert.NoError(t, idx.DeleteItems(context.Background(), nil))
	})
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	for _, b := range Backends {
		t.Run(string(b), func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "ExternalIndex")
			ctx := context.Background()

			idx, err := New(b, base)
			require.NoError(t, err)
			require.NoError(t, idx.WriteItems(ctx, []*valueset.ValueSet{page(1, "1", true)}))
			require.NoError(t, idx.Close())

			assert.Equal(t, b, DetectBackend(base))

			idx, err = New(b, base)
			require.NoError(t, err)
			defer idx.Close()
			n, err := idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBleveIndex_RecoversFromCorruptMeta(t *testing.T) {
	// Given: an index directory with a truncated index_meta.json
	path := filepath.Join(t.TempDir(), "broken.bleve")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{"), 0644))

	// When: opening it
	idx, err := NewBleveIndex(path)

	// Then: a fresh empty index replaces it
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.DocumentCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteIndex_RecoversFromGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0644))

	idx, err := NewSQLiteIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	assert.True(t, idx.Exists())
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendBleve, b)

	b, err = ParseBackend("sqlite")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)

	_, err = ParseBackend("lucene")
	assert.Error(t, err)

	_, err = New("lucene", "")
	assert.Error(t, err)
}

func TestIndexPaths(t *testing.T) {
	assert.Equal(t, "", IndexPath("", BackendSQLite))
	assert.Equal(t, "/d/x.db", IndexPath("/d/x", BackendSQLite))
	assert.Equal(t, "/d/x.bleve", IndexPath("/d/x", BackendBleve))
	assert.Equal(t, filepath.Join("/data", "indexes", "MembersIndex"), DefaultPath("/data", "MembersIndex"))
	assert.Equal(t, Backend(""), DetectBackend(filepath.Join(t.TempDir(), "none")))
}
