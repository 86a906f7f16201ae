package core_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
	"github.com/hibiki-ai/hibiki-go/pkg/embedder/hash"
	"github.com/hibiki-ai/hibiki-go/pkg/storage"
	chromemStore "github.com/hibiki-ai/hibiki-go/pkg/storage/chromem"
	sqliteStore "github.com/hibiki-ai/hibiki-go/pkg/storage/sqlite"
)

// failingVectorStore fails every call.
type failingVectorStore struct{}

func (failingVectorStore) Insert(context.Context, *storage.Record) error { return errBackend }
func (failingVectorStore) Search(context.Context, []float64, *storage.SearchOptions) ([]*storage.Record, error) {
	return nil, errBackend
}
func (failingVectorStore) Close() error { return nil }

func newSQLiteMemoryStore(t *testing.T) *core.VectorMemoryStore {
	t.Helper()

	vs, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: t.TempDir() + "/hibiki.db",
	})
	require.NoError(t, err)

	store, err := core.NewVectorMemoryStore(vs, hash.New(128), &core.VectorMemoryStoreConfig{SearchLimit: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVectorMemoryStore_CreateAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteMemoryStore(t)
	ns := core.MemoryNamespace("user_001")

	key, err := store.Create(ctx, ns, "user: I love green tea\nagent: Green tea is calming")
	require.NoError(t, err)

	_, err = strconv.ParseInt(key, 10, 64)
	assert.NoError(t, err, "keys are base 10 snowflake ids")

	fragments, err := store.Search(ctx, ns, "green tea")
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	assert.Equal(t, key, fragments[0].Key)
	assert.Equal(t, ns, fragments[0].Namespace)
	content, err := fragments[0].Content()
	require.NoError(t, err)
	assert.Equal(t, "user: I love green tea\nagent: Green tea is calming", content)
	assert.Greater(t, fragments[0].Score, 0.0)
}

func TestVectorMemoryStore_DuplicateWritesAreDistinct(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteMemoryStore(t)
	ns := core.MemoryNamespace("user_001")

	k1, err := store.Create(ctx, ns, "same content")
	require.NoError(t, err)
	k2, err := store.Create(ctx, ns, "same content")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	fragments, err := store.Search(ctx, ns, "same content")
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
}

func TestVectorMemoryStore_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteMemoryStore(t)

	_, err := store.Create(ctx, core.MemoryNamespace("alice"), "alice likes hiking")
	require.NoError(t, err)

	fragments, err := store.Search(ctx, core.MemoryNamespace("bob"), "hiking")
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestVectorMemoryStore_SearchLimit(t *testing.T) {
	ctx := context.Background()
	vs, err := chromemStore.New(nil)
	require.NoError(t, err)
	store, err := core.NewVectorMemoryStore(vs, hash.New(64), &core.VectorMemoryStoreConfig{SearchLimit: 2})
	require.NoError(t, err)
	ns := core.MemoryNamespace("user_001")

	for _, c := range []string{"tea one", "tea two", "tea three"} {
		_, err := store.Create(ctx, ns, c)
		require.NoError(t, err)
	}

	fragments, err := store.Search(ctx, ns, "tea")
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
}

func TestVectorMemoryStore_BackendFailure(t *testing.T) {
	ctx := context.Background()
	store, err := core.NewVectorMemoryStore(failingVectorStore{}, hash.New(16), nil)
	require.NoError(t, err)

	_, err = store.Search(ctx, core.MemoryNamespace("u"), "q")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackend)

	_, err = store.Create(ctx, core.MemoryNamespace("u"), "c")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackend)
}

func TestFragmentContent(t *testing.T) {
	content, err := core.Fragment{Value: map[string]interface{}{"content": "hi"}}.Content()
	assert.NoError(t, err)
	assert.Equal(t, "hi", content)

	_, err = core.Fragment{Value: map[string]interface{}{"content": 1}}.Content()
	assert.ErrorIs(t, err, core.ErrMalformedMemoryRecord)

	_, err = core.Fragment{}.Content()
	assert.ErrorIs(t, err, core.ErrMalformedMemoryRecord)
}

func TestMemoryNamespace(t *testing.T) {
	ns := core.MemoryNamespace("user_001")
	assert.Equal(t, core.Namespace{"memories", "user_001"}, ns)
	assert.Equal(t, "memories.user_001", ns.String())
}
