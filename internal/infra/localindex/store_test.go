package localindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "index")
	store := New(dir, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func makeRecord(content, source string, ordinal int, vector []float32) ingestion.Record {
	return ingestion.Record{
		ID:      uuid.New(),
		Content: content,
		Source:  source,
		Ordinal: ordinal,
		Vector:  vector,
	}
}

func TestStore_ExistsBeforeCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Dimension(ctx)
	assert.ErrorIs(t, err, ingestion.ErrDimensionUnknown)
}

func TestStore_CreateRecordsDimension(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Create(ctx, 768))

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	dim, err := store.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)
}

func TestStore_CreateDoesNotOverwriteDimension(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Create(ctx, 768))
	require.NoError(t, store.Create(ctx, 1536))

	dim, err := store.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)
}

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Create(ctx, 3))

	records := []ingestion.Record{
		makeRecord("東京の人口", "tokyo.txt", 0, []float32{1, 0, 0}),
		makeRecord("大阪の人口", "osaka.txt", 0, []float32{0, 1, 0}),
		makeRecord("東京の面積", "tokyo.txt", 1, []float32{0.9, 0.1, 0}),
	}
	require.NoError(t, store.Add(ctx, records))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "東京の人口", hits[0].Record.Content)
	assert.Equal(t, "東京の面積", hits[1].Record.Content)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStore_SearchTopKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Create(ctx, 3))

	require.NoError(t, store.Add(ctx, []ingestion.Record{
		makeRecord("ひとつだけ", "a.txt", 0, []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_AddAppendsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	store := New(dir, nil)
	require.NoError(t, store.Create(ctx, 3))
	require.NoError(t, store.Add(ctx, []ingestion.Record{
		makeRecord("最初の実行", "a.txt", 0, []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Close())

	// 別のインスタンスで再度開き直しても追記できる
	reopened := New(dir, nil)
	defer reopened.Close()
	require.NoError(t, reopened.Create(ctx, 3))
	require.NoError(t, reopened.Add(ctx, []ingestion.Record{
		makeRecord("二度目の実行", "b.txt", 0, []float32{0, 1, 0}),
	}))

	hits, err := reopened.Search(ctx, []float32{1, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestStore_Destroy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Create(ctx, 3))

	require.NoError(t, store.Destroy(ctx))

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	vector := []float32{0.25, -1.5, 3.125, 0}
	assert.Equal(t, vector, decodeVector(encodeVector(vector)))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
