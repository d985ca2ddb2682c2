package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder はテスト用のEmbedder実装
type fakeEmbedder struct {
	dimension  int
	batchCalls [][]string
	failAtCall int // このバッチ呼び出し(1始まり)で失敗する。0なら失敗しない
	probeErr   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return make([]float32, f.dimension), nil
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls = append(f.batchCalls, texts)
	if f.failAtCall > 0 && len(f.batchCalls) == f.failAtCall {
		return nil, errors.New("provider error")
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dimension)
	}
	return vectors, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedding-001" }

// fakeStore はテスト用のVectorStore実装
type fakeStore struct {
	exists     bool
	dimension  int
	dimErr     error
	destroyed  bool
	createDims []int
	added      [][]Record
	addErr     error
}

func (f *fakeStore) Exists(ctx context.Context) (bool, error) { return f.exists, nil }

func (f *fakeStore) Dimension(ctx context.Context) (int, error) {
	if f.dimErr != nil {
		return 0, f.dimErr
	}
	return f.dimension, nil
}

func (f *fakeStore) Create(ctx context.Context, dimension int) error {
	f.createDims = append(f.createDims, dimension)
	f.exists = true
	f.dimension = dimension
	f.dimErr = nil
	return nil
}

func (f *fakeStore) Add(ctx context.Context, records []Record) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, records)
	return nil
}

func (f *fakeStore) Destroy(ctx context.Context) error {
	f.destroyed = true
	f.exists = false
	return nil
}

func (f *fakeStore) Close() error { return nil }

// stubChunker は与えられたチャンク列をそのまま返す
type stubChunker struct {
	chunks []Chunk
}

func (s *stubChunker) Split(documents []Document) ([]Chunk, error) { return s.chunks, nil }

// stubLoader は与えられたドキュメント列をそのまま返す
type stubLoader struct {
	documents []Document
}

func (s *stubLoader) Load(ctx context.Context, dir string) ([]Document, error) {
	return s.documents, nil
}

func makeChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			Content: fmt.Sprintf("チャンク%d", i),
			Source:  "data/sample.txt",
			Ordinal: i,
		}
	}
	return chunks
}

func newTestService(embedder *fakeEmbedder, store *fakeStore, sleeps *[]time.Duration) *IngestService {
	governor := NewRateGovernor(DefaultQuotaConfig(), nil, nil)
	sleep := func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return NewIngestService(nil, nil, embedder, store, governor, WithSleepFunc(sleep))
}

func TestIngestService_Ingest_Partitioning(t *testing.T) {
	tests := []struct {
		name        string
		chunks      int
		wantBatches int
	}{
		{"バッチサイズ未満", 3, 1},
		{"バッチサイズちょうど", 5, 1},
		{"端数が残る", 12, 3},
		{"割り切れる", 10, 2},
		{"1件", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &fakeEmbedder{dimension: 768}
			store := &fakeStore{}
			var sleeps []time.Duration
			svc := newTestService(embedder, store, &sleeps)

			result, err := svc.Ingest(context.Background(), makeChunks(tt.chunks))
			require.NoError(t, err)

			// ceil(n/b) 個のバッチが発行される
			assert.Equal(t, tt.wantBatches, result.Batches)
			require.Len(t, store.added, tt.wantBatches)

			// 全チャンクが元の順序のままちょうど一度ずつ書き込まれる
			total := 0
			for _, batch := range store.added {
				for _, r := range batch {
					assert.Equal(t, fmt.Sprintf("チャンク%d", total), r.Content)
					total++
				}
			}
			assert.Equal(t, tt.chunks, total)

			// 最後のバッチを除き、最大サイズのバッチになっている
			for i, batch := range store.added[:len(store.added)-1] {
				assert.Len(t, batch, 5, "batch %d", i)
			}

			// 待機は最後のバッチの後には行われない
			assert.Len(t, sleeps, tt.wantBatches-1)
		})
	}
}

func TestIngestService_Ingest_EmptyInput(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	var sleeps []time.Duration
	svc := newTestService(embedder, store, &sleeps)

	_, err := svc.Ingest(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	// 何も書き込まれない(プローブも含めて一切のリクエストを発行しない)
	assert.Empty(t, store.added)
	assert.Empty(t, store.createDims)
	assert.Empty(t, embedder.batchCalls)
}

func TestIngestService_Ingest_CreatesIndexWithProbedDimension(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 1536}
	store := &fakeStore{}
	var sleeps []time.Duration
	svc := newTestService(embedder, store, &sleeps)

	result, err := svc.Ingest(context.Background(), makeChunks(7))
	require.NoError(t, err)

	assert.Equal(t, 1536, result.Dimension)
	// インデックスの作成は最初のバッチで一度だけ行われる
	require.Equal(t, []int{1536}, store.createDims)
}

func TestIngestService_Ingest_DelayUsesObservedTokens(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	var sleeps []time.Duration
	svc := newTestService(embedder, store, &sleeps)

	// 10チャンク → 2バッチ。1バッチ5件×5文字=25トークン相当なので
	// RPM由来の600msが下限として適用される
	_, err := svc.Ingest(context.Background(), makeChunks(10))
	require.NoError(t, err)

	require.Len(t, sleeps, 1)
	assert.Equal(t, 600*time.Millisecond, sleeps[0])
}

func TestIngestService_Ingest_BatchFailureKeepsCommittedBatches(t *testing.T) {
	// 2バッチ目の埋め込み生成で失敗させる
	embedder := &fakeEmbedder{dimension: 768, failAtCall: 2}
	store := &fakeStore{}
	var sleeps []time.Duration
	svc := newTestService(embedder, store, &sleeps)

	_, err := svc.Ingest(context.Background(), makeChunks(8))
	require.Error(t, err)

	// 1バッチ目はコミット済みのまま残る(巻き戻しはしない)
	require.Len(t, store.added, 1)
	assert.Len(t, store.added[0], 5)
}

func TestIngestService_Ingest_RerunAppends(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	var sleeps []time.Duration
	svc := newTestService(embedder, store, &sleeps)

	_, err := svc.Ingest(context.Background(), makeChunks(5))
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), makeChunks(5))
	require.NoError(t, err)

	// 再実行は失敗も重複排除もせず、単純に追記される
	assert.Len(t, store.added, 2)
}

func TestIngestService_Ingest_ProgressEvents(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	governor := NewRateGovernor(DefaultQuotaConfig(), nil, nil)

	var events []Progress
	svc := NewIngestService(nil, nil, embedder, store, governor,
		WithSleepFunc(func(ctx context.Context, d time.Duration) error { return nil }),
		WithProgressFunc(func(p Progress) { events = append(events, p) }),
	)

	_, err := svc.Ingest(context.Background(), makeChunks(12))
	require.NoError(t, err)

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i, ev.BatchIndex)
		assert.Equal(t, 3, ev.BatchCount)
		assert.Positive(t, ev.EstimatedTokens)
	}
	assert.Equal(t, 2, events[2].Items)
}

func TestIngestService_BuildFromDirectory_NoDocuments(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	governor := NewRateGovernor(DefaultQuotaConfig(), nil, nil)
	svc := NewIngestService(&stubLoader{}, &stubChunker{}, embedder, store, governor)

	_, err := svc.BuildFromDirectory(context.Background(), "data")
	require.ErrorIs(t, err, ErrNoDocuments)
}

func TestIngestService_BuildFromDirectory(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 768}
	store := &fakeStore{}
	governor := NewRateGovernor(DefaultQuotaConfig(), nil, nil)

	loader := &stubLoader{documents: []Document{{Path: "data/a.txt", Content: "本文"}}}
	chunker := &stubChunker{chunks: makeChunks(2)}
	svc := NewIngestService(loader, chunker, embedder, store, governor,
		WithSleepFunc(func(ctx context.Context, d time.Duration) error { return nil }),
	)

	result, err := svc.BuildFromDirectory(context.Background(), "data")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, 1, result.Batches)
}
