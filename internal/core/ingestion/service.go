package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ingestState はインデックスのライフサイクル状態を表す
type ingestState int

const (
	// stateUninitialized は最初のバッチがまだ書き込まれていない状態
	stateUninitialized ingestState = iota
	// stateActive は最初のバッチが書き込まれ、以降は追記のみの状態
	stateActive
)

// SleepFunc はバッチ間の待機処理。テストで差し替えられるよう注入可能にしている
type SleepFunc func(ctx context.Context, d time.Duration) error

// defaultSleep はcontextのキャンセルを尊重して待機する
func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IngestService はチャンク列を永続化ベクトルインデックスに変換するユースケースを提供する。
// 処理は単一スレッドで逐次実行され、分単位クォータはRateGovernorの
// バッチ間待機のみで守られる(並行リクエストは行わない)。
type IngestService struct {
	loader   DocumentLoader
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	governor *RateGovernor
	guard    *CompatibilityGuard
	sleep    SleepFunc
	progress func(Progress)
	logger   *slog.Logger
}

type ingestServiceOptions struct {
	sleep    SleepFunc
	progress func(Progress)
	logger   *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger はロガーを差し替える
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithSleepFunc はバッチ間の待機処理を差し替える(テスト用)
func WithSleepFunc(sleep SleepFunc) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.sleep = sleep
	}
}

// WithProgressFunc は進捗通知のコールバックを設定する
func WithProgressFunc(fn func(Progress)) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.progress = fn
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	loader DocumentLoader,
	chunker Chunker,
	embedder Embedder,
	store VectorStore,
	governor *RateGovernor,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		sleep:  defaultSleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.sleep == nil {
		options.sleep = defaultSleep
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		governor: governor,
		guard:    NewCompatibilityGuard(embedder, store, options.logger),
		sleep:    options.sleep,
		progress: options.progress,
		logger:   options.logger,
	}
}

// BuildFromDirectory はディレクトリ内のドキュメントを読み込み、分割してインデックス化する
func (s *IngestService) BuildFromDirectory(ctx context.Context, dir string) (*Result, error) {
	startTime := time.Now()

	documents, err := s.loader.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの読み込みに失敗: %w", err)
	}
	if len(documents) == 0 {
		return nil, ErrNoDocuments
	}
	s.logger.Info("ドキュメントを読み込みました", "count", len(documents), "dir", dir)

	chunks, err := s.chunker.Split(documents)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの分割に失敗: %w", err)
	}
	s.logger.Info("ドキュメントをチャンクに分割しました", "chunks", len(chunks))

	result, err := s.Ingest(ctx, chunks)
	if err != nil {
		return nil, err
	}

	result.Documents = len(documents)
	result.Duration = time.Since(startTime)
	return result, nil
}

// Ingest はチャンク列を順序を保ったままバッチに分割し、埋め込みを生成して
// 永続化インデックスに書き込む。
//
// バッチの書き込みは at-least-once であり、途中で失敗した場合も
// コミット済みバッチはインデックスに残る(巻き戻しは行わない)。
// 同じ入力で再実行すると既存インデックスに追記され、重複排除は行われない。
func (s *IngestService) Ingest(ctx context.Context, chunks []Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}

	// 互換性検査は書き込み前に一度だけ実行する
	dimension, err := s.guard.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	batchSize := s.governor.MaxBatchSize()
	batches := partition(chunks, batchSize)
	s.governor.CheckDailyBudget(len(chunks))

	s.logger.Info("インデックス構築を開始します",
		"chunks", len(chunks),
		"batches", len(batches),
		"batchSize", batchSize,
		"dimension", dimension,
		"model", s.embedder.ModelName(),
	)

	state := stateUninitialized
	for i, batch := range batches {
		estimatedTokens := s.governor.EstimateBatchTokens(batch)

		records, err := s.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("バッチ %d/%d の埋め込み生成に失敗: %w", i+1, len(batches), err)
		}

		if state == stateUninitialized {
			if err := s.store.Create(ctx, dimension); err != nil {
				return nil, fmt.Errorf("インデックスの作成に失敗: %w", err)
			}
		}
		if err := s.store.Add(ctx, records); err != nil {
			return nil, fmt.Errorf("バッチ %d/%d の書き込みに失敗: %w", i+1, len(batches), err)
		}
		state = stateActive

		s.notifyProgress(Progress{
			BatchIndex:      i,
			BatchCount:      len(batches),
			Items:           len(batch),
			EstimatedTokens: estimatedTokens,
		})

		// 待機は最後のバッチの後には行わない
		if i < len(batches)-1 {
			delay := s.governor.Delay(estimatedTokens)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("バッチ間の待機が中断されました: %w", err)
			}
		}
	}

	return &Result{
		Chunks:    len(chunks),
		Batches:   len(batches),
		Dimension: dimension,
	}, nil
}

// embedBatch は1バッチ分のチャンクの埋め込みを生成し、永続化レコードに変換する
func (s *IngestService) embedBatch(ctx context.Context, batch []Chunk) ([]Record, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("埋め込み数がチャンク数と一致しません: got %d want %d", len(vectors), len(batch))
	}

	records := make([]Record, len(batch))
	for i, c := range batch {
		records[i] = Record{
			ID:      uuid.New(),
			Content: c.Content,
			Source:  c.Source,
			Ordinal: c.Ordinal,
			Vector:  vectors[i],
		}
	}
	return records, nil
}

func (s *IngestService) notifyProgress(p Progress) {
	s.logger.Info("バッチを書き込みました",
		"batch", p.BatchIndex+1,
		"batches", p.BatchCount,
		"items", p.Items,
		"estimatedTokens", p.EstimatedTokens,
	)
	if s.progress != nil {
		s.progress(p)
	}
}

// partition はチャンク列を順序を保ったまま最大sizeのバッチ列に分割する。
// バッチ同士に隙間も重複もなく、全チャンクをちょうど一度ずつ含む。
func partition(chunks []Chunk, size int) [][]Chunk {
	if size < 1 {
		size = 1
	}

	batches := make([][]Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}
