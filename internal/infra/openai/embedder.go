package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// maxBatchSize はOpenAI APIが1リクエストで受け付ける最大テキスト数
	maxBatchSize = 100
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

type embedderOptions struct {
	model     string
	dimension int
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithDimension は生成するベクトルの次元数を指定する。
// 0の場合はモデルのデフォルト次元を使う。
func WithDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// NewEmbedder は新しいEmbedderを作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Embedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     options.model,
		dimension: options.dimension,
	}
}

// コンパイル時の型チェック
var _ ingestion.Embedder = (*Embedder)(nil)

// Embed は単一テキストのEmbeddingを生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}
	return vectors[0], nil
}

// BatchEmbed は複数テキストのEmbeddingを1リクエストで生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", maxBatchSize)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}
