package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
const DefaultEmbeddingModel = "models/embedding-001"

// Embedder は Google Generative AI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder は新しいEmbedderを作成する
func NewEmbedder(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("APIキーが設定されていません")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの作成に失敗: %w", err)
	}

	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &Embedder{client: client, model: model}, nil
}

// コンパイル時の型チェック
var _ ingestion.Embedder = (*Embedder)(nil)

// Embed は単一テキストのEmbeddingを生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)

	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: 空のレスポンス")
	}

	return resp.Embedding.Values, nil
}

// BatchEmbed は複数テキストのEmbeddingを1リクエストで生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	em := e.client.EmbeddingModel(e.model)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: 埋め込み数が一致しません: got %d want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Close は内部クライアントを閉じる
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
