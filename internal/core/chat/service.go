package chat

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// maxSourceReferences は回答に添える参照元ファイル名の上限
const maxSourceReferences = 2

// Retriever は永続化インデックスに対する類似度検索を表す
type Retriever interface {
	// Search はクエリベクトルに近い上位topK件のレコードを返す
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
}

// LLMClient は回答生成モデルとの通信インターフェース
type LLMClient interface {
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// AskService は構築済みインデックスに対する質問応答のユースケースを提供する
type AskService struct {
	embedder  ingestion.Embedder
	retriever Retriever
	llm       LLMClient
	topK      int
	logger    *slog.Logger
}

// AskServiceOption は AskService のオプション設定
type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithTopK は検索で取得するチャンク数を上書きする
func WithTopK(topK int) AskServiceOption {
	return func(s *AskService) {
		s.topK = topK
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	embedder ingestion.Embedder,
	retriever Retriever,
	llm LLMClient,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		embedder:  embedder,
		retriever: retriever,
		llm:       llm,
		topK:      5,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.topK <= 0 {
		svc.topK = 5
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問文を埋め込み、関連チャンクを検索してLLMで回答を生成する
func (s *AskService) Ask(ctx context.Context, question string) (*AskResult, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("質問の埋め込み生成に失敗: %w", err)
	}

	hits, err := s.retriever.Search(ctx, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("類似チャンクの検索に失敗: %w", err)
	}

	s.logger.Info("関連チャンクを取得しました", "hits", len(hits), "topK", s.topK)

	contexts := make([]string, len(hits))
	for i, h := range hits {
		contexts[i] = h.Record.Content
	}

	prompt := BuildAskPrompt(question, contexts)
	answer, err := s.llm.GenerateCompletion(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("回答の生成に失敗: %w", err)
	}

	return &AskResult{
		Answer:  answer,
		Sources: sourceNames(hits),
		Hits:    len(hits),
	}, nil
}

// sourceNames は上位ヒットの参照元ファイル名を重複を除いて返す
func sourceNames(hits []ScoredRecord) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, maxSourceReferences)

	for _, h := range hits {
		name := filepath.Base(h.Record.Source)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
		if len(names) == maxSourceReferences {
			break
		}
	}
	return names
}
