package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asakaida/ragchat/internal/core/chat"
	"github.com/asakaida/ragchat/internal/core/ingestion"
	"github.com/asakaida/ragchat/internal/infra/gemini"
	"github.com/asakaida/ragchat/internal/infra/localindex"
	"github.com/asakaida/ragchat/internal/infra/openai"
	"github.com/asakaida/ragchat/internal/infra/pgindex"
	"github.com/asakaida/ragchat/internal/platform/config"
	"github.com/asakaida/ragchat/internal/platform/logger"
)

// IndexStore はベクトルストアと類似検索の両方を提供するバックエンド
type IndexStore interface {
	ingestion.VectorStore
	chat.Retriever
}

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	Embedder ingestion.Embedder
	Store    IndexStore
	LLM      chat.LLMClient

	closers []func() error
}

// NewAppContext は設定ファイルを読み込み、プロバイダとストアを組み立てる
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	appCtx := &AppContext{
		Config: cfg,
		Logger: appLogger,
	}

	if err := appCtx.initProvider(ctx); err != nil {
		appCtx.Close()
		return nil, err
	}
	if err := appCtx.initStore(ctx); err != nil {
		appCtx.Close()
		return nil, err
	}

	return appCtx, nil
}

// initProvider は埋め込みと回答生成のクライアントを初期化する
func (ac *AppContext) initProvider(ctx context.Context) error {
	cfg := ac.Config

	switch cfg.Embedding.Provider {
	case config.ProviderGemini:
		embedder, err := gemini.NewEmbedder(ctx, cfg.Embedding.GoogleAPIKey, cfg.Embedding.Model)
		if err != nil {
			return fmt.Errorf("Gemini埋め込みクライアントの初期化に失敗: %w", err)
		}
		ac.Embedder = embedder
		ac.closers = append(ac.closers, embedder.Close)

		llm, err := gemini.NewLLM(ctx, cfg.Embedding.GoogleAPIKey, cfg.Generation.Model)
		if err != nil {
			return fmt.Errorf("Gemini生成クライアントの初期化に失敗: %w", err)
		}
		ac.LLM = llm
		ac.closers = append(ac.closers, llm.Close)

	case config.ProviderOpenAI:
		var opts []openai.EmbedderOption
		if cfg.Embedding.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Embedding.Model))
		}
		ac.Embedder = openai.NewEmbedder(cfg.Embedding.OpenAIAPIKey, opts...)

		llm, err := openai.NewLLM(cfg.Embedding.OpenAIAPIKey, cfg.Generation.Model)
		if err != nil {
			return fmt.Errorf("OpenAI生成クライアントの初期化に失敗: %w", err)
		}
		ac.LLM = llm

	default:
		return fmt.Errorf("未対応の埋め込みプロバイダです: %q", cfg.Embedding.Provider)
	}

	return nil
}

// initStore はベクトルストアバックエンドを初期化する
func (ac *AppContext) initStore(ctx context.Context) error {
	cfg := ac.Config

	switch cfg.Store.Backend {
	case config.StoreLocal:
		store := localindex.New(cfg.Store.Dir, ac.Logger)
		ac.Store = store
		ac.closers = append(ac.closers, store.Close)

	case config.StorePostgres:
		store, err := pgindex.New(ctx, cfg.Store.DatabaseURL, ac.Logger)
		if err != nil {
			return fmt.Errorf("ベクトルストアへの接続に失敗: %w", err)
		}
		ac.Store = store
		ac.closers = append(ac.closers, store.Close)

	default:
		return fmt.Errorf("未対応のベクトルストアです: %q", cfg.Store.Backend)
	}

	return nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	for i := len(ac.closers) - 1; i >= 0; i-- {
		if err := ac.closers[i](); err != nil {
			ac.Logger.Warn("リソースのクローズに失敗", "error", err)
		}
	}
	ac.closers = nil
}
