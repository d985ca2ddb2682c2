package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// 埋め込みプロバイダの識別子
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ベクトルストアバックエンドの識別子
const (
	StoreLocal    = "local"
	StorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 埋め込みプロバイダ設定
	Embedding EmbeddingConfig

	// 回答生成用モデル設定
	Generation GenerationConfig

	// ベクトルストア設定
	Store StoreConfig

	// レート制限設定
	RateLimit RateLimitConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 文書の読み込み元ディレクトリ
	DataDir string

	// 検索時に取得するチャンク数
	TopK int
}

// EmbeddingConfig は埋め込みAPI設定
type EmbeddingConfig struct {
	Provider     string // "gemini" or "openai"
	GoogleAPIKey string
	OpenAIAPIKey string
	Model        string // 空の場合はプロバイダのデフォルト
}

// GenerationConfig は回答生成用LLM設定
type GenerationConfig struct {
	Model string
}

// StoreConfig はベクトルストア接続設定
type StoreConfig struct {
	Backend     string // "local" or "postgres"
	Dir         string // localバックエンドの保存先ディレクトリ
	DatabaseURL string // postgresバックエンドの接続文字列
}

// RateLimitConfig は埋め込みAPIのクォータ設定
type RateLimitConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
	EstTokensPerItem  int
	MaxBatchItems     int
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	Size    int
	Overlap int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	quota := ingestion.DefaultQuotaConfig()

	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:     getEnv("EMBEDDING_PROVIDER", ProviderGemini),
			GoogleAPIKey: getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			Model:        getEnv("EMBEDDING_MODEL", ""),
		},
		Generation: GenerationConfig{
			Model: getEnv("GEN_MODEL", ""),
		},
		Store: StoreConfig{
			Backend:     getEnv("VECTOR_STORE", StoreLocal),
			Dir:         getEnv("VECTOR_DB_DIR", "./vectordb"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", quota.RequestsPerMinute),
			TokensPerMinute:   getEnvAsInt("RATE_LIMIT_TPM", quota.TokensPerMinute),
			RequestsPerDay:    getEnvAsInt("RATE_LIMIT_RPD", quota.RequestsPerDay),
			EstTokensPerItem:  getEnvAsInt("EST_TOKENS_PER_ITEM", quota.EstTokensPerItem),
			MaxBatchItems:     getEnvAsInt("MAX_BATCH_SIZE", quota.MaxBatchItems),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvAsInt("CHUNK_SIZE", 1000),
			Overlap: getEnvAsInt("CHUNK_OVERLAP", 200),
		},
		DataDir: getEnv("DATA_DIR", "./data"),
		TopK:    getEnvAsInt("TOP_K", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate はAPI呼び出しやI/Oを行う前に設定の不備を検出します
func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case ProviderGemini:
		if c.Embedding.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY環境変数が設定されていません")
		}
	case ProviderOpenAI:
		if c.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY環境変数が設定されていません")
		}
	default:
		return fmt.Errorf("未対応の埋め込みプロバイダです: %q", c.Embedding.Provider)
	}

	switch c.Store.Backend {
	case StoreLocal:
		if c.Store.Dir == "" {
			return fmt.Errorf("VECTOR_DB_DIR環境変数が設定されていません")
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL環境変数が設定されていません")
		}
	default:
		return fmt.Errorf("未対応のベクトルストアです: %q", c.Store.Backend)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("CHUNK_SIZEは正の値を指定してください: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("CHUNK_OVERLAPは0以上CHUNK_SIZE未満を指定してください: %d", c.Chunking.Overlap)
	}

	return nil
}

// Quota はレート制限設定をクォータ設定に変換します
func (c *Config) Quota() ingestion.QuotaConfig {
	return ingestion.QuotaConfig{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		TokensPerMinute:   c.RateLimit.TokensPerMinute,
		RequestsPerDay:    c.RateLimit.RequestsPerDay,
		EstTokensPerItem:  c.RateLimit.EstTokensPerItem,
		MaxBatchItems:     c.RateLimit.MaxBatchItems,
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
