package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/asakaida/ragchat/internal/core/ingestion"
	"github.com/asakaida/ragchat/internal/infra/chunker"
	"github.com/asakaida/ragchat/internal/infra/source"
	"github.com/asakaida/ragchat/internal/platform/config"
)

// BuildAction は文書ディレクトリからベクトルインデックスを構築するコマンドのアクション
func BuildAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	logger := appCtx.Logger

	dataDir := cmd.String("data")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	estimator, err := newTokenEstimator(cfg)
	if err != nil {
		return err
	}
	governor := ingestion.NewRateGovernor(cfg.Quota(), estimator, logger)

	service := ingestion.NewIngestService(
		source.NewDirectoryLoader(logger),
		chunker.NewCharacterChunker(cfg.Chunking.Size, cfg.Chunking.Overlap),
		appCtx.Embedder,
		appCtx.Store,
		governor,
		ingestion.WithIngestLogger(logger),
		ingestion.WithProgressFunc(func(p ingestion.Progress) {
			fmt.Printf("バッチ %d/%d を処理中 (%d件, 推定%dトークン)\n",
				p.BatchIndex+1, p.BatchCount, p.Items, p.EstimatedTokens)
		}),
	)

	logger.Info("インデックス構築を開始",
		"data_dir", dataDir,
		"provider", cfg.Embedding.Provider,
		"store", cfg.Store.Backend,
	)

	result, err := service.BuildFromDirectory(ctx, dataDir)
	if err != nil {
		return fmt.Errorf("インデックスの構築に失敗: %w", err)
	}

	fmt.Printf("完了: 文書%d件 / チャンク%d件 / バッチ%d回 / 次元数%d (%s)\n",
		result.Documents, result.Chunks, result.Batches, result.Dimension,
		result.Duration.Round(100*time.Millisecond))

	return nil
}

// newTokenEstimator はプロバイダに応じたトークン推定器を返す。
// OpenAIはtiktokenで正確にカウントできるが、Geminiの埋め込みモデルには
// 公開されたトークナイザがないため文字数で安全側に見積もる。
func newTokenEstimator(cfg *config.Config) (ingestion.TokenEstimator, error) {
	if cfg.Embedding.Provider == config.ProviderOpenAI {
		return ingestion.NewTiktokenEstimator()
	}
	return ingestion.RuneLengthEstimator{}, nil
}
