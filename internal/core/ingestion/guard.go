package ingestion

import (
	"context"
	"fmt"
	"log/slog"
)

// probeText は次元数プローブに使う固定文字列
const probeText = "dimension probe"

// CompatibilityGuard は既存インデックスと現在の埋め込みモデルの次元数互換性を検査する。
// 埋め込みモデルを切り替えた後に異なる次元数のベクトルが1つのインデックスに
// 混在するのを防ぐことが目的で、1回のインデックス構築につき書き込み前に一度だけ実行する。
type CompatibilityGuard struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

// NewCompatibilityGuard は新しいCompatibilityGuardを作成する
func NewCompatibilityGuard(embedder Embedder, store VectorStore, logger *slog.Logger) *CompatibilityGuard {
	if logger == nil {
		logger = slog.Default()
	}

	return &CompatibilityGuard{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Ensure はプローブ埋め込みで現在のモデルの次元数を特定し、既存インデックスとの
// 互換性を確認して次元数を返す。
//
//   - 既存インデックスの記録次元数が特定でき、かつ現在のモデルと異なる場合は
//     インデックス全体を削除する(異なる次元間のデータ移行は行わない)。
//   - 次元数を特定できない場合は警告を残し、既存インデックスをそのまま利用する。
//   - プローブ自体の失敗は致命的エラーとして呼び出し元に返す。
func (g *CompatibilityGuard) Ensure(ctx context.Context) (int, error) {
	vec, err := g.embedder.Embed(ctx, probeText)
	if err != nil {
		return 0, fmt.Errorf("次元数プローブに失敗: %w", err)
	}
	target := len(vec)
	if target == 0 {
		return 0, fmt.Errorf("次元数プローブが空のベクトルを返しました: model=%s", g.embedder.ModelName())
	}

	exists, err := g.store.Exists(ctx)
	if err != nil {
		return 0, fmt.Errorf("インデックスの存在確認に失敗: %w", err)
	}
	if !exists {
		return target, nil
	}

	recorded, err := g.store.Dimension(ctx)
	if err != nil {
		// メタデータの欠損・破損は「次元数不明」として扱い、既存インデックスを温存する
		g.logger.Warn("既存インデックスの次元数を特定できないため、そのまま利用します",
			"error", err,
		)
		return target, nil
	}

	if recorded != target {
		g.logger.Warn("既存インデックスと埋め込みモデルの次元数が一致しないため、インデックスを削除します",
			"recordedDimension", recorded,
			"targetDimension", target,
			"model", g.embedder.ModelName(),
		)
		if err := g.store.Destroy(ctx); err != nil {
			return 0, fmt.Errorf("既存インデックスの削除に失敗: %w", err)
		}
	}

	return target, nil
}
