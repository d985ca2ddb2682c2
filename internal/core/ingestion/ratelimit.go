package ingestion

import (
	"log/slog"
	"time"
)

// QuotaConfig は埋め込みプロバイダのクォータ設定。
// 生成時に値で渡される不変の設定であり、実行中に変化しない。
type QuotaConfig struct {
	// RequestsPerMinute は1分あたりの最大リクエスト数(RPM)
	RequestsPerMinute int

	// TokensPerMinute は1分あたりの最大トークン数(TPM)
	TokensPerMinute int

	// RequestsPerDay は1日あたりの最大リクエスト数(RPD)
	RequestsPerDay int

	// EstTokensPerItem は1チャンクあたりの推定トークン数
	EstTokensPerItem int

	// MaxBatchItems は1リクエストに載せる件数の上限。
	// リクエストの遅延と部分失敗の影響範囲を小さく保つための固定天井。
	MaxBatchItems int
}

// DefaultQuotaConfig は Gemini 無償枠のクォータに合わせたデフォルト設定を返す
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		RequestsPerMinute: 100,
		TokensPerMinute:   30000,
		RequestsPerDay:    1000,
		EstTokensPerItem:  1000,
		MaxBatchItems:     5,
	}
}

// RateGovernor はクォータ設定から安全なバッチサイズとバッチ間の待機時間を計算する。
// 状態を持たない決定的なスロットルであり、トークンバケットのような共有状態は持たない。
type RateGovernor struct {
	quota     QuotaConfig
	estimator TokenEstimator
	logger    *slog.Logger
}

// NewRateGovernor は新しいRateGovernorを作成する。
// estimator が nil の場合は文字数ベースの推定器を使う。
func NewRateGovernor(quota QuotaConfig, estimator TokenEstimator, logger *slog.Logger) *RateGovernor {
	if estimator == nil {
		estimator = RuneLengthEstimator{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RateGovernor{
		quota:     quota,
		estimator: estimator,
		logger:    logger,
	}
}

// MaxBatchSize は1リクエストに安全に載せられる最大チャンク数を返す。
// TPMと推定トークン数から計算し、下限1・上限 MaxBatchItems に収める。
func (g *RateGovernor) MaxBatchSize() int {
	size := 1
	if g.quota.EstTokensPerItem > 0 {
		size = g.quota.TokensPerMinute / g.quota.EstTokensPerItem
	}
	if size < 1 {
		size = 1
	}
	if g.quota.MaxBatchItems > 0 && size > g.quota.MaxBatchItems {
		size = g.quota.MaxBatchItems
	}
	return size
}

// Delay はリクエスト実行後、次のリクエストまでに待機すべき時間を返す。
// RPM由来の間隔と、観測トークン数がTPMに占める割合由来の間隔のうち長い方を採用することで、
// 実トークン数が見積もりを超えた場合でも両方の分単位クォータを守る。
func (g *RateGovernor) Delay(observedTokens int) time.Duration {
	var perRequest time.Duration
	if g.quota.RequestsPerMinute > 0 {
		perRequest = time.Minute / time.Duration(g.quota.RequestsPerMinute)
	}

	var perTokens time.Duration
	if g.quota.TokensPerMinute > 0 && observedTokens > 0 {
		perTokens = time.Duration(float64(observedTokens) / float64(g.quota.TokensPerMinute) * float64(time.Minute))
	}

	if perTokens > perRequest {
		return perTokens
	}
	return perRequest
}

// EstimateBatchTokens はバッチの推定トークン数を返す。
// 各チャンク本文の推定値の合計が0になる場合は、件数×EstTokensPerItem に
// フォールバックして待機時間が0に退化するのを防ぐ。
func (g *RateGovernor) EstimateBatchTokens(batch []Chunk) int {
	total := 0
	for _, c := range batch {
		total += g.estimator.EstimateTokens(c.Content)
	}
	if total == 0 {
		total = len(batch) * g.quota.EstTokensPerItem
	}
	return total
}

// CheckDailyBudget は総リクエスト数の見積もりがRPDを超える場合に警告ログを出す。
// クォータの最終的な強制はプロバイダ側で行われるため、ここでは処理を止めない。
func (g *RateGovernor) CheckDailyBudget(totalChunks int) {
	if g.quota.RequestsPerDay <= 0 {
		return
	}

	batchSize := g.MaxBatchSize()
	requests := (totalChunks + batchSize - 1) / batchSize
	if requests > g.quota.RequestsPerDay {
		g.logger.Warn("推定リクエスト数が1日あたりのクォータを超えています",
			"estimatedRequests", requests,
			"requestsPerDay", g.quota.RequestsPerDay,
			"totalChunks", totalChunks,
		)
	}
}
