package ingestion

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator はテキストの推定トークン数を返すインターフェース
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// RuneLengthEstimator は文字数をそのまま推定トークン数とする推定器。
// 日本語テキストはほぼ1文字1トークンになるため、安全側の見積もりとして使う。
type RuneLengthEstimator struct{}

// EstimateTokens はテキストの文字数を返す
func (RuneLengthEstimator) EstimateTokens(text string) int {
	return len([]rune(text))
}

// TiktokenEstimator は cl100k_base エンコーディングでトークン数をカウントする推定器。
// OpenAIのembeddingモデル(text-embedding-3系)と互換。
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator は新しいTiktokenEstimatorを作成する
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &TiktokenEstimator{encoding: encoding}, nil
}

// EstimateTokens はテキストのトークン数をカウントする
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	if e.encoding == nil {
		return 0
	}
	return len(e.encoding.Encode(text, nil, nil))
}
