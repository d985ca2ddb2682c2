package ingestion

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateGovernor_MaxBatchSize(t *testing.T) {
	tests := []struct {
		name  string
		quota QuotaConfig
		want  int
	}{
		{
			name:  "デフォルト設定では天井の5になる",
			quota: DefaultQuotaConfig(),
			want:  5,
		},
		{
			name: "TPM由来の値が天井より小さい場合はTPM由来の値",
			quota: QuotaConfig{
				RequestsPerMinute: 100,
				TokensPerMinute:   3000,
				EstTokensPerItem:  1000,
				MaxBatchItems:     5,
			},
			want: 3,
		},
		{
			name: "TPMが極端に小さくても下限は1",
			quota: QuotaConfig{
				RequestsPerMinute: 100,
				TokensPerMinute:   10,
				EstTokensPerItem:  1000,
				MaxBatchItems:     5,
			},
			want: 1,
		},
		{
			name: "推定トークン数が未設定でも下限は1",
			quota: QuotaConfig{
				RequestsPerMinute: 100,
				TokensPerMinute:   30000,
				MaxBatchItems:     5,
			},
			want: 1,
		},
		{
			name: "天井が未設定ならTPM由来の値をそのまま使う",
			quota: QuotaConfig{
				RequestsPerMinute: 100,
				TokensPerMinute:   30000,
				EstTokensPerItem:  1000,
			},
			want: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewRateGovernor(tt.quota, nil, nil)
			assert.Equal(t, tt.want, g.MaxBatchSize())
		})
	}
}

func TestRateGovernor_Delay(t *testing.T) {
	// RPM=100, TPM=30000 の場合、5000トークンのバッチは
	// max(600ms, 10s) = 10s の待機になる
	g := NewRateGovernor(DefaultQuotaConfig(), nil, nil)
	assert.Equal(t, 10*time.Second, g.Delay(5000))

	// トークン数が小さい場合はRPM由来の間隔が下限になる
	assert.Equal(t, 600*time.Millisecond, g.Delay(100))

	// トークン数0でもRPM由来の間隔は維持される
	assert.Equal(t, 600*time.Millisecond, g.Delay(0))
}

func TestRateGovernor_EstimateBatchTokens(t *testing.T) {
	g := NewRateGovernor(DefaultQuotaConfig(), nil, nil)

	// 文字数の合計が推定トークン数になる
	batch := []Chunk{
		{Content: "こんにちは"}, // 5文字
		{Content: "abcde"},   // 5文字
	}
	assert.Equal(t, 10, g.EstimateBatchTokens(batch))

	// 本文が空の場合は件数×EstTokensPerItemにフォールバックする
	empty := []Chunk{{Content: ""}, {Content: ""}, {Content: ""}}
	assert.Equal(t, 3000, g.EstimateBatchTokens(empty))
}

func TestRateGovernor_CheckDailyBudget(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// 推定リクエスト数 = ceil(10000/5) = 2000 > RPD=1000 で警告が出る
	g := NewRateGovernor(DefaultQuotaConfig(), nil, logger)
	g.CheckDailyBudget(10000)
	require.Contains(t, buf.String(), "level=WARN")

	// クォータ内なら警告は出ない
	buf.Reset()
	g.CheckDailyBudget(100)
	assert.Empty(t, buf.String())
}
