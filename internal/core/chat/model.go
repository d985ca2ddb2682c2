package chat

import "github.com/asakaida/ragchat/internal/core/ingestion"

// ScoredRecord は類似度スコア付きの検索ヒットを表す
type ScoredRecord struct {
	Record ingestion.Record
	Score  float64
}

// AskResult は1つの質問に対する回答を表す
type AskResult struct {
	// Answer はLLMが生成した回答本文
	Answer string
	// Sources は回答の根拠となったチャンクの参照元ファイル名(上位のみ)
	Sources []string
	// Hits は検索でヒットしたチャンク数
	Hits int
}
