package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Document は読み込み済みの1ドキュメント(1ファイル)を表す
type Document struct {
	// Path は読み込み元のファイルパス
	Path string
	// Content は抽出済みの本文テキスト
	Content string
}

// Chunk はドキュメントを分割したテキスト断片を表す。
// Chunker が生成した後は不変で、インデックス化で一度だけ消費される。
type Chunk struct {
	// Content はチャンク本文
	Content string
	// Source は分割元ドキュメントのファイルパス
	Source string
	// Ordinal はドキュメント内でのチャンク通し番号(0始まり)
	Ordinal int
}

// Record は永続化インデックスに書き込まれる1レコードを表す
type Record struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
	Source  string    `json:"source"`
	Ordinal int       `json:"ordinal"`
	Vector  []float32 `json:"vector"`
}

// Progress は1バッチ書き込み完了ごとに通知される進捗情報を表す。
// 観測用であり、永続化はされない。
type Progress struct {
	// BatchIndex は0始まりのバッチ番号
	BatchIndex int
	// BatchCount は総バッチ数
	BatchCount int
	// Items はこのバッチに含まれるチャンク数
	Items int
	// EstimatedTokens はこのバッチの推定トークン数
	EstimatedTokens int
}

// Result はインデックス構築処理の結果を表す
type Result struct {
	Documents int
	Chunks    int
	Batches   int
	Dimension int
	Duration  time.Duration
}
