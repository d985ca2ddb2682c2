package chunker

import (
	"strings"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// デフォルトの分割設定(文字数基準)
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// separators は分割位置の候補。優先度順に、段落境界→行境界→句読点→空白。
var separators = []string{"\n\n", "\n", "。", "、", " "}

// CharacterChunker はドキュメントを固定長の文字数で重なりを持たせて分割する。
// チャンク境界はなるべく自然な区切り(段落・行・句読点)に合わせる。
type CharacterChunker struct {
	chunkSize int
	overlap   int
}

// NewCharacterChunker は新しいCharacterChunkerを作成する。
// 不正な値はデフォルト(1000文字、重なり200文字)に丸める。
func NewCharacterChunker(chunkSize, overlap int) *CharacterChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}

	return &CharacterChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// コンパイル時の型チェック
var _ ingestion.Chunker = (*CharacterChunker)(nil)

// Split はドキュメント列を順序を保ったままチャンク列に分割する
func (c *CharacterChunker) Split(documents []ingestion.Document) ([]ingestion.Chunk, error) {
	var chunks []ingestion.Chunk
	for _, doc := range documents {
		for i, text := range c.splitText(doc.Content) {
			chunks = append(chunks, ingestion.Chunk{
				Content: text,
				Source:  doc.Path,
				Ordinal: i,
			})
		}
	}
	return chunks, nil
}

// splitText は1ドキュメントの本文をチャンク本文の列に分割する
func (c *CharacterChunker) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	var parts []string
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			break
		}

		// ウィンドウ後半に区切り文字があればそこで切る
		end = c.adjustBoundary(runes, start, end)
		parts = append(parts, string(runes[start:end]))

		next := end - c.overlap
		if next <= start {
			// 重なりが大きすぎて前進しない場合の保険
			next = start + 1
		}
		start = next
	}
	return parts
}

// adjustBoundary は [start, end) の後半から優先度順に区切り文字を探し、
// 見つかった位置の直後を新しい境界として返す。見つからなければendのまま。
func (c *CharacterChunker) adjustBoundary(runes []rune, start, end int) int {
	window := string(runes[start+c.chunkSize/2 : end])

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// runeインデックスに換算する
		offset := len([]rune(window[:idx])) + len([]rune(sep))
		return start + c.chunkSize/2 + offset
	}
	return end
}
