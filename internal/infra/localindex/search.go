package localindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/asakaida/ragchat/internal/core/chat"
	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// コンパイル時の型チェック
var _ chat.Retriever = (*Store)(nil)

// Search はクエリベクトルとのコサイン類似度が高い順にレコードを返す
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]chat.ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, content, source, ordinal, embedding FROM chunks`,
	)
	if err != nil {
		return nil, fmt.Errorf("チャンクの読み出しに失敗: %w", err)
	}
	defer rows.Close()

	var scored []chat.ScoredRecord
	for rows.Next() {
		var (
			id   string
			rec  ingestion.Record
			blob []byte
		)
		if err := rows.Scan(&id, &rec.Content, &rec.Source, &rec.Ordinal, &blob); err != nil {
			return nil, fmt.Errorf("レコードの読み出しに失敗: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("レコードIDが不正です: %w", err)
		}
		rec.Vector = decodeVector(blob)

		scored = append(scored, chat.ScoredRecord{
			Record: rec,
			Score:  cosineSimilarity(vector, rec.Vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// cosineSimilarity は2つのベクトルのコサイン類似度を計算する。
// 次元が一致しない場合やゼロベクトルの場合は0を返す。
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
