package pgindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/asakaida/ragchat/internal/core/chat"
	"github.com/asakaida/ragchat/internal/core/ingestion"
)

const (
	chunksTable   = "ragchat_chunks"
	metadataTable = "ragchat_index_metadata"
)

// Store はPostgreSQL + pgvectorに永続化されるベクトルインデックス。
//
// チャンクは ragchat_chunks テーブルに格納され、インデックス全体の次元数は
// ragchat_index_metadata テーブルに1つだけ記録される。類似検索はpgvectorの
// コサイン距離演算子で行う。
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New はDATABASE_URLで指定されたデータベースに接続する
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URLが設定されていません")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベースを開けません: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースに接続できません: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// コンパイル時の型チェック
var (
	_ ingestion.VectorStore = (*Store)(nil)
	_ chat.Retriever        = (*Store)(nil)
)

// Exists はチャンクテーブルが存在するかを返す
func (s *Store) Exists(ctx context.Context) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, chunksTable).Scan(&exists); err != nil {
		return false, fmt.Errorf("テーブルの確認に失敗: %w", err)
	}
	return exists, nil
}

// Dimension はインデックスに記録された次元数を返す。
// メタデータテーブルや行が存在しない場合は ErrDimensionUnknown を返す。
func (s *Store) Dimension(ctx context.Context) (int, error) {
	const q = `SELECT dimension FROM ` + metadataTable + ` LIMIT 1`

	var dim int
	err := s.db.QueryRowContext(ctx, q).Scan(&dim)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ingestion.ErrDimensionUnknown, err)
	}
	if dim <= 0 {
		return 0, fmt.Errorf("%w: 記録値が不正です: %d", ingestion.ErrDimensionUnknown, dim)
	}
	return dim, nil
}

// Create はpgvector拡張を有効化し、テーブルを作成して次元数を記録する
func (s *Store) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("次元数が不正です: %d", dimension)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("pgvector拡張の有効化に失敗: %w", err)
	}

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			content   TEXT NOT NULL,
			source    TEXT NOT NULL,
			ordinal   INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)
	`, chunksTable, dimension)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("チャンクテーブルの作成に失敗: %w", err)
	}

	meta := `
		CREATE TABLE IF NOT EXISTS ` + metadataTable + ` (
			id        BOOLEAN PRIMARY KEY DEFAULT TRUE,
			dimension INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, meta); err != nil {
		return fmt.Errorf("メタデータテーブルの作成に失敗: %w", err)
	}

	// 既に記録済みの次元数は上書きしない
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+metadataTable+` (id, dimension) VALUES (TRUE, $1)
		 ON CONFLICT (id) DO NOTHING`,
		dimension,
	)
	if err != nil {
		return fmt.Errorf("次元数の記録に失敗: %w", err)
	}
	return nil
}

// Add はレコード群を1トランザクションで追記する
func (s *Store) Add(ctx context.Context, records []ingestion.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+chunksTable+` (id, content, source, ordinal, embedding)
		 VALUES ($1, $2, $3, $4, $5)`,
	)
	if err != nil {
		return fmt.Errorf("INSERT文の準備に失敗: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Content, r.Source, r.Ordinal, pgvector.NewVector(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("レコードの書き込みに失敗: %w", err)
		}
	}

	return tx.Commit()
}

// Search はクエリベクトルとのコサイン類似度が高い順にレコードを返す
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]chat.ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, content, source, ordinal, embedding, 1 - (embedding <=> $1) AS score
		FROM ` + chunksTable + `
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("類似検索に失敗: %w", err)
	}
	defer rows.Close()

	var scored []chat.ScoredRecord
	for rows.Next() {
		var (
			id  uuid.UUID
			rec ingestion.Record
			emb pgvector.Vector
			sc  float64
		)
		if err := rows.Scan(&id, &rec.Content, &rec.Source, &rec.Ordinal, &emb, &sc); err != nil {
			return nil, fmt.Errorf("レコードの読み出しに失敗: %w", err)
		}
		rec.ID = id
		rec.Vector = emb.Slice()
		scored = append(scored, chat.ScoredRecord{Record: rec, Score: sc})
	}
	return scored, rows.Err()
}

// Destroy はインデックスのテーブルをすべて削除する
func (s *Store) Destroy(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+chunksTable); err != nil {
		return fmt.Errorf("チャンクテーブルの削除に失敗: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+metadataTable); err != nil {
		return fmt.Errorf("メタデータテーブルの削除に失敗: %w", err)
	}
	s.logger.Info("インデックスを削除しました", "table", chunksTable)
	return nil
}

// Close はデータベース接続を閉じる
func (s *Store) Close() error {
	return s.db.Close()
}
