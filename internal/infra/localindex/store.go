package localindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// dbFileName はインデックスディレクトリ内のデータベースファイル名
const dbFileName = "index.sqlite3"

// Store はローカルディレクトリに永続化されるベクトルインデックス。
//
// 保存先ディレクトリの中にSQLiteデータベースを1つ持ち、チャンク本文・
// メタデータ・埋め込みベクトルをレコードとして格納する。インデックス全体の
// 次元数は index_metadata テーブルに1つだけ記録される。
type Store struct {
	dir    string
	db     *sql.DB
	logger *slog.Logger
}

// New は保存先ディレクトリを指す新しいStoreを作成する。
// この時点ではディレクトリやデータベースは作成しない。
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// コンパイル時の型チェック
var _ ingestion.VectorStore = (*Store)(nil)

// Exists は保存先にインデックスが存在するかを返す
func (s *Store) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, dbFileName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Dimension はインデックスに記録された次元数を返す。
// データベースやメタデータテーブル・行が存在しない、または値が壊れている
// 場合は ErrDimensionUnknown を返す。
func (s *Store) Dimension(ctx context.Context) (int, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ingestion.ErrDimensionUnknown
	}

	db, err := s.open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ingestion.ErrDimensionUnknown, err)
	}

	var value string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM index_metadata WHERE key = 'dimension'`,
	).Scan(&value)
	if err != nil {
		// テーブルや行の欠損は「次元数不明」として扱う
		return 0, fmt.Errorf("%w: %v", ingestion.ErrDimensionUnknown, err)
	}

	dim, err := strconv.Atoi(value)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("%w: 記録値が不正です: %q", ingestion.ErrDimensionUnknown, value)
	}
	return dim, nil
}

// Create はインデックスを開く。存在しない場合はディレクトリとデータベースを
// 作成し、次元数をメタデータに記録する。
func (s *Store) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("次元数が不正です: %d", dimension)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("インデックスディレクトリの作成に失敗: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	if err := createSchema(ctx, db); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}

	// 既に記録済みの次元数は上書きしない
	_, err = db.ExecContext(ctx,
		`INSERT INTO index_metadata (key, value) VALUES ('dimension', ?)
		 ON CONFLICT (key) DO NOTHING`,
		strconv.Itoa(dimension),
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

	db, err := s.open()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, content, source, ordinal, embedding) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("INSERT文の準備に失敗: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID.String(), r.Content, r.Source, r.Ordinal, encodeVector(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("レコードの書き込みに失敗: %w", err)
		}
	}

	return tx.Commit()
}

// Destroy はインデックス全体を保存先ディレクトリごと削除する
func (s *Store) Destroy(ctx context.Context) error {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("インデックスの削除に失敗: %w", err)
	}
	s.logger.Info("インデックスを削除しました", "dir", s.dir)
	return nil
}

// Close はデータベース接続を閉じる
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// open はデータベース接続を開く(遅延初期化)
func (s *Store) open() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite", filepath.Join(s.dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("データベースを開けません: %w", err)
	}
	s.db = db
	return db, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS index_metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			source    TEXT NOT NULL,
			ordinal   INTEGER NOT NULL,
			embedding BLOB NOT NULL
		);
	`)
	return err
}

// encodeVector はfloat32ベクトルをリトルエンディアンのBLOBに変換する
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector はBLOBをfloat32ベクトルに復元する
func decodeVector(buf []byte) []float32 {
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector
}
