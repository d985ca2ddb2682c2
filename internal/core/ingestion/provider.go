package ingestion

import "context"

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingを1リクエストで生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はモデル名を返す
	ModelName() string
}

// DocumentLoader はディレクトリからドキュメントを読み込むインターフェース。
// 個別ファイルの読み込み失敗はスキップしてログに残し、残りの読み込みを継続する。
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]Document, error)
}

// Chunker はドキュメント列をチャンク列に分割するインターフェース。
// 出力はドキュメント順・出現順を保った順序付き列である。
type Chunker interface {
	Split(documents []Document) ([]Chunk, error)
}

// VectorStore は永続化ベクトルインデックスへの操作を表す。
// インデックスは単一の保存先を占有し、全レコードが同一次元数のベクトルを持つ。
type VectorStore interface {
	// Exists は保存先にインデックスが存在するかを返す
	Exists(ctx context.Context) (bool, error)

	// Dimension はインデックスに記録された次元数を返す。
	// メタデータが欠損・破損している場合は ErrDimensionUnknown を返す。
	Dimension(ctx context.Context) (int, error)

	// Create はインデックスを開く。存在しない場合は次元数を記録して新規作成する
	Create(ctx context.Context, dimension int) error

	// Add はレコード群を既存インデックスに追記する
	Add(ctx context.Context, records []Record) error

	// Destroy はインデックス全体を保存先ごと削除する
	Destroy(ctx context.Context) error

	// Close は保持しているリソースを解放する
	Close() error
}
