package ingestion

import "errors"

var (
	// ErrEmptyInput はインデックス化対象のチャンクが1件もない場合のエラー
	ErrEmptyInput = errors.New("empty input: no chunks to ingest")

	// ErrNoDocuments は読み込みに成功したドキュメントが1件もない場合のエラー
	ErrNoDocuments = errors.New("no documents to ingest")

	// ErrDimensionUnknown は既存インデックスの次元数メタデータが欠損・破損している場合のエラー
	ErrDimensionUnknown = errors.New("index dimension unknown")
)
