package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/asakaida/ragchat/internal/core/ingestion"
)

// DirectoryLoader はローカルディレクトリ直下のドキュメントを読み込む。
//
// .txt と .md はそのままUTF-8テキストとして読み込み、.pdf と .docx は
// docconv で本文を抽出する。個別ファイルの失敗はログに残してスキップし、
// 残りのファイルの読み込みを継続する。
type DirectoryLoader struct {
	logger *slog.Logger
}

// NewDirectoryLoader は新しいDirectoryLoaderを作成する
func NewDirectoryLoader(logger *slog.Logger) *DirectoryLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryLoader{logger: logger}
}

// コンパイル時の型チェック
var _ ingestion.DocumentLoader = (*DirectoryLoader)(nil)

// Load はディレクトリ直下のサポート対象ファイルを読み込んでドキュメント列を返す。
// ディレクトリ自体が読めない場合のみエラーを返す。
func (l *DirectoryLoader) Load(ctx context.Context, dir string) ([]ingestion.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリを開けません: %w", err)
	}

	var documents []ingestion.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		ext := strings.ToLower(filepath.Ext(entry.Name()))

		content, supported, err := l.extract(path, ext)
		if !supported {
			l.logger.Info("未対応の拡張子のためスキップします", "path", path)
			continue
		}
		if err != nil {
			// 壊れたファイルが1つあっても残りの読み込みは継続する
			l.logger.Error("ドキュメントの読み込みに失敗したためスキップします",
				"path", path,
				"error", err,
			)
			continue
		}

		documents = append(documents, ingestion.Document{Path: path, Content: content})
		l.logger.Info("読み込み完了", "file", entry.Name())
	}

	return documents, nil
}

// extract は拡張子に応じた方法でファイル本文を取り出す
func (l *DirectoryLoader) extract(path, ext string) (content string, supported bool, err error) {
	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", true, err
		}
		return string(data), true, nil

	case ".pdf", ".docx":
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", true, err
		}
		if res.Body == "" {
			return "", true, fmt.Errorf("本文を抽出できませんでした")
		}
		return res.Body, true, nil

	default:
		return "", false, nil
	}
}
