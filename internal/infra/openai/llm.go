package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/asakaida/ragchat/internal/core/chat"
)

const (
	// DefaultGenerativeModel はデフォルトで使用する回答生成モデル
	DefaultGenerativeModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI APIキーが設定されていません")

// LLM はOpenAI APIを使用した回答生成クライアント
type LLM struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

// NewLLM は新しいLLMを作成する
func NewLLM(apiKey, model string) (*LLM, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultGenerativeModel
	}

	return &LLM{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: 0.7,
		timeout:     DefaultTimeout,
	}, nil
}

// コンパイル時の型チェック
var _ chat.LLMClient = (*LLM)(nil)

// GenerateCompletion はプロンプトに対する回答テキストを生成する
func (l *LLM) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	completion, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(l.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("回答の生成に失敗: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("回答が返されませんでした")
	}

	return completion.Choices[0].Message.Content, nil
}
