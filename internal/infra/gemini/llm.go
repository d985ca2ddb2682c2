package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/asakaida/ragchat/internal/core/chat"
)

// DefaultGenerativeModel は回答生成に使うデフォルトモデル
const DefaultGenerativeModel = "gemini-2.5-flash"

// LLM は Google Generative AI API を使用して回答テキストを生成する
type LLM struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewLLM は新しいLLMを作成する
func NewLLM(ctx context.Context, apiKey, model string) (*LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("APIキーが設定されていません")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの作成に失敗: %w", err)
	}

	if model == "" {
		model = DefaultGenerativeModel
	}

	return &LLM{
		client:      client,
		model:       model,
		temperature: 0.7,
	}, nil
}

// コンパイル時の型チェック
var _ chat.LLMClient = (*LLM)(nil)

// GenerateCompletion はプロンプトに対する回答を生成する
func (l *LLM) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	m := l.client.GenerativeModel(l.model)
	m.SetTemperature(l.temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: 候補が返されませんでした")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}

// Close は内部クライアントを閉じる
func (l *LLM) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
