package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/ragchat/internal/core/chat"
)

func TestIsQuitWord(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"quit", true},
		{"QUIT", true},
		{"exit", true},
		{"終了", true},
		{"やめる", true},
		{"東京について教えて", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isQuitWord(tt.input), "input=%q", tt.input)
	}
}

func TestRunChatLoop_QuitWithoutAsking(t *testing.T) {
	// 終了語だけを入力した場合はAPI呼び出しに到達しない
	service := chat.NewAskService(nil, nil, nil)

	in := strings.NewReader("quit\n")
	var out bytes.Buffer

	err := runChatLoop(context.Background(), service, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "終了します")
}

func TestRunChatLoop_EOFEndsLoop(t *testing.T) {
	service := chat.NewAskService(nil, nil, nil)

	in := strings.NewReader("")
	var out bytes.Buffer

	err := runChatLoop(context.Background(), service, in, &out)
	require.NoError(t, err)
}

func TestRunChatLoop_SkipsBlankInput(t *testing.T) {
	service := chat.NewAskService(nil, nil, nil)

	in := strings.NewReader("   \n終了\n")
	var out bytes.Buffer

	err := runChatLoop(context.Background(), service, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "終了します")
}
