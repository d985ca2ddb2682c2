package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/asakaida/ragchat/internal/core/chat"
)

// quitWords は対話を終了させる入力
var quitWords = []string{"quit", "exit", "終了", "やめる"}

// ChatAction は構築済みインデックスに対する対話型の質問応答を開始する
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	exists, err := appCtx.Store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("インデックスの確認に失敗: %w", err)
	}
	if !exists {
		return errors.New("ベクトルインデックスが見つかりません。先に build コマンドを実行してください")
	}

	service := chat.NewAskService(
		appCtx.Embedder,
		appCtx.Store,
		appCtx.LLM,
		chat.WithAskLogger(appCtx.Logger),
		chat.WithTopK(appCtx.Config.TopK),
	)

	return runChatLoop(ctx, service, os.Stdin, os.Stdout)
}

// runChatLoop は標準入力から質問を読み取り、回答を表示し続ける
func runChatLoop(ctx context.Context, service *chat.AskService, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "質問を入力してください。終了するには quit / exit / 終了 と入力します。")

	scanner := bufio.NewScanner(in)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(out, "\n質問> ")
		if !scanner.Scan() {
			// EOF(Ctrl+D)でも通常終了とする
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if isQuitWord(question) {
			fmt.Fprintln(out, "終了します。")
			return nil
		}

		result, err := service.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(out, "エラー: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "\n%s\n", result.Answer)
		if len(result.Sources) > 0 {
			fmt.Fprintf(out, "\n参照元: %s\n", strings.Join(result.Sources, ", "))
		}
	}
}

func isQuitWord(input string) bool {
	lowered := strings.ToLower(input)
	for _, w := range quitWords {
		if lowered == w {
			return true
		}
	}
	return false
}
