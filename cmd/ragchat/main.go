package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/asakaida/ragchat/cmd/ragchat/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "ragchat",
		Usage: "ローカル文書から構築したベクトルインデックスに対するRAGチャット",
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "文書ディレクトリからベクトルインデックスを構築",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "data",
						Usage: "文書ディレクトリ（省略時はDATA_DIRまたは./data）",
					},
				},
				Action: commands.BuildAction,
			},
			{
				Name:  "chat",
				Usage: "構築済みインデックスに対して対話型の質問応答を開始",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
				},
				Action: commands.ChatAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
