package chat

import (
	"fmt"
	"strings"
)

// BuildAskPrompt はRAG質問応答用のプロンプトを構築する。
// 回答はコンテキストに含まれる情報のみに基づかせ、根拠がない場合は
// その旨を答えさせる。
func BuildAskPrompt(question string, contexts []string) string {
	var sb strings.Builder

	sb.WriteString("以下の情報を基に、質問に対して正確で詳細な回答を提供してください。\n")
	sb.WriteString("情報に基づいて回答できない場合は、「提供された情報では回答できません」と答えてください。\n\n")

	sb.WriteString("関連情報:\n")
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(c)
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "質問: %s\n\n", question)
	sb.WriteString("回答:")

	return sb.String()
}
