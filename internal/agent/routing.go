package agent

import (
	"context"

	"github.com/cloudwego/eino/compose"
)

// ShouldContinue 根据最后一条消息决定下一跳：
// 助手消息带有工具调用则进入 ToolsNode，否则结束。
func ShouldContinue(_ context.Context, state AgentState) (string, error) {
	if len(state.Messages) == 0 {
		return compose.END, nil
	}
	switch t := Classify(state.Messages[len(state.Messages)-1]).(type) {
	case AssistantTurn:
		if len(t.Calls) > 0 {
			return NodeTools, nil
		}
		return compose.END, nil
	case UserTurn, ToolResultTurn, SystemTurn:
		return compose.END, nil
	default:
		return compose.END, nil
	}
}
