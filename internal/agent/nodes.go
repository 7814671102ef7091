package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyInput 表示调用既没有消息也没有查询，且 Agent 没有定义自动触发序列
var ErrEmptyInput = errors.New("input has no messages")

// ChatModelNode 是 Graph 中的决策节点，负责：
// 1. 用 ChatTemplate 组装 System + History
// 2. 调用 ChatModel 获取回复 (一次网络调用，失败直接返回，不在此处重试)
// 3. 追加 AI Message 并填充 NextStepToolCalls
func ChatModelNode(ctx context.Context, state AgentState, chatModel model.BaseChatModel, template prompt.ChatTemplate) (AgentState, error) {
	inputVars := map[string]any{
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
		"time":    time.Now().Format(time.RFC3339),
		"history": state.Messages,
	}

	messages, err := template.Format(ctx, inputVars)
	if err != nil {
		return state, fmt.Errorf("format chat template failed: %w", err)
	}

	// 使用 Generate 而不是 Stream，因为需要完整的 ToolCalls 信息来做路由决策
	aiMsg, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return state, fmt.Errorf("chat model generate failed: %w", err)
	}
	if aiMsg == nil {
		return state, errors.New("chat model returned no message")
	}

	state.Messages = appendMessages(state.Messages, aiMsg)
	state.LLMCalls++
	state.NextStepToolCalls = aiMsg.ToolCalls

	// 上一轮的 ToolOutputs 已经在 ToolsNode 中追加到了 Messages，这里只清理信号字段
	state.LatestToolOutputs = nil

	return state, nil
}

// InputNode 处理用户输入，构建初始状态
func InputNode(_ context.Context, state AgentState, autoTrigger func() []*schema.Message) (AgentState, error) {
	if state.Messages == nil {
		state.Messages = make([]*schema.Message, 0)
	}
	if state.Context == nil {
		state.Context = map[string]interface{}{}
	}

	// 调用方可能已经把 UserQuery 放入了 Messages，这里做个检查
	if state.UserQuery != "" {
		isLastUser := false
		if len(state.Messages) > 0 {
			if t, ok := Classify(state.Messages[len(state.Messages)-1]).(UserTurn); ok && t.Content == state.UserQuery {
				isLastUser = true
			}
		}
		if !isLastUser {
			state.Messages = appendMessages(state.Messages, schema.UserMessage(state.UserQuery))
		}
	}

	// 空输入：交给 Agent 的自动触发序列
	if len(state.Messages) == 0 {
		if autoTrigger == nil {
			return state, ErrEmptyInput
		}
		state.Messages = appendMessages(state.Messages, autoTrigger()...)
		if len(state.Messages) == 0 {
			return state, ErrEmptyInput
		}
	}

	// 清理上一轮的临时状态
	state.NextStepToolCalls = nil
	state.LatestToolOutputs = nil
	state.LLMCalls = 0

	return state, nil
}

func appendMessages(msgs []*schema.Message, more ...*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs)+len(more))
	out = append(out, msgs...)
	return append(out, more...)
}
