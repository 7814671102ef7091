package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Input 是一次调用的外部输入格式: {"messages":[{"role":"user","content":"..."}]}
// 空对象 {} 表示没有消息，由 Agent 自己决定如何处理 (自动触发或报错)
type Input struct {
	Messages []InputMessage `json:"messages"`
}

type InputMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// DecodeInput 解析调用输入并转换为初始 AgentState
func DecodeInput(data []byte) (AgentState, error) {
	state := AgentState{Context: map[string]interface{}{}}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return state, nil
	}

	var in Input
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return state, fmt.Errorf("decode input: %w", err)
	}

	for i, m := range in.Messages {
		msg, err := m.toMessage()
		if err != nil {
			return state, fmt.Errorf("messages[%d]: %w", i, err)
		}
		state.Messages = append(state.Messages, msg)
	}
	return state, nil
}

func (m InputMessage) toMessage() (*schema.Message, error) {
	switch strings.ToLower(strings.TrimSpace(m.Role)) {
	case "user", "human":
		return schema.UserMessage(m.Content), nil
	case "assistant", "ai":
		return schema.AssistantMessage(m.Content, nil), nil
	case "system":
		return schema.SystemMessage(m.Content), nil
	case "tool":
		if m.ToolCallID == "" {
			return nil, fmt.Errorf("tool message requires tool_call_id")
		}
		return schema.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return nil, fmt.Errorf("unknown role %q", m.Role)
	}
}

// Output 是一次调用的最终输出
type Output struct {
	Messages       []OutputMessage `json:"messages"`
	LLMCalls       int             `json:"llm_calls"`
	EnvInitialized bool            `json:"env_initialized,omitempty"`
	LastTestOutput string          `json:"last_test_output,omitempty"`
}

type OutputMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	ToolCalls  []OutputCall `json:"tool_calls,omitempty"`
}

type OutputCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// EncodeOutput 将最终状态转换为输出格式
func EncodeOutput(state AgentState) Output {
	out := Output{
		Messages:       make([]OutputMessage, 0, len(state.Messages)),
		LLMCalls:       state.LLMCalls,
		EnvInitialized: state.EnvInitialized,
		LastTestOutput: state.LastTestOutput,
	}
	for _, m := range state.Messages {
		if m == nil {
			continue
		}
		om := OutputMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, OutputCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Messages = append(out.Messages, om)
	}
	return out
}
