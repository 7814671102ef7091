package agent

import (
	"github.com/cloudwego/eino/schema"
)

// AgentState 定义了在 Graph 中流转的状态
type AgentState struct {
	// 历史对话消息 (包含 User, System, AI, Tool 消息)，单次调用内只追加不修改
	Messages []*schema.Message `json:"messages"`

	// 本次调用中 ChatModel 被调用的次数
	LLMCalls int `json:"llm_calls"`

	// 显式信号字段，用于 Graph 分支判断
	NextStepToolCalls []schema.ToolCall `json:"tool_calls"`   // 本轮 LLM 生成的工具调用
	LatestToolOutputs []*schema.Message `json:"tool_outputs"` // 本轮工具执行后的结果消息 (Role=Tool)

	// 用户最后的指令
	UserQuery string `json:"user_query"`

	// 以下两个字段只由 testrunner 的工具回写
	EnvInitialized bool   `json:"env_initialized"`
	LastTestOutput string `json:"last_test_output"`

	// 附加上下文 (如 trace id 等)
	Context map[string]interface{} `json:"context"`
}

// Turn 是对一条消息的分类视图，便于对路由做穷尽判断
type Turn interface {
	turn()
}

type UserTurn struct {
	Content string
}

type AssistantTurn struct {
	Content string
	Calls   []schema.ToolCall
}

type ToolResultTurn struct {
	CallID  string
	Content string
}

type SystemTurn struct {
	Content string
}

func (UserTurn) turn()       {}
func (AssistantTurn) turn()  {}
func (ToolResultTurn) turn() {}
func (SystemTurn) turn()     {}

// Classify 将 eino 消息映射为 Turn；nil 或未知角色返回 nil
func Classify(m *schema.Message) Turn {
	if m == nil {
		return nil
	}
	switch m.Role {
	case schema.User:
		return UserTurn{Content: m.Content}
	case schema.Assistant:
		return AssistantTurn{Content: m.Content, Calls: m.ToolCalls}
	case schema.Tool:
		return ToolResultTurn{CallID: m.ToolCallID, Content: m.Content}
	case schema.System:
		return SystemTurn{Content: m.Content}
	default:
		return nil
	}
}

// LastAssistantContent 返回最后一条助手消息的文本
func LastAssistantContent(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if t, ok := Classify(messages[i]).(AssistantTurn); ok {
			return t.Content
		}
	}
	return ""
}
