// Package agenttest 提供测试用的脚本化 ChatModel。
package agenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.ToolCallingChatModel = (*ScriptedModel)(nil)

// Turn 根据本轮输入生成一条助手消息
type Turn func(input []*schema.Message) (*schema.Message, error)

// ScriptedModel 按顺序返回预设的回复，并记录每次调用的输入
type ScriptedModel struct {
	mu    sync.Mutex
	turns []Turn
	next  int

	Inputs [][]*schema.Message
	Tools  []*schema.ToolInfo
}

func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

func (m *ScriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Inputs = append(m.Inputs, input)
	if m.next >= len(m.turns) {
		return nil, errors.New("scripted model: no turns left")
	}
	turn := m.turns[m.next]
	m.next++
	return turn(input)
}

func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 记录绑定的工具并返回自身，便于测试读取调用记录
func (m *ScriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tools = tools
	return m, nil
}

// CallCount 返回 Generate 被调用的次数
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Inputs)
}

// Reply 返回纯文本回复
func Reply(content string) Turn {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	}
}

// CallTools 返回一条带工具调用的回复
func CallTools(calls ...schema.ToolCall) Turn {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", calls), nil
	}
}

// Fail 让本轮模型调用失败
func Fail(err error) Turn {
	return func([]*schema.Message) (*schema.Message, error) {
		return nil, err
	}
}

// ToolCall 构造一个工具调用请求
func ToolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{
		ID:   id,
		Type: "function",
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// ToolResults 返回输入中最后一段连续的工具结果消息
func ToolResults(input []*schema.Message) []*schema.Message {
	end := len(input)
	start := end
	for start > 0 && input[start-1].Role == schema.Tool {
		start--
	}
	return input[start:end]
}
