package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// safeTool 在 ToolsNode 边界上把工具错误转换为结果文本，
// 这样一次失败不会中断整个调用，模型在下一轮可以看到错误。
type safeTool struct {
	impl tool.InvokableTool
}

func wrapSafe(t tool.BaseTool) tool.BaseTool {
	if it, ok := t.(tool.InvokableTool); ok {
		return &safeTool{impl: it}
	}
	return t
}

func (t *safeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.impl.Info(ctx)
}

func (t *safeTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (out string, err error) {
	name := "unknown"
	if info, infoErr := t.impl.Info(ctx); infoErr == nil && info != nil {
		name = info.Name
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "tool", name, "panic", r)
			out, err = ErrorResult(fmt.Errorf("tool %s panicked: %v", name, r)), nil
		}
	}()

	result, runErr := t.impl.InvokableRun(ctx, argumentsInJSON, opts...)
	if runErr != nil {
		slog.Debug("tool returned error", "tool", name, "error", runErr)
		return ErrorResult(runErr), nil
	}
	return result, nil
}

// ErrorResult 是工具失败时回填给模型的文本格式
func ErrorResult(err error) string {
	return "error: " + err.Error()
}

// NewToolsNode 创建 Eino 原生 ToolsNode，所有工具都经过错误捕获包装
func NewToolsNode(ctx context.Context, tools []tool.BaseTool, sequential bool) (*compose.ToolsNode, error) {
	return compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tools,
		ExecuteSequentially: sequential,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			return ErrorResult(fmt.Errorf("unknown tool %q", name)), nil
		},
	})
}

// ConvertStateToToolsInput 将 AgentState 转换为 ToolsNode 所需的输入 (*schema.Message)
func ConvertStateToToolsInput(_ context.Context, state AgentState) (*schema.Message, error) {
	if len(state.NextStepToolCalls) == 0 {
		return nil, fmt.Errorf("tools node reached without pending tool calls")
	}
	return &schema.Message{
		Role:      schema.Assistant,
		ToolCalls: state.NextStepToolCalls,
	}, nil
}

// alignToolResults 按请求顺序重排结果，每个请求恰好对应一条结果。
// 同一 ID (含空 ID) 的多条结果按出现顺序依次分配给同 ID 的请求。
func alignToolResults(calls []schema.ToolCall, outputs []*schema.Message) []*schema.Message {
	queues := make(map[string][]*schema.Message, len(outputs))
	for _, out := range outputs {
		if out != nil {
			queues[out.ToolCallID] = append(queues[out.ToolCallID], out)
		}
	}

	aligned := make([]*schema.Message, 0, len(calls))
	for _, call := range calls {
		if q := queues[call.ID]; len(q) > 0 {
			aligned = append(aligned, q[0])
			queues[call.ID] = q[1:]
			continue
		}
		aligned = append(aligned, schema.ToolMessage(
			ErrorResult(fmt.Errorf("no result produced for tool call %s", call.ID)),
			call.ID,
			schema.WithToolName(call.Function.Name),
		))
	}
	return aligned
}

// ConvertToolsOutputToState 将 ToolsNode 的输出 ([]*schema.Message) 追加回 AgentState
func ConvertToolsOutputToState(_ context.Context, state AgentState, outputs []*schema.Message) (AgentState, error) {
	outputs = alignToolResults(state.NextStepToolCalls, outputs)

	state.LatestToolOutputs = outputs
	state.Messages = appendMessages(state.Messages, outputs...)
	state.NextStepToolCalls = nil

	return state, nil
}
