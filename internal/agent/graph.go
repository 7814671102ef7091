package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const (
	NodeInput     = "input_node"
	NodeChatModel = "chat_model_node"
	NodeTools     = "tools_node"

	DefaultMaxSteps = 25
)

// Definition 描述一个 Agent：系统提示词、工具集以及可选的钩子
type Definition struct {
	Name         string
	SystemPrompt string
	Tools        []tool.BaseTool

	// Sequential 为 true 时同一轮的多个工具调用按顺序执行
	Sequential bool

	// AutoTrigger 在输入为空时生成初始消息；为 nil 时空输入会报 ErrEmptyInput
	AutoTrigger func() []*schema.Message

	// AfterTools 在每轮工具结果追加后调用，用于回写派生状态
	AfterTools func(ctx context.Context, state *AgentState)
}

type Options struct {
	// MaxSteps 为 Graph 的最大运行步数，超出后调用以错误结束
	MaxSteps int
	// Audit 不为空时所有工具调用都会写审计记录
	Audit AuditStore
}

// BuildGraph 构建 Agent 的处理流程图
func BuildGraph(ctx context.Context, cm model.ToolCallingChatModel, def Definition, opts Options) (compose.Runnable[AgentState, AgentState], error) {
	if cm == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if len(def.Tools) == 0 {
		return nil, fmt.Errorf("agent %s has no tools", def.Name)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	// 审计在内层，错误捕获在外层：失败也会被记录，然后再转换为结果文本
	tools := make([]tool.BaseTool, 0, len(def.Tools))
	for _, t := range def.Tools {
		tools = append(tools, wrapSafe(wrapWithAudit(t, opts.Audit, def.Name)))
	}

	toolsInfo, err := GetToolsInfo(ctx, tools)
	if err != nil {
		return nil, err
	}
	toolCallingModel, err := cm.WithTools(toolsInfo)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}

	tn, err := NewToolsNode(ctx, tools, def.Sequential)
	if err != nil {
		return nil, fmt.Errorf("create tools node failed: %w", err)
	}

	template := NewChatTemplate(def.SystemPrompt)

	g := compose.NewGraph[AgentState, AgentState]()

	if err := g.AddLambdaNode(NodeInput, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return InputNode(ctx, state, def.AutoTrigger)
	})); err != nil {
		return nil, err
	}

	if err := g.AddLambdaNode(NodeChatModel, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return ChatModelNode(ctx, state, toolCallingModel, template)
	})); err != nil {
		return nil, err
	}

	if err := g.AddLambdaNode(NodeTools, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		inputMsg, err := ConvertStateToToolsInput(ctx, state)
		if err != nil {
			return state, err
		}

		outputs, err := tn.Invoke(ctx, inputMsg)
		if err != nil {
			return state, err
		}

		next, err := ConvertToolsOutputToState(ctx, state, outputs)
		if err != nil {
			return state, err
		}
		if def.AfterTools != nil {
			def.AfterTools(ctx, &next)
		}
		return next, nil
	})); err != nil {
		return nil, err
	}

	// Start -> Input -> ChatModel
	if err := g.AddEdge(compose.START, NodeInput); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeInput, NodeChatModel); err != nil {
		return nil, err
	}

	// ChatModel -> Tools OR End
	if err := g.AddBranch(NodeChatModel, compose.NewGraphBranch(ShouldContinue, map[string]bool{
		NodeTools:   true,
		compose.END: true,
	})); err != nil {
		return nil, err
	}

	// Tools -> ChatModel (Loop back)
	if err := g.AddEdge(NodeTools, NodeChatModel); err != nil {
		return nil, err
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName(def.Name),
		compose.WithMaxRunSteps(opts.MaxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %s graph failed: %w", def.Name, err)
	}
	return runnable, nil
}

// GetToolsInfo 收集工具的 ToolInfo，用于绑定到 ChatModel
func GetToolsInfo(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		toolInfos = append(toolInfos, info)
	}
	return toolInfos, nil
}
