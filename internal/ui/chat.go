// Package ui 定义交互式对话界面与 Agent 之间的接口，并提供控制台实现。
package ui

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

// ChatBackend 通常是 agent.BuildGraph 返回的 Runnable
type ChatBackend interface {
	Invoke(ctx context.Context, state agent.AgentState, opts ...compose.Option) (agent.AgentState, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, initial agent.AgentState, opts ChatOptions) error
}

type ChatOptions struct {
	// AgentName 用于界面标题
	AgentName string
}

func DefaultInitialState() agent.AgentState {
	return agent.AgentState{
		Messages: nil,
		Context:  map[string]interface{}{},
	}
}

// Ask 以 query 发起一轮对话。每次查询使用新的 TraceID，出错时返回原状态。
func Ask(ctx context.Context, backend ChatBackend, state agent.AgentState, query string) (agent.AgentState, error) {
	ctx, _ = agent.NewTrace(ctx)
	state.UserQuery = query
	next, err := backend.Invoke(ctx, state)
	if err != nil {
		return state, err
	}
	return next, nil
}
