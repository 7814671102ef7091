package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/calculator"
	"github.com/wwwzy/GraphPilot/internal/docker"
	"github.com/wwwzy/GraphPilot/internal/llm"
	"github.com/wwwzy/GraphPilot/internal/storage"
	"github.com/wwwzy/GraphPilot/internal/testrunner"
)

// newEnvironment 创建指向 docker daemon 的测试环境句柄
func newEnvironment(ctx context.Context) (*testrunner.Environment, error) {
	version, err := docker.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("连接 docker 失败: %w", err)
	}
	slog.Debug("docker daemon reachable", "api_version", version)

	return testrunner.NewEnvironment(cfg.Runner, docker.NewRuntime(),
		testrunner.WithTransitionHook(func(from, to testrunner.Status) {
			slog.Info("test environment status", "from", from, "to", to)
		}),
	)
}

// buildAgent 校验配置并构建指定 Agent 的 Graph；store 为 nil 时不写审计记录
func buildAgent(ctx context.Context, name string, store *storage.Storage) (compose.Runnable[agent.AgentState, agent.AgentState], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var def agent.Definition
	switch name {
	case calculator.Name:
		def = calculator.Definition()
	case testrunner.Name:
		env, err := newEnvironment(ctx)
		if err != nil {
			return nil, err
		}
		def = testrunner.Definition(env)
	default:
		return nil, fmt.Errorf("未知 agent: %s (支持: %s, %s)", name, calculator.Name, testrunner.Name)
	}

	cm, err := llm.NewChatModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("初始化模型失败: %w", err)
	}

	opts := agent.Options{MaxSteps: cfg.Agent.MaxSteps}
	if store != nil {
		opts.Audit = store
	}
	runnable, err := agent.BuildGraph(ctx, cm, def, opts)
	if err != nil {
		return nil, fmt.Errorf("构建 Agent Graph 失败: %w", err)
	}
	return runnable, nil
}

// openStore 打开审计数据库；失败时只告警，Agent 在没有审计的情况下继续运行
func openStore(ctx context.Context) *storage.Storage {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		slog.Warn("open storage failed, audit disabled", "path", cfg.Storage.Path, "error", err)
		return nil
	}
	return store
}
