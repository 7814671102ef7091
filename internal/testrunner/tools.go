package testrunner

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

const (
	ToolInitializeEnvironment = "initialize_environment"
	ToolRunTestSuite          = "run_test_suite"
	ToolExecuteShellCommand   = "execute_shell_command"
)

// InitializeEnvironmentTool 创建容器、克隆仓库并安装依赖，可重复调用
type InitializeEnvironmentTool struct {
	env *Environment
}

func (t *InitializeEnvironmentTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return agent.NewToolInfo(ToolInitializeEnvironment,
		"Create the test container if needed, clone the repository and install its dependencies. Safe to call repeatedly."), nil
}

func (t *InitializeEnvironmentTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	if err := agent.DecodeArgs(argumentsInJSON, nil, nil); err != nil {
		return "", err
	}
	return t.env.Initialize(ctx)
}

var runTestSuiteParams = []agent.Param{
	{Name: "path", Desc: "Optional test file or directory relative to the repository root. Empty runs the whole suite.", Type: schema.String},
}

// RunTestSuiteTool 执行测试命令，结果同时记录为最近一次测试输出
type RunTestSuiteTool struct {
	env *Environment
}

func (t *RunTestSuiteTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return agent.NewToolInfo(ToolRunTestSuite,
		"Run the repository's test suite inside the environment, optionally limited to a path. Output is truncated to the tail.",
		runTestSuiteParams...), nil
}

func (t *RunTestSuiteTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := agent.DecodeArgs(argumentsInJSON, runTestSuiteParams, &in); err != nil {
		return "", err
	}
	res, err := t.env.RunTests(ctx, in.Path)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

var executeShellCommandParams = []agent.Param{
	{Name: "command", Desc: "Shell command to run with sh -c in the repository directory.", Type: schema.String, Required: true},
}

// ExecuteShellCommandTool 在环境中执行任意命令；除容器本身外没有其他隔离
type ExecuteShellCommandTool struct {
	env *Environment
}

func (t *ExecuteShellCommandTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return agent.NewToolInfo(ToolExecuteShellCommand,
		"Run an arbitrary shell command inside the test environment and return its combined output.",
		executeShellCommandParams...), nil
}

func (t *ExecuteShellCommandTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := agent.DecodeArgs(argumentsInJSON, executeShellCommandParams, &in); err != nil {
		return "", err
	}
	res, err := t.env.Exec(ctx, in.Command)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func GetTools(env *Environment) []tool.BaseTool {
	return []tool.BaseTool{
		&InitializeEnvironmentTool{env: env},
		&RunTestSuiteTool{env: env},
		&ExecuteShellCommandTool{env: env},
	}
}
