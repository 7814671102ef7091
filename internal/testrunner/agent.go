package testrunner

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

const Name = "testrunner"

// AutoRunInstruction 是空输入 (定时任务) 时注入的第一条用户消息
const AutoRunInstruction = "Initialize the test environment, run the full test suite, and report how many tests passed and failed together with the most important failures."

const systemPrompt = `你是一个负责运行测试的助手，所有操作都发生在一个持久的测试容器里。
可用工具：
- initialize_environment：创建容器、克隆仓库、安装依赖。可以重复调用，已就绪时直接返回。
- run_test_suite：运行测试，path 参数可选，用于只运行某个文件或目录。
- execute_shell_command：在仓库目录下执行任意命令，用于查看文件或排查失败原因。

规则：
1. 运行测试或执行命令之前必须先成功调用 initialize_environment；如果工具返回 not initialized，先初始化再重试。
2. 工具一次只做一件事，按顺序调用，不要在同一轮里同时初始化和运行测试。
3. 结果首行 exit_code 为 0 表示成功；timed_out 表示命令超过时间限制被终止。
4. 最后用简短的总结回答：通过和失败的数量、主要的失败原因。不要编造没有看到的输出。`

// Definition 返回测试 Agent 的定义。工具按顺序执行，每轮工具执行后把环境状态同步到 AgentState。
func Definition(env *Environment) agent.Definition {
	return agent.Definition{
		Name:         Name,
		SystemPrompt: systemPrompt,
		Tools:        GetTools(env),
		Sequential:   true,
		AutoTrigger: func() []*schema.Message {
			return []*schema.Message{schema.UserMessage(AutoRunInstruction)}
		},
		AfterTools: func(_ context.Context, state *agent.AgentState) {
			state.EnvInitialized = env.Ready()
			state.LastTestOutput = env.LastTestOutput()
		},
	}
}
