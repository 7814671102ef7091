package calculator

import "github.com/wwwzy/GraphPilot/internal/agent"

const Name = "calculator"

const systemPrompt = `你是一个负责做算术的助手。
你可以使用 add、multiply、divide 三个工具，每个工具接收两个数字参数 a 和 b。
凡是涉及计算的问题都必须调用工具得到结果，不要自己心算。
复杂的表达式可以拆成多次工具调用；同一轮中相互独立的计算可以一起调用。
如果工具返回 error，向用户说明原因，不要编造结果。
最后用一句简短的话给出答案。`

// Definition 返回计算器 Agent 的定义；没有自动触发序列，空输入会直接报错
func Definition() agent.Definition {
	return agent.Definition{
		Name:         Name,
		SystemPrompt: systemPrompt,
		Tools:        GetTools(),
	}
}
