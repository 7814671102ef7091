package agent

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// EnvironmentPromptSuffix 附加在每个 Agent 的系统提示词之后
// 包含动态变量: {time}, {os}, {arch}
const EnvironmentPromptSuffix = `

当前运行环境:
- 操作系统: {os}
- 架构: {arch}
- 系统时间: {time}`

// NewChatTemplate 创建一个 ChatTemplate 实例
// 组装顺序为 System + History，History 中已包含最新的用户消息
func NewChatTemplate(systemPrompt string) prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt+EnvironmentPromptSuffix),
		// "history" 是参数名，true 表示该字段是可选的
		schema.MessagesPlaceholder("history", true),
	)
}
