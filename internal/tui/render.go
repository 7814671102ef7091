package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

const toolTailLines = 12

var (
	colorUser      = lipgloss.Color("205")
	colorAssistant = lipgloss.Color("63")
	colorMuted     = lipgloss.Color("240")
	colorOK        = lipgloss.Color("42")
	colorFail      = lipgloss.Color("196")
)

func (m chatModel) View() string {
	title := "GraphPilot"
	if m.opts.AgentName != "" {
		title += " · " + m.opts.AgentName
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)

	input := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(max(1, m.input.Width+2)).
		Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), input, m.footerView())
}

func (m chatModel) footerView() string {
	left := "Enter 发送 | PgUp/PgDn 滚动 | Ctrl+C 退出"
	right := m.statusText()
	if m.busy {
		right = m.spinner.View() + " Thinking..."
	}
	gap := max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	return lipgloss.NewStyle().Width(m.width).Padding(0, 1).Render(left + strings.Repeat(" ", gap) + right)
}

// statusText 显示上一轮调用的 LLM 次数与测试环境状态
func (m chatModel) statusText() string {
	if m.state.LLMCalls == 0 {
		return ""
	}
	status := fmt.Sprintf("llm calls: %d", m.state.LLMCalls)
	if m.state.EnvInitialized {
		status += " | env ready"
	}
	return status
}

func (m chatModel) renderChat() string {
	var blocks []string
	for i, msg := range m.state.Messages {
		if block := m.renderMessage(i, msg); block != "" {
			blocks = append(blocks, block)
		}
	}
	if m.busy && m.pending != "" {
		blocks = append(blocks, m.userBubble(m.pending))
	}
	if m.lastErr != nil {
		blocks = append(blocks, m.bubble(colorFail, "发生错误："+m.lastErr.Error()).Foreground(colorFail).Render())
	}
	return strings.Join(blocks, "\n\n")
}

func (m chatModel) renderMessage(i int, msg *schema.Message) string {
	switch t := agent.Classify(msg).(type) {
	case agent.UserTurn:
		return m.userBubble(t.Content)
	case agent.AssistantTurn:
		var parts []string
		content := t.Content
		if m.reveal.idx == i && m.reveal.active() {
			content = m.reveal.full[:m.reveal.pos]
		}
		if strings.TrimSpace(content) != "" {
			parts = append(parts, m.assistantBubble(content))
		}
		for _, c := range t.Calls {
			parts = append(parts, lipgloss.NewStyle().Foreground(colorMuted).
				Render(fmt.Sprintf("→ %s %s", c.Function.Name, c.Function.Arguments)))
		}
		return strings.Join(parts, "\n")
	case agent.ToolResultTurn:
		return m.toolBubble(msg.ToolName, t.Content)
	default:
		return ""
	}
}

func (m chatModel) contentWidth() int {
	if m.width <= 0 {
		return 72
	}
	return max(20, m.width-8)
}

// bubble 是所有消息共用的圆角边框样式，宽度按内容收缩
func (m chatModel) bubble(border lipgloss.Color, body string) lipgloss.Style {
	w := min(m.contentWidth(), max(10, widestLine(body)))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(w + 2).
		SetString(body)
}

func (m chatModel) userBubble(content string) string {
	b := m.bubble(colorUser, content).Render()
	return lipgloss.NewStyle().Width(max(m.width, lipgloss.Width(b))).Align(lipgloss.Right).Render(b)
}

func (m chatModel) assistantBubble(content string) string {
	md := content
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			md = strings.Trim(rendered, "\n")
		}
	}
	return m.bubble(colorAssistant, md).Render()
}

// toolBubble 根据结果首行着色，长输出只保留末尾几行
func (m chatModel) toolBubble(name, content string) string {
	label := "TOOL"
	if name != "" {
		label += " " + name
	}
	body := strings.TrimRight(content, "\n")
	if strings.TrimSpace(body) == "" {
		body = "(无输出)"
	}
	body = tailLines(body, toolTailLines)

	border := colorMuted
	switch toolOutcome(content) {
	case outcomeOK:
		border = colorOK
	case outcomeFailed:
		border = colorFail
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(border).Render(label)
	return m.bubble(border, header+"\n"+body).Foreground(lipgloss.Color("245")).Render()
}

type outcome int

const (
	outcomeUnknown outcome = iota
	outcomeOK
	outcomeFailed
)

// toolOutcome 识别 testrunner 结果的首行 (exit_code / timed_out) 和工具错误
func toolOutcome(content string) outcome {
	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	switch {
	case strings.HasPrefix(first, "error:"), strings.HasPrefix(first, "timed_out:"):
		return outcomeFailed
	case first == "exit_code: 0":
		return outcomeOK
	case strings.HasPrefix(first, "exit_code:"):
		return outcomeFailed
	}
	return outcomeUnknown
}

func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	hidden := len(lines) - n
	return fmt.Sprintf("… %d lines hidden\n%s", hidden, strings.Join(lines[hidden:], "\n"))
}

func widestLine(s string) int {
	w := 0
	for _, line := range strings.Split(s, "\n") {
		w = max(w, lipgloss.Width(strings.TrimRight(line, " ")))
	}
	return w
}
