package ui

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

// ConsoleChatUI 是逐行读写的终端对话界面，In/Out 必须设置
type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

const byeText = "已退出。"

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, initial agent.AgentState, opts ChatOptions) error {
	if u.In == nil || u.Out == nil {
		return errors.New("console ui: In and Out are required")
	}
	out := u.Out
	lines := bufio.NewReader(u.In)

	state := initial
	if state.Context == nil {
		state.Context = map[string]interface{}{}
	}
	name := cmp.Or(opts.AgentName, "GraphPilot")
	fmt.Fprintf(out, "进入 %s 对话模式。输入 exit/quit 退出。\n", name)

	for ctx.Err() == nil {
		fmt.Fprint(out, "你: ")
		query, ok, err := readQuery(lines)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out)
			break
		}
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, byeText)
			return nil
		}

		before := len(state.Messages)
		next, err := Ask(ctx, backend, state, query)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(out, "错误: %v\n\n", err)
			continue
		}
		state = next

		printToolResults(out, state.Messages[min(before, len(state.Messages)):])
		if !printLastAssistant(out, state.Messages) {
			fmt.Fprintln(out, "助手: (无最终回复)")
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, byeText)
	return nil
}

// readQuery 读一行输入；ok=false 表示输入已结束
func readQuery(r *bufio.Reader) (query string, ok bool, err error) {
	line, err := r.ReadString('\n')
	query = strings.TrimSpace(line)
	switch {
	case err == nil:
		return query, true, nil
	case errors.Is(err, io.EOF):
		// 最后一行没有换行符时仍然处理
		return query, query != "", nil
	default:
		return "", false, fmt.Errorf("读取输入失败: %w", err)
	}
}

// printToolResults 打印本轮新增的工具结果，每条只显示首行
func printToolResults(w io.Writer, messages []*schema.Message) {
	for _, msg := range messages {
		t, ok := agent.Classify(msg).(agent.ToolResultTurn)
		if !ok {
			continue
		}
		first, _, _ := strings.Cut(strings.TrimSpace(t.Content), "\n")
		fmt.Fprintf(w, "  [tool %s] %s\n", msg.ToolName, first)
	}
}

func printLastAssistant(w io.Writer, messages []*schema.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != schema.Assistant {
			continue
		}
		fmt.Fprintf(w, "助手: %s\n", cmp.Or(strings.TrimSpace(msg.Content), "(无文本输出)"))
		return true
	}
	return false
}
