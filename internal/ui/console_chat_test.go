package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

type fakeBackend struct {
	traces []string
	fail   map[string]error
}

func (b *fakeBackend) Invoke(ctx context.Context, state agent.AgentState, _ ...compose.Option) (agent.AgentState, error) {
	b.traces = append(b.traces, agent.GetTraceID(ctx))
	if err := b.fail[state.UserQuery]; err != nil {
		return agent.AgentState{}, err
	}
	state.Messages = append(state.Messages,
		schema.UserMessage(state.UserQuery),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "add"}}}),
		schema.ToolMessage("7\nignored", "c1", schema.WithToolName("add")),
		schema.AssistantMessage("echo: "+state.UserQuery, nil),
	)
	return state, nil
}

func TestConsoleChatUI_Run(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{"bad": errors.New("rate limited")}}
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("hello\n\nbad\nagain\nquit\n"), Out: &out}

	err := u.Run(context.Background(), backend, DefaultInitialState(), ChatOptions{AgentName: "calculator"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "进入 calculator 对话模式")
	assert.Contains(t, text, "助手: echo: hello")
	assert.Contains(t, text, "[tool add] 7\n")
	assert.Contains(t, text, "错误: rate limited")
	assert.Contains(t, text, "助手: echo: again")
	assert.Contains(t, text, "已退出。")

	// 每次查询都有独立的 TraceID
	require.Len(t, backend.traces, 3)
	assert.NotEmpty(t, backend.traces[0])
	assert.NotEqual(t, backend.traces[0], backend.traces[2])
}

func TestConsoleChatUI_EOF(t *testing.T) {
	backend := &fakeBackend{}
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("last line"), Out: &out}

	require.NoError(t, u.Run(context.Background(), backend, DefaultInitialState(), ChatOptions{}))
	assert.Contains(t, out.String(), "助手: echo: last line")
	assert.Len(t, backend.traces, 1)
}

func TestConsoleChatUI_RequiresIO(t *testing.T) {
	u := &ConsoleChatUI{}
	assert.Error(t, u.Run(context.Background(), &fakeBackend{}, DefaultInitialState(), ChatOptions{}))
}
