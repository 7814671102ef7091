package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/ui"
)

type stubBackend struct{}

func (stubBackend) Invoke(_ context.Context, state agent.AgentState, _ ...compose.Option) (agent.AgentState, error) {
	return state, nil
}

func newTestModel() chatModel {
	m := newChatModel(context.Background(), stubBackend{}, ui.DefaultInitialState(), ui.ChatOptions{AgentName: "testrunner"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(chatModel)
}

func TestChatModel_BackendResult(t *testing.T) {
	m := newTestModel()
	m.busy = true

	state := ui.DefaultInitialState()
	state.Messages = []*schema.Message{
		schema.UserMessage("run the tests"),
		schema.AssistantMessage("All 42 tests passed.", nil),
	}
	state.LLMCalls = 3
	state.EnvInitialized = true

	next, _ := m.Update(backendResultMsg{state: state, prevCount: 0})
	got := next.(chatModel)

	assert.False(t, got.busy)
	assert.Len(t, got.state.Messages, 2)
	assert.Equal(t, 1, got.reveal.idx)
	assert.Equal(t, "llm calls: 3 | env ready", got.statusText())
	assert.Contains(t, got.View(), "testrunner")
}

func TestChatModel_BackendErrorKeepsState(t *testing.T) {
	m := newTestModel()
	m.state.Messages = []*schema.Message{schema.UserMessage("hi"), schema.AssistantMessage("hello", nil)}
	m.busy = true

	next, _ := m.Update(backendResultMsg{err: errors.New("rate limited")})
	got := next.(chatModel)

	assert.Len(t, got.state.Messages, 2)
	assert.EqualError(t, got.lastErr, "rate limited")
	assert.Contains(t, got.renderChat(), "rate limited")
}

func TestChatModel_SubmitIgnoredWhileBusy(t *testing.T) {
	m := newTestModel()
	m.busy = true
	m.input.SetValue("again")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "again", next.(chatModel).input.Value())
}

func TestRevealAdvanceRuneBoundary(t *testing.T) {
	r := reveal{idx: 0, full: "测试通过"}.advance(4)
	// 每个汉字 3 字节，4 字节需要对齐到第 2 个字符末尾
	assert.Equal(t, 6, r.pos)
	assert.True(t, r.active())

	r = r.advance(100)
	assert.False(t, r.active())
}

func TestToolOutcome(t *testing.T) {
	assert.Equal(t, outcomeOK, toolOutcome("exit_code: 0\n3 passed"))
	assert.Equal(t, outcomeFailed, toolOutcome("exit_code: 1\n1 failed"))
	assert.Equal(t, outcomeFailed, toolOutcome("timed_out: true (limit 5m0s)\n..."))
	assert.Equal(t, outcomeFailed, toolOutcome("error: division by zero"))
	assert.Equal(t, outcomeUnknown, toolOutcome("7"))
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, "a\nb", tailLines("a\nb", 3))

	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	got := tailLines(strings.Join(lines, "\n"), 5)
	require.True(t, strings.HasPrefix(got, "… 15 lines hidden\n"))
	assert.Equal(t, 6, strings.Count(got, "\n")+1)
}
