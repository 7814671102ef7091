// Package tui 提供基于 bubbletea 的全屏对话界面。
package tui

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/ui"
)

type ChatUI struct{}

// Run 运行全屏界面。期间默认 logger 被静音，退出后恢复。
func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, initial agent.AgentState, opts ui.ChatOptions) error {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer slog.SetDefault(prev)

	p := tea.NewProgram(newChatModel(ctx, backend, initial, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type backendResultMsg struct {
	state     agent.AgentState
	err       error
	prevCount int
}

type revealTickMsg struct{}
type cancelMsg struct{}

// reveal 把新到的助手回复分段显示出来
type reveal struct {
	idx  int
	pos  int
	full string
}

func (r reveal) active() bool { return r.idx >= 0 && r.pos < len(r.full) }

// advance 前进 n 个字节并对齐到 UTF-8 字符边界
func (r reveal) advance(n int) reveal {
	r.pos = min(len(r.full), r.pos+n)
	for r.pos < len(r.full) && !utf8.RuneStart(r.full[r.pos]) {
		r.pos++
	}
	return r
}

const revealStep = 32

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	opts    ui.ChatOptions

	state agent.AgentState

	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	busy       bool
	followTail bool

	// pending 是正在处理的用户输入，成功后由返回的状态接管
	pending string
	lastErr error
	reveal  reveal

	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, initial agent.AgentState, opts ui.ChatOptions) chatModel {
	state := initial
	if state.Context == nil {
		state.Context = map[string]interface{}{}
	}

	s := spinner.New()
	s.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = "输入消息，回车发送"
	ti.Prompt = ""
	ti.Focus()

	return chatModel{
		ctx:        ctx,
		backend:    backend,
		opts:       opts,
		state:      state,
		viewport:   viewport.New(0, 0),
		input:      ti,
		spinner:    s,
		followTail: true,
		reveal:     reveal{idx: -1},
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case backendResultMsg:
		return m.handleResult(msg)

	case revealTickMsg:
		if !m.reveal.active() {
			return m, nil
		}
		m.reveal = m.reveal.advance(revealStep)
		m.refresh()
		if m.reveal.active() {
			return m, revealTick()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) resize(width, height int) {
	m.width = width
	m.height = height

	// 标题 1 行，输入框 3 行，底栏 1 行
	m.viewport.Width = width
	m.viewport.Height = max(1, height-5)
	m.input.Width = max(10, width-4)

	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.contentWidth()),
	); err == nil {
		m.renderer = r
	}
	m.refresh()
}

func (m chatModel) handleResult(msg backendResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.pending = ""
	m.followTail = true

	if msg.err != nil {
		// 失败时状态不变，错误只显示不进入历史
		m.lastErr = msg.err
		m.refresh()
		return m, nil
	}

	m.lastErr = nil
	m.state = msg.state
	m.reveal = m.nextReveal(msg.prevCount)
	m.refresh()
	if m.reveal.active() {
		return m, revealTick()
	}
	return m, nil
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "pgup", "pageup":
		m.viewport.PageUp()
		m.followTail = false
		return m, nil
	case "pgdown", "pagedown":
		m.viewport.PageDown()
		m.followTail = m.viewport.AtBottom()
		return m, nil
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit 发起新一轮调用；上一轮未结束时忽略
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.busy || text == "" {
		return m, nil
	}
	switch strings.ToLower(text) {
	case "exit", "quit":
		return m, tea.Quit
	}

	m.input.SetValue("")
	m.pending = text
	m.lastErr = nil
	m.busy = true
	m.followTail = true
	m.refresh()

	return m, tea.Batch(m.spinner.Tick, invokeBackend(m.ctx, m.backend, m.state, text))
}

func invokeBackend(ctx context.Context, backend ui.ChatBackend, state agent.AgentState, query string) tea.Cmd {
	prev := len(state.Messages)
	return func() tea.Msg {
		next, err := ui.Ask(ctx, backend, state, query)
		return backendResultMsg{state: next, err: err, prevCount: prev}
	}
}

func revealTick() tea.Cmd {
	return tea.Tick(45*time.Millisecond, func(time.Time) tea.Msg { return revealTickMsg{} })
}

// nextReveal 找到本轮新增的第一条有文本的助手回复
func (m chatModel) nextReveal(from int) reveal {
	for i := max(from, 0); i < len(m.state.Messages); i++ {
		if t, ok := agent.Classify(m.state.Messages[i]).(agent.AssistantTurn); ok && strings.TrimSpace(t.Content) != "" {
			return reveal{idx: i, full: t.Content}.advance(revealStep)
		}
	}
	return reveal{idx: -1}
}

func (m *chatModel) refresh() {
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderChat())
	if m.followTail {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(offset)
}
