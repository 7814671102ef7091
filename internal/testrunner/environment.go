// Package testrunner 管理一个持久的测试容器，并提供初始化、跑测试和执行命令三个工具。
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/wwwzy/GraphPilot/internal/docker"
	"mvdan.cc/sh/v3/syntax"
)

// Status 是测试环境的状态机：absent -> initializing -> ready
type Status string

const (
	StatusAbsent       Status = "absent"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
)

var (
	ErrNotInitialized  = errors.New("environment is not initialized")
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotInitializedError 在环境未就绪时调用 RunTests/Exec 返回
type NotInitializedError struct {
	Name   string
	Reason string
}

func (e *NotInitializedError) Error() string {
	msg := fmt.Sprintf("environment %q is not initialized; call initialize_environment first", e.Name)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *NotInitializedError) Is(target error) bool {
	return target == ErrNotInitialized
}

// Runtime 是 Environment 依赖的容器运行时，生产实现为 *docker.Runtime
type Runtime interface {
	Prepare(ctx context.Context, spec docker.ContainerSpec) error
	IsRunning(ctx context.Context, name string) (bool, error)
	Exec(ctx context.Context, name string, req docker.ExecRequest) (docker.ExecResult, error)
	Remove(ctx context.Context, name, volume string) error
}

var envLocks sync.Map

// lockFor 返回进程内按环境名共享的互斥锁，同名环境上的所有操作串行执行
func lockFor(name string) *sync.Mutex {
	m, _ := envLocks.LoadOrStore(name, &sync.Mutex{})
	return m.(*sync.Mutex)
}

type Option func(*Environment)

// WithTransitionHook 注册状态变化回调，回调在持有环境锁时同步调用
func WithTransitionHook(fn func(from, to Status)) Option {
	return func(e *Environment) {
		e.onTransition = fn
	}
}

// Environment 是持久测试容器的显式句柄
type Environment struct {
	cfg Config
	rt  Runtime
	op  *sync.Mutex

	mu             sync.RWMutex
	status         Status
	lastTestOutput string

	onTransition func(from, to Status)
}

func NewEnvironment(cfg Config, rt Runtime, opts ...Option) (*Environment, error) {
	if rt == nil {
		return nil, errors.New("runtime is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Environment{
		cfg:    cfg,
		rt:     rt,
		op:     lockFor(cfg.ContainerName),
		status: StatusAbsent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Environment) Name() string { return e.cfg.ContainerName }

func (e *Environment) Config() Config { return e.cfg }

func (e *Environment) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Environment) Ready() bool { return e.Status() == StatusReady }

func (e *Environment) LastTestOutput() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTestOutput
}

func (e *Environment) setStatus(to Status) {
	e.mu.Lock()
	from := e.status
	e.status = to
	e.mu.Unlock()

	if from == to {
		return
	}
	slog.Debug("environment status changed", "env", e.cfg.ContainerName, "from", from, "to", to)
	if e.onTransition != nil {
		e.onTransition(from, to)
	}
}

func (e *Environment) spec() docker.ContainerSpec {
	return docker.ContainerSpec{
		Name:       e.cfg.ContainerName,
		Image:      e.cfg.Image,
		Volume:     e.cfg.Volume,
		MountPath:  e.cfg.MountPath,
		WorkingDir: e.cfg.MountPath,
		Labels:     map[string]string{"graphpilot.env": e.cfg.ContainerName},
	}
}

// Initialize 保证容器存在、仓库已克隆、依赖已安装。
// 已就绪且容器仍在运行时直接返回；失败时状态回到 absent，由调用方决定是否重试。
func (e *Environment) Initialize(ctx context.Context) (string, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if e.Status() == StatusReady {
		running, err := e.rt.IsRunning(ctx, e.cfg.ContainerName)
		if err != nil {
			return "", err
		}
		if running {
			return fmt.Sprintf("environment %q is already initialized", e.cfg.ContainerName), nil
		}
		slog.Info("environment container is gone, re-initializing", "env", e.cfg.ContainerName)
		e.setStatus(StatusAbsent)
	}

	e.setStatus(StatusInitializing)
	report, err := e.initialize(ctx)
	if err != nil {
		e.setStatus(StatusAbsent)
		return "", err
	}
	e.setStatus(StatusReady)
	return report, nil
}

func (e *Environment) initialize(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.InitTimeout)
	defer cancel()

	if err := e.rt.Prepare(ctx, e.spec()); err != nil {
		return "", fmt.Errorf("prepare container %s: %w", e.cfg.ContainerName, err)
	}

	var report strings.Builder
	fmt.Fprintf(&report, "container %s is running (image %s)\n", e.cfg.ContainerName, e.cfg.Image)

	clone := fmt.Sprintf("if [ -d %[1]s/.git ]; then echo 'repository already cloned'; else git clone --depth 1 %[2]s %[1]s; fi",
		shellQuote(e.cfg.RepoDir), shellQuote(e.cfg.RepoURL))
	res, err := e.run(ctx, clone, e.cfg.MountPath, e.cfg.InitTimeout)
	if err != nil {
		return "", fmt.Errorf("clone %s: %w", e.cfg.RepoURL, err)
	}
	if !res.OK() {
		return "", fmt.Errorf("clone %s failed:\n%s", e.cfg.RepoURL, res)
	}
	fmt.Fprintf(&report, "repository %s at %s\n", e.cfg.RepoURL, e.cfg.RepoDir)

	if strings.TrimSpace(e.cfg.InstallCommand) != "" {
		res, err := e.run(ctx, e.cfg.InstallCommand, e.cfg.RepoDir, e.cfg.InitTimeout)
		if err != nil {
			return "", fmt.Errorf("install dependencies: %w", err)
		}
		if !res.OK() {
			return "", fmt.Errorf("install dependencies failed:\n%s", res)
		}
		report.WriteString("dependencies installed\n")
	}
	report.WriteString("environment is ready")
	return report.String(), nil
}

// ensureReady 要求状态为 ready，并顺带确认容器仍在运行
func (e *Environment) ensureReady(ctx context.Context) error {
	if e.Status() != StatusReady {
		return &NotInitializedError{Name: e.cfg.ContainerName}
	}
	running, err := e.rt.IsRunning(ctx, e.cfg.ContainerName)
	if err != nil {
		return err
	}
	if !running {
		e.setStatus(StatusAbsent)
		return &NotInitializedError{Name: e.cfg.ContainerName, Reason: "container is no longer running"}
	}
	return nil
}

// RunTests 在仓库目录下执行测试命令，testPath 为空时运行全部测试
func (e *Environment) RunTests(ctx context.Context, testPath string) (CommandResult, error) {
	clean, err := validateTestPath(testPath)
	if err != nil {
		return CommandResult{}, err
	}

	e.op.Lock()
	defer e.op.Unlock()

	if err := e.ensureReady(ctx); err != nil {
		return CommandResult{}, err
	}

	cmd := e.cfg.TestCommand
	if clean != "" {
		cmd += " " + shellQuote(clean)
	}
	res, err := e.run(ctx, cmd, e.cfg.RepoDir, e.cfg.CommandTimeout)
	if err != nil {
		return CommandResult{}, err
	}

	e.mu.Lock()
	e.lastTestOutput = res.String()
	e.mu.Unlock()
	return res, nil
}

// Exec 通过 sh -c 在仓库目录下执行任意命令，不做容器边界以外的隔离
func (e *Environment) Exec(ctx context.Context, command string) (CommandResult, error) {
	if err := validateCommand(command); err != nil {
		return CommandResult{}, err
	}

	e.op.Lock()
	defer e.op.Unlock()

	if err := e.ensureReady(ctx); err != nil {
		return CommandResult{}, err
	}
	return e.run(ctx, command, e.cfg.RepoDir, e.cfg.CommandTimeout)
}

// Remove 删除容器 (可选删除工作卷)，状态回到 absent
func (e *Environment) Remove(ctx context.Context, withVolume bool) error {
	e.op.Lock()
	defer e.op.Unlock()

	volume := ""
	if withVolume {
		volume = e.cfg.Volume
	}
	if err := e.rt.Remove(ctx, e.cfg.ContainerName, volume); err != nil {
		return err
	}
	e.setStatus(StatusAbsent)
	return nil
}

// Probe 不改变状态，只查看容器是否在运行以及仓库是否已克隆
func (e *Environment) Probe(ctx context.Context) (running bool, cloned bool, err error) {
	e.op.Lock()
	defer e.op.Unlock()

	running, err = e.rt.IsRunning(ctx, e.cfg.ContainerName)
	if err != nil || !running {
		return running, false, err
	}
	res, err := e.run(ctx, "test -d "+shellQuote(e.cfg.RepoDir+"/.git"), e.cfg.MountPath, 30*time.Second)
	if err != nil {
		return running, false, err
	}
	return running, res.OK(), nil
}

// run 执行一条 shell 命令。容器内的 timeout 负责杀进程，
// 宿主机侧的 deadline 多留 KillGrace，保证调用在任何情况下都能返回。
func (e *Environment) run(ctx context.Context, command, dir string, limit time.Duration) (CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, limit+e.cfg.KillGrace)
	defer cancel()

	res, err := e.rt.Exec(runCtx, e.cfg.ContainerName, docker.ExecRequest{
		Cmd:            []string{"sh", "-c", command},
		WorkingDir:     dir,
		Timeout:        limit,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
	})
	out := CommandResult{
		ExitCode:  res.ExitCode,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
		Limit:     limit,
		Output:    res.Output,
		Duration:  res.Duration,
	}
	if res.Truncated {
		slog.Debug("command output truncated", "env", e.cfg.ContainerName, "max_bytes", e.cfg.MaxOutputBytes)
	}
	if err != nil {
		// 只有自己的 deadline 到期才算超时；调用方取消照常返回错误
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			out.TimedOut = true
			slog.Warn("command exceeded host deadline", "env", e.cfg.ContainerName, "limit", limit)
			return out, nil
		}
		return CommandResult{}, fmt.Errorf("exec in %s: %w", e.cfg.ContainerName, err)
	}
	return out, nil
}

// CommandResult 是一次命令执行的结果
type CommandResult struct {
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Limit     time.Duration
	Output    string
	Duration  time.Duration
}

func (r CommandResult) OK() bool { return !r.TimedOut && r.ExitCode == 0 }

// String 输出回填给模型的文本：首行为退出码或超时标记，随后是合并输出
func (r CommandResult) String() string {
	var b strings.Builder
	if r.TimedOut {
		fmt.Fprintf(&b, "timed_out: true (limit %s)\n", r.Limit)
	} else {
		fmt.Fprintf(&b, "exit_code: %d\n", r.ExitCode)
	}
	b.WriteString(r.Output)
	return b.String()
}

func validateTestPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if strings.ContainsAny(p, "\x00\n") {
		return "", fmt.Errorf("%w: path contains control characters", ErrInvalidArgument)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: path %q must be relative to the repository", ErrInvalidArgument, p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path %q escapes the repository", ErrInvalidArgument, p)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// validateCommand 只拒绝空命令、含 NUL 的命令和 sh 语法错误，其余原样交给 sh -c
func validateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: command is empty", ErrInvalidArgument)
	}
	if strings.ContainsRune(command, 0) {
		return fmt.Errorf("%w: command contains NUL byte", ErrInvalidArgument)
	}
	if _, err := syntax.NewParser().Parse(strings.NewReader(command), ""); err != nil {
		return fmt.Errorf("%w: cannot parse command: %v", ErrInvalidArgument, err)
	}
	return nil
}

// shellQuote 用单引号包裹参数，供 sh -c 使用
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
