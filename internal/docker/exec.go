package docker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	defaultExecMaxOutputBytes = 64 * 1024

	// timeout -s KILL 杀死进程后的退出码 (128 + SIGKILL)
	exitCodeKilled = 137
)

// ExecRequest 描述一次在容器内执行的命令
type ExecRequest struct {
	Cmd        []string
	WorkingDir string
	Env        []string
	// Timeout > 0 时用容器内的 timeout -s KILL 包装命令
	Timeout time.Duration
	// MaxOutputBytes 限制保留的输出，只保留末尾部分
	MaxOutputBytes int
}

// ExecResult 是一次执行的结果，Output 为 stdout 与 stderr 的合并输出
type ExecResult struct {
	Output   string
	ExitCode int
	TimedOut bool
	// Truncated 表示输出超过 MaxOutputBytes，Output 只保留了末尾
	Truncated bool
	Duration  time.Duration
}

// Exec 在运行中的容器内执行命令并等待结束。
// ctx 被取消时会关闭 attach 连接并返回已收集的部分输出以及 ctx.Err()。
func Exec(ctx context.Context, containerName string, req ExecRequest) (ExecResult, error) {
	if len(req.Cmd) == 0 {
		return ExecResult{}, fmt.Errorf("exec command is required")
	}
	cli, err := GetClient()
	if err != nil {
		return ExecResult{}, err
	}

	maxBytes := req.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = defaultExecMaxOutputBytes
	}

	created, err := cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          wrapTimeout(req.Cmd, req.Timeout),
		WorkingDir:   req.WorkingDir,
		Env:          req.Env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if isNotFound(err) {
			return ExecResult{}, fmt.Errorf("container %s: %w", containerName, ErrNotFound)
		}
		return ExecResult{}, fmt.Errorf("failed to create exec in %s: %w", containerName, err)
	}

	start := time.Now()
	attach, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to attach exec in %s: %w", containerName, err)
	}
	defer attach.Close()

	out := newTailBuffer(maxBytes)
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(out, out, attach.Reader)
		copyDone <- err
	}()

	select {
	case err := <-copyDone:
		if err != nil {
			return ExecResult{Output: out.String(), Truncated: out.Truncated(), Duration: time.Since(start)},
				fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		// 关闭连接让 StdCopy 退出；容器内进程由 timeout 负责收尾
		attach.Close()
		<-copyDone
		return ExecResult{
			Output:    out.String(),
			Truncated: out.Truncated(),
			Duration:  time.Since(start),
			TimedOut:  errors.Is(ctx.Err(), context.DeadlineExceeded),
		}, ctx.Err()
	}

	res := ExecResult{Output: out.String(), Truncated: out.Truncated(), Duration: time.Since(start)}

	code, err := waitExitCode(ctx, containerName, created.ID)
	if err != nil {
		return res, err
	}
	res.ExitCode = code
	if req.Timeout > 0 && code == exitCodeKilled && res.Duration >= req.Timeout {
		res.TimedOut = true
	}
	return res, nil
}

// waitExitCode 读取 exec 的退出码；输出流结束后 daemon 可能还没来得及更新状态
func waitExitCode(ctx context.Context, containerName, execID string) (int, error) {
	cli, err := GetClient()
	if err != nil {
		return 0, err
	}
	for i := 0; ; i++ {
		inspect, err := cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect exec in %s: %w", containerName, err)
		}
		if !inspect.Running || i >= 20 {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// wrapTimeout 用 coreutils/busybox 的 timeout 包装命令，超时后直接 SIGKILL
func wrapTimeout(cmd []string, timeout time.Duration) []string {
	if timeout <= 0 {
		return cmd
	}
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	wrapped := make([]string, 0, len(cmd)+4)
	wrapped = append(wrapped, "timeout", "-s", "KILL", strconv.Itoa(secs))
	return append(wrapped, cmd...)
}
