package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

const defaultLogsMaxBytes = 10000

// GetContainerLogsOptions 定义获取日志的参数
type GetContainerLogsOptions struct {
	Container string
	Tail      string // "all" or number
	Since     string // timestamp or duration string
	MaxBytes  int
}

// GetContainerLogs 获取容器日志，stdout 与 stderr 按到达顺序合并
func GetContainerLogs(ctx context.Context, opts GetContainerLogsOptions) (string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", err
	}

	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       opts.Tail,
		Since:      opts.Since,
	}
	if logOpts.Tail == "" {
		logOpts.Tail = "50"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultLogsMaxBytes
	}

	reader, err := cli.ContainerLogs(ctx, opts.Container, logOpts)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("container %s: %w", opts.Container, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get logs for %s: %w", opts.Container, err)
	}
	defer reader.Close()

	out := newTailBuffer(opts.MaxBytes)
	// 工作容器不分配 TTY，日志总是多路复用流
	if _, err := stdcopy.StdCopy(out, out, reader); err != nil {
		return "", fmt.Errorf("stdcopy failed (container might be using TTY): %w", err)
	}
	return out.String(), nil
}
