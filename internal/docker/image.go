package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/image"
)

// ImageExists 检查本地是否已有该镜像
func ImageExists(ctx context.Context, ref string) (bool, error) {
	cli, err := GetClient()
	if err != nil {
		return false, err
	}
	if _, err := cli.ImageInspect(ctx, ref); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return true, nil
}

type PullImageOptions struct {
	// Ref 镜像引用（name:tag、digest、或镜像 ID）。
	Ref string
	// Platform 可选平台（如 linux/amd64）。
	Platform string
}

// PullImage 拉取镜像并返回拉取输出的末尾部分
func PullImage(ctx context.Context, opts PullImageOptions) (string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", err
	}

	ref := strings.TrimSpace(opts.Ref)
	if ref == "" {
		return "", fmt.Errorf("image ref is required")
	}

	pullOpts := image.PullOptions{}
	if p := strings.TrimSpace(opts.Platform); p != "" {
		pullOpts.Platform = p
	}

	reader, err := cli.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// 拉取进度是一串 JSON 消息，只保留末尾用于排错
	tail := newTailBuffer(2000)
	if _, err := io.Copy(tail, reader); err != nil {
		return "", fmt.Errorf("failed to read image pull output: %w", err)
	}
	return tail.String(), nil
}

// EnsureImage 本地没有镜像时拉取；返回是否发生了拉取
func EnsureImage(ctx context.Context, ref string) (bool, error) {
	ok, err := ImageExists(ctx, ref)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	slog.Info("pulling image", "image", ref)
	if _, err := PullImage(ctx, PullImageOptions{Ref: ref}); err != nil {
		return false, err
	}
	return true, nil
}
