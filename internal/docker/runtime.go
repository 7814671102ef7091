package docker

import (
	"context"
	"errors"
	"fmt"
)

// Runtime 把本包的函数组合成测试环境需要的容器运行时
type Runtime struct {
	// SkipPull 为 true 时不自动拉取缺失的镜像
	SkipPull bool
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

// Prepare 依次保证镜像、数据卷和容器就绪
func (r *Runtime) Prepare(ctx context.Context, spec ContainerSpec) error {
	if !r.SkipPull {
		if _, err := EnsureImage(ctx, spec.Image); err != nil {
			return err
		}
	}
	if spec.Volume != "" {
		if _, err := EnsureVolume(ctx, spec.Volume, spec.Labels); err != nil {
			return err
		}
	}
	if _, err := EnsureContainer(ctx, spec); err != nil {
		return err
	}
	return nil
}

// IsRunning 容器不存在时返回 false 而不是错误
func (r *Runtime) IsRunning(ctx context.Context, name string) (bool, error) {
	info, err := InspectContainer(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.Running, nil
}

func (r *Runtime) Exec(ctx context.Context, name string, req ExecRequest) (ExecResult, error) {
	return Exec(ctx, name, req)
}

// Remove 删除容器，volume 不为空时一并删除数据卷
func (r *Runtime) Remove(ctx context.Context, name, volume string) error {
	if err := RemoveContainer(ctx, name); err != nil {
		return err
	}
	if volume == "" {
		return nil
	}
	if err := RemoveVolume(ctx, volume, false); err != nil {
		return fmt.Errorf("container removed but volume kept: %w", err)
	}
	return nil
}
