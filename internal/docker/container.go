package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/containerd/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	dockererrdefs "github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// LabelManaged 标记由 GraphPilot 创建和管理的资源
const LabelManaged = "graphpilot.managed"

// ErrNotFound 表示容器或数据卷不存在
var ErrNotFound = errors.New("not found")

// ContainerSpec 描述一个长期存活的工作容器
type ContainerSpec struct {
	Name  string
	Image string
	// Volume 不为空时挂载到 MountPath，容器删除后数据仍然保留
	Volume     string
	MountPath  string
	WorkingDir string
	Env        []string
	Labels     map[string]string
}

// ContainerSummary 简化版的容器列表信息
type ContainerSummary struct {
	ID      string `json:"id"`
	Names   string `json:"names"`
	Image   string `json:"image"`
	Status  string `json:"status"`
	State   string `json:"state"`
	Created int64  `json:"created"`
}

// ContainerInfo 简化版的容器详情
type ContainerInfo struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Status  string            `json:"status"`
	Running bool              `json:"running"`
	Created string            `json:"created"`
	Labels  map[string]string `json:"labels"`
}

func isNotFound(err error) bool {
	return errdefs.IsNotFound(err) || dockererrdefs.IsNotFound(err)
}

func isConflict(err error) bool {
	return dockererrdefs.IsConflict(err)
}

// ListContainers 列出带有指定标签的容器 (包括已停止的)
func ListContainers(ctx context.Context, labels map[string]string) ([]ContainerSummary, error) {
	cli, err := GetClient()
	if err != nil {
		return nil, err
	}

	listOpts := container.ListOptions{
		All:     true,
		Filters: labelFilters(labels),
	}

	containers, err := cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		result = append(result, ContainerSummary{
			ID:      truncateID(c.ID),
			Names:   strings.TrimPrefix(strings.Join(c.Names, ","), "/"),
			Image:   c.Image,
			Status:  c.Status,
			State:   string(c.State),
			Created: c.Created,
		})
	}
	return result, nil
}

// InspectContainer 获取容器详情；容器不存在时返回包装了 ErrNotFound 的错误
func InspectContainer(ctx context.Context, name string) (*ContainerInfo, error) {
	cli, err := GetClient()
	if err != nil {
		return nil, err
	}

	raw, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	info := &ContainerInfo{
		ID:      raw.ID,
		Name:    strings.TrimPrefix(raw.Name, "/"),
		Created: raw.Created,
	}
	if raw.Config != nil {
		info.Image = raw.Config.Image
		info.Labels = raw.Config.Labels
	}
	if raw.State != nil {
		info.Status = string(raw.State.Status)
		info.Running = raw.State.Running
	}
	return info, nil
}

// EnsureContainer 保证容器存在并处于运行状态：
// 不存在则创建，已停止则启动。并发创建导致的名称冲突视为成功。
func EnsureContainer(ctx context.Context, spec ContainerSpec) (*ContainerInfo, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("container name is required")
	}
	cli, err := GetClient()
	if err != nil {
		return nil, err
	}

	info, err := InspectContainer(ctx, spec.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if info == nil {
		if err := createContainer(ctx, spec); err != nil {
			return nil, err
		}
	} else if info.Running {
		return info, nil
	}

	if err := cli.ContainerStart(ctx, spec.Name, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}
	return InspectContainer(ctx, spec.Name)
}

func createContainer(ctx context.Context, spec ContainerSpec) error {
	cli, err := GetClient()
	if err != nil {
		return err
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	hostCfg := &container.HostConfig{}
	if spec.Volume != "" {
		hostCfg.Mounts = []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: spec.Volume,
			Target: spec.MountPath,
		}}
	}

	// 容器只作为长期存活的执行环境，命令通过 exec 进入
	_, err = cli.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: spec.WorkingDir,
			Env:        spec.Env,
			Labels:     labels,
		},
		hostCfg,
		&network.NetworkingConfig{},
		(*ocispec.Platform)(nil),
		spec.Name,
	)
	if err != nil {
		if isConflict(err) {
			slog.Debug("container created concurrently", "container", spec.Name)
			return nil
		}
		return fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	slog.Info("container created", "container", spec.Name, "image", spec.Image)
	return nil
}

// RemoveContainer 强制删除容器；容器不存在时返回 nil
func RemoveContainer(ctx context.Context, name string) error {
	cli, err := GetClient()
	if err != nil {
		return err
	}
	err = cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

func labelFilters(labels map[string]string) filters.Args {
	f := filters.NewArgs()
	for k, v := range labels {
		if v == "" {
			f.Add("label", k)
			continue
		}
		f.Add("label", k+"="+v)
	}
	return f
}
