package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
)

// VolumeSummary 是 env list 展示的卷信息
type VolumeSummary struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Labels     map[string]string `json:"labels"`
	CreatedAt  string            `json:"created_at"`
}

// ListVolumes 列出带有指定标签的数据卷
func ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeSummary, error) {
	cli, err := GetClient()
	if err != nil {
		return nil, err
	}

	resp, err := cli.VolumeList(ctx, volume.ListOptions{Filters: labelFilters(labels)})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var out []VolumeSummary
	for _, v := range resp.Volumes {
		if v != nil {
			out = append(out, VolumeSummary{v.Name, v.Driver, v.Mountpoint, v.Labels, v.CreatedAt})
		}
	}
	return out, nil
}

// EnsureVolume 数据卷不存在时创建；VolumeCreate 对同名卷本身是幂等的，这里先查一次避免覆盖标签
func EnsureVolume(ctx context.Context, name string, labels map[string]string) (volume.Volume, error) {
	cli, err := GetClient()
	if err != nil {
		return volume.Volume{}, err
	}

	existing, err := cli.VolumeInspect(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return volume.Volume{}, fmt.Errorf("failed to inspect volume %s: %w", name, err)
	}

	all := map[string]string{LabelManaged: "true"}
	for k, v := range labels {
		all[k] = v
	}
	created, err := cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: all,
	})
	if err != nil {
		return volume.Volume{}, fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	return created, nil
}

// RemoveVolume 删除数据卷；不存在时返回 nil
func RemoveVolume(ctx context.Context, name string, force bool) error {
	cli, err := GetClient()
	if err != nil {
		return err
	}
	if err := cli.VolumeRemove(ctx, name, force); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to remove volume %s: %w", name, err)
	}
	return nil
}
