package docker

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker/client"
)

var (
	dockerCli *client.Client
	once      sync.Once
	initErr   error
)

// GetClient 获取 Docker Client 单例
// 懒加载模式，第一次调用时初始化；初始化失败会被缓存，后续调用返回同一个错误
func GetClient() (*client.Client, error) {
	once.Do(func() {
		// FromEnv 读取 DOCKER_HOST 等环境变量，API 版本与 daemon 协商
		dockerCli, initErr = client.NewClientWithOpts(
			client.FromEnv,
			client.WithAPIVersionNegotiation(),
		)
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", initErr)
	}
	return dockerCli, nil
}

// Ping 检查 daemon 是否可达，返回协商后的 API 版本
func Ping(ctx context.Context) (string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", err
	}
	ping, err := cli.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to ping docker daemon: %w", err)
	}
	return ping.APIVersion, nil
}

// CloseClient 关闭 Docker Client 连接，由 cli.Execute 在退出前调用；从未创建过 client 时什么都不做
func CloseClient() error {
	if dockerCli != nil {
		return dockerCli.Close()
	}
	return nil
}
