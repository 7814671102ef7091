package testrunner

import (
	"fmt"
	"strings"
	"time"
)

// Config 描述测试环境：容器、要克隆的仓库以及执行命令的约束
type Config struct {
	// ContainerName 是固定的容器名，也是加锁的 key
	ContainerName string `mapstructure:"container_name"`
	Image         string `mapstructure:"image"`
	RepoURL       string `mapstructure:"repo_url"`
	// RepoDir 是仓库在容器内的路径，位于工作卷挂载点之下
	RepoDir   string `mapstructure:"repo_dir"`
	Volume    string `mapstructure:"volume"`
	MountPath string `mapstructure:"mount_path"`

	InstallCommand string `mapstructure:"install_command"`
	TestCommand    string `mapstructure:"test_command"`

	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	InitTimeout    time.Duration `mapstructure:"init_timeout"`
	// KillGrace 是容器内 timeout 之外宿主机侧额外等待的时间
	KillGrace      time.Duration `mapstructure:"kill_grace"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

func DefaultConfig() Config {
	return Config{
		ContainerName:  "graphpilot-testenv",
		Image:          "python:3.12",
		RepoURL:        "https://github.com/pallets/itsdangerous.git",
		RepoDir:        "/workspace/repo",
		Volume:         "graphpilot-workspace",
		MountPath:      "/workspace",
		InstallCommand: "pip install --quiet -e . pytest",
		TestCommand:    "python -m pytest -q",
		CommandTimeout: 5 * time.Minute,
		InitTimeout:    10 * time.Minute,
		KillGrace:      10 * time.Second,
		MaxOutputBytes: 16 * 1024,
	}
}

// withDefaults 用默认值补齐零值字段
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ContainerName == "" {
		c.ContainerName = d.ContainerName
	}
	if c.Image == "" {
		c.Image = d.Image
	}
	if c.RepoURL == "" {
		c.RepoURL = d.RepoURL
	}
	if c.RepoDir == "" {
		c.RepoDir = d.RepoDir
	}
	if c.MountPath == "" {
		c.MountPath = d.MountPath
	}
	if c.TestCommand == "" {
		c.TestCommand = d.TestCommand
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = d.InitTimeout
	}
	if c.KillGrace <= 0 {
		c.KillGrace = d.KillGrace
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = d.MaxOutputBytes
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ContainerName) == "" {
		return fmt.Errorf("runner.container_name is required")
	}
	if !strings.HasPrefix(c.RepoDir, "/") {
		return fmt.Errorf("runner.repo_dir must be an absolute path, got %q", c.RepoDir)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("runner.command_timeout must be positive")
	}
	return nil
}
