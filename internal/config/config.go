package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/autorun"
	"github.com/wwwzy/GraphPilot/internal/llm"
	"github.com/wwwzy/GraphPilot/internal/storage"
	"github.com/wwwzy/GraphPilot/internal/testrunner"
)

type AgentConfig struct {
	// MaxSteps 限制一次调用中 Graph 的运行步数
	MaxSteps int `mapstructure:"max_steps"`
}

type Config struct {
	LogLevel string            `mapstructure:"log_level"`
	Model    llm.Config        `mapstructure:"model"`
	Agent    AgentConfig       `mapstructure:"agent"`
	Runner   testrunner.Config `mapstructure:"runner"`
	Storage  storage.Config    `mapstructure:"storage"`
	AutoRun  autorun.Config    `mapstructure:"autorun"`
}

// Load 按 默认值 < 配置文件 < 环境变量 的顺序合并配置。
// 这里不做 Validate：只有需要调用模型的命令才要求凭据。
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.graphpilot")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GRAPHPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只认识 Viper 已知的 key，所以每个字段都要有默认值
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 未显式配置 key 时按 provider 读取各自的环境变量
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv(cfg.Model.APIKeyEnv())
	}

	return &cfg, nil
}

// Validate 检查调用模型与运行测试所需的配置
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Runner.Validate(); err != nil {
		return err
	}
	if c.AutoRun.Enabled {
		if _, err := autorun.NewScheduler(c.AutoRun.Schedule, noopJob); err != nil {
			return fmt.Errorf("autorun.schedule: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log_level", d.LogLevel)

	// -------------------------------------------------------------------------
	// Model Defaults (模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.model_id", d.Model.ModelID)
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)

	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)

	// -------------------------------------------------------------------------
	// Runner Defaults (测试环境默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("runner.container_name", d.Runner.ContainerName)
	v.SetDefault("runner.image", d.Runner.Image)
	v.SetDefault("runner.repo_url", d.Runner.RepoURL)
	v.SetDefault("runner.repo_dir", d.Runner.RepoDir)
	v.SetDefault("runner.volume", d.Runner.Volume)
	v.SetDefault("runner.mount_path", d.Runner.MountPath)
	v.SetDefault("runner.install_command", d.Runner.InstallCommand)
	v.SetDefault("runner.test_command", d.Runner.TestCommand)
	v.SetDefault("runner.command_timeout", d.Runner.CommandTimeout)
	v.SetDefault("runner.init_timeout", d.Runner.InitTimeout)
	v.SetDefault("runner.kill_grace", d.Runner.KillGrace)
	v.SetDefault("runner.max_output_bytes", d.Runner.MaxOutputBytes)

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)

	// -------------------------------------------------------------------------
	// AutoRun Defaults (定时测试与清理默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("autorun.enabled", d.AutoRun.Enabled)
	v.SetDefault("autorun.schedule", d.AutoRun.Schedule)
	v.SetDefault("autorun.run_timeout", d.AutoRun.RunTimeout)
	v.SetDefault("autorun.retention.enabled", d.AutoRun.Retention.Enabled)
	v.SetDefault("autorun.retention.interval", d.AutoRun.Retention.Interval)
	v.SetDefault("autorun.retention.workers", d.AutoRun.Retention.Workers)
	v.SetDefault("autorun.retention.batch_rows", d.AutoRun.Retention.BatchRows)
	v.SetDefault("autorun.retention.idle_sleep", d.AutoRun.Retention.IdleSleep)
	v.SetDefault("autorun.retention.audit_keep", d.AutoRun.Retention.AuditKeep)
	v.SetDefault("autorun.retention.audit_max_rows", d.AutoRun.Retention.AuditMaxRows)
	v.SetDefault("autorun.retention.test_run_keep", d.AutoRun.Retention.TestRunKeep)

	_ = v.BindEnv("model.model_id", "GRAPHPILOT_MODEL_ID")
	_ = v.BindEnv("model.base_url", "GRAPHPILOT_MODEL_BASE_URL")
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Model:    llm.DefaultConfig(),
		Agent:    AgentConfig{MaxSteps: agent.DefaultMaxSteps},
		Runner:   testrunner.DefaultConfig(),
		Storage: storage.Config{
			Path:        "graphpilot.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		AutoRun: autorun.DefaultConfig(),
	}
}

var noopJob autorun.Job = func(_ context.Context) error { return nil }
