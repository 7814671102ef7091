// Package autorun 按 cron 表达式定时触发测试 Agent，并定期清理历史记录。
package autorun

import (
	"time"
)

type ErrorHandler func(err error)

type Config struct {
	// Enabled 控制定时测试是否启用。
	Enabled bool `mapstructure:"enabled"`
	// Schedule 为标准 5 段 cron 表达式，默认每天 03:00。
	Schedule string `mapstructure:"schedule"`
	// RunTimeout 限制一次自动运行 (整个 Agent 调用) 的总时长。
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	Retention RetentionConfig `mapstructure:"retention"`
}

type RetentionConfig struct {
	// Enabled 控制清理任务是否启用。
	Enabled bool `mapstructure:"enabled"`
	// Interval 为清理周期。
	Interval time.Duration `mapstructure:"interval"`
	// Workers 为并发执行清理任务的 worker 数量。
	Workers int `mapstructure:"workers"`
	// BatchRows 为单次 DELETE 的最大行数，避免长时间持有写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的等待时间。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	// AuditKeep 之前的审计记录会被删除。
	AuditKeep time.Duration `mapstructure:"audit_keep"`
	// AuditMaxRows > 0 时额外只保留最新的 N 条审计记录。
	AuditMaxRows int `mapstructure:"audit_max_rows"`
	// TestRunKeep 之前的测试运行记录会被删除 (仍在运行的除外)。
	TestRunKeep time.Duration `mapstructure:"test_run_keep"`

	// OnError 为异步错误回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Schedule:   "0 3 * * *",
		RunTimeout: 30 * time.Minute,
		Retention: RetentionConfig{
			Enabled:     true,
			Interval:    6 * time.Hour,
			Workers:     2,
			BatchRows:   500,
			IdleSleep:   50 * time.Millisecond,
			AuditKeep:   30 * 24 * time.Hour,
			TestRunKeep: 90 * 24 * time.Hour,
		},
	}
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	d := DefaultConfig().Retention
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchRows <= 0 {
		c.BatchRows = d.BatchRows
	}
	if c.AuditKeep <= 0 {
		c.AuditKeep = d.AuditKeep
	}
	if c.TestRunKeep <= 0 {
		c.TestRunKeep = d.TestRunKeep
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
