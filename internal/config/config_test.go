package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/GraphPilot/internal/autorun"
	"github.com/wwwzy/GraphPilot/internal/llm"
	"github.com/wwwzy/GraphPilot/internal/testrunner"
)

func clearModelEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("GRAPHPILOT_MODEL_ID", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "dummy-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "graphpilot.db", cfg.Storage.Path)
	assert.Equal(t, llm.ProviderClaude, cfg.Model.Provider)
	assert.Equal(t, "dummy-key", cfg.Model.APIKey)
	assert.Equal(t, testrunner.DefaultConfig(), cfg.Runner)
	assert.Equal(t, "0 3 * * *", cfg.AutoRun.Schedule)
	assert.Equal(t, autorun.DefaultConfig().Retention.AuditKeep, cfg.AutoRun.Retention.AuditKeep)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("ARK_API_KEY", "ark-env-key")

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log_level: "debug"
model:
  provider: "ark"
  model_id: "doubao-seed"
storage:
  path: "test.db"
  busy_timeout: "10s"
runner:
  image: "python:3.11"
  command_timeout: "90s"
autorun:
  schedule: "*/30 * * * *"
  retention:
    enabled: false
`)
	require.NoError(t, os.WriteFile(configFile, content, 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "ark", cfg.Model.Provider)
	assert.Equal(t, "doubao-seed", cfg.Model.ModelID)
	assert.Equal(t, "ark-env-key", cfg.Model.APIKey)
	assert.Equal(t, "python:3.11", cfg.Runner.Image)
	assert.Equal(t, 90*time.Second, cfg.Runner.CommandTimeout)
	assert.Equal(t, "*/30 * * * *", cfg.AutoRun.Schedule)
	assert.False(t, cfg.AutoRun.Retention.Enabled)

	// 未覆盖的字段保持默认值
	assert.Equal(t, testrunner.DefaultConfig().TestCommand, cfg.Runner.TestCommand)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("GRAPHPILOT_LOG_LEVEL", "warn")
	t.Setenv("GRAPHPILOT_STORAGE_PATH", "env.db")
	t.Setenv("GRAPHPILOT_RUNNER_COMMAND_TIMEOUT", "2m")
	t.Setenv("GRAPHPILOT_MODEL_ID", "claude-haiku")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 2*time.Minute, cfg.Runner.CommandTimeout)
	assert.Equal(t, "claude-haiku", cfg.Model.ModelID)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "graphpilot.db", cfg.Storage.Path)
	assert.True(t, cfg.Storage.EnableWAL)
	assert.Equal(t, 25, cfg.Agent.MaxSteps)
}

func TestValidate(t *testing.T) {
	clearModelEnv(t)

	// Load 本身不要求凭据
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	cfg.Model.APIKey = "k"
	cfg.AutoRun.Schedule = "not a cron"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "autorun.schedule")
}
