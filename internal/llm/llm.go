// Package llm 根据配置创建支持工具调用的 ChatModel。
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
)

const (
	ProviderClaude = "claude"
	ProviderArk    = "ark"

	defaultMaxTokens = 4096
)

type Config struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	ModelID     string  `mapstructure:"model_id"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

func DefaultConfig() Config {
	return Config{
		Provider:  ProviderClaude,
		ModelID:   "claude-sonnet-4-5-20250929",
		MaxTokens: defaultMaxTokens,
	}
}

// Validate 检查调用模型所需的凭据，缺失时 CLI 在构建 Graph 之前退出
func (c Config) Validate() error {
	switch c.provider() {
	case ProviderClaude, ProviderArk:
	default:
		return fmt.Errorf("unknown model.provider %q (want %s or %s)", c.Provider, ProviderClaude, ProviderArk)
	}
	if c.APIKey == "" {
		return fmt.Errorf("model.api_key is required (or set %s)", c.APIKeyEnv())
	}
	if c.ModelID == "" {
		return fmt.Errorf("model.model_id is required (or set GRAPHPILOT_MODEL_ID)")
	}
	return nil
}

func (c Config) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return ProviderClaude
	}
	return p
}

// APIKeyEnv 返回当前 provider 对应的 API Key 环境变量名
func (c Config) APIKeyEnv() string {
	if c.provider() == ProviderArk {
		return "ARK_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// NewChatModel 初始化配置中指定的 ChatModel
func NewChatModel(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	temperature := cfg.Temperature

	switch cfg.provider() {
	case ProviderArk:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.ModelID,
			BaseURL:     cfg.BaseURL,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		return cm, nil

	default:
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}
		claudeCfg := &claude.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.ModelID,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		}
		if cfg.BaseURL != "" {
			baseURL := cfg.BaseURL
			claudeCfg.BaseURL = &baseURL
		}
		cm, err := claude.NewChatModel(ctx, claudeCfg)
		if err != nil {
			return nil, fmt.Errorf("create claude chat model: %w", err)
		}
		return cm, nil
	}
}
