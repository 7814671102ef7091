package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wwwzy/GraphPilot/internal/config"
	"github.com/wwwzy/GraphPilot/internal/docker"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "graphpilot",
	Short: "GraphPilot 是基于工具调用图的 AI Agent",
	Long: `GraphPilot 用一个 模型决策 -> 工具执行 的循环图驱动两个 Agent：
calculator 负责算术，testrunner 在持久的 Docker 容器里克隆仓库并运行测试。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	defer func() {
		if err := docker.CloseClient(); err != nil {
			slog.Debug("close docker client failed", "error", err)
		}
	}()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.graphpilot/config.yaml 搜索）")
}

// initConfig 读取配置文件和环境变量，并安装默认 logger
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
