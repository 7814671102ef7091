package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wwwzy/GraphPilot/internal/calculator"
	"github.com/wwwzy/GraphPilot/internal/tui"
	"github.com/wwwzy/GraphPilot/internal/ui"
)

var (
	chatAgent string
	chatUI    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `与指定的 Agent 进行多轮对话。每一轮都会运行完整的 决策 -> 工具 循环，
直到模型给出不带工具调用的最终回复。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chatView, err := selectChatUI(chatUI)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := openStore(ctx)
		if store != nil {
			defer store.Close()
		}

		runnable, err := buildAgent(ctx, chatAgent, store)
		if err != nil {
			return err
		}

		return chatView.Run(ctx, runnable, ui.DefaultInitialState(), ui.ChatOptions{AgentName: chatAgent})
	},
}

func selectChatUI(kind string) (ui.ChatUI, error) {
	switch kind {
	case "console", "":
		return &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}, nil
	case "tui":
		return &tui.ChatUI{}, nil
	}
	return nil, fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", kind)
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatAgent, "agent", calculator.Name, "使用的 Agent: calculator/testrunner")
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
}
