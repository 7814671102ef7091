package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <agent> [input-json]",
	Short: "以 JSON 输入调用一次 Agent",
	Long: `输入格式为 {"messages":[{"role":"user","content":"..."}]}，省略时从 stdin 读取。
输入 {} 时 testrunner 会执行自动测试流程。最终状态以 JSON 输出到 stdout。`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		raw, err := readInvokeInput(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		state, err := agent.DecodeInput(raw)
		if err != nil {
			return err
		}

		store := openStore(ctx)
		if store != nil {
			defer store.Close()
		}

		runnable, err := buildAgent(ctx, args[0], store)
		if err != nil {
			return err
		}

		ctx, traceID := agent.NewTrace(ctx)
		slog.Info("invoke started", "agent", args[0], "trace_id", traceID)

		out, err := runnable.Invoke(ctx, state)
		if err != nil {
			return fmt.Errorf("invoke %s: %w", args[0], err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(agent.EncodeOutput(out))
	},
}

// readInvokeInput 优先使用参数中的 JSON，否则读取 stdin；空输入视为 {}
func readInvokeInput(args []string, stdin io.Reader) ([]byte, error) {
	var raw string
	if len(args) > 1 {
		raw = args[1]
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("读取 stdin 失败: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	return []byte(raw), nil
}

func init() {
	rootCmd.AddCommand(invokeCmd)
}
