package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wwwzy/GraphPilot/internal/autorun"
	"github.com/wwwzy/GraphPilot/internal/storage"
	"github.com/wwwzy/GraphPilot/internal/testrunner"

	"github.com/spf13/cobra"
)

var serveRunNow bool

// serveCmd 启动定时测试与数据清理
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动定时测试服务",
	Long: `按 autorun.schedule 定时以空输入调用 testrunner Agent，
每次运行记录为一条 test run，并按 autorun.retention 定期清理历史数据。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 收到 SIGINT/SIGTERM 时取消上下文，包括 --run-now 的首次运行
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. 初始化存储
		fmt.Println("正在初始化存储...")
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		// 3. 构建测试 Agent (同时检查模型配置与 Docker 连接)
		fmt.Println("正在构建 testrunner Agent...")
		runnable, err := buildAgent(ctx, testrunner.Name, store)
		if err != nil {
			return err
		}

		// 4. 初始化调度器与清理任务
		acfg := cfg.AutoRun
		acfg.Retention.OnError = func(err error) {
			slog.Error("autorun background error", "error", err)
		}
		mgr := autorun.NewManager(acfg)

		if acfg.Enabled {
			sched, err := autorun.NewScheduler(acfg.Schedule,
				autorun.NewTestRunJob(runnable, store, autorun.TriggerCron, acfg.RunTimeout))
			if err != nil {
				return fmt.Errorf("创建调度器失败: %w", err)
			}
			mgr.WithScheduler(sched)
		}

		ret, err := autorun.NewRetentionCollector(store, acfg.Retention)
		if err != nil {
			return fmt.Errorf("创建 retention 任务失败: %w", err)
		}
		mgr.WithRetention(ret)

		if serveRunNow {
			fmt.Println("立即执行一次测试...")
			manual := autorun.NewTestRunJob(runnable, store, autorun.TriggerManual, acfg.RunTimeout)
			if err := manual(ctx); err != nil {
				slog.Error("manual test run failed", "error", err)
			}
			if ctx.Err() != nil {
				fmt.Println("已取消。")
				return nil
			}
		}

		// 5. 启动管理器
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动管理器失败: %w", err)
		}

		// 6. 等待信号
		if acfg.Enabled {
			fmt.Printf("GraphPilot 已启动 (cron: %s)。按 Ctrl+C 停止。\n", acfg.Schedule)
		} else {
			fmt.Println("GraphPilot 已启动 (定时测试已关闭)。按 Ctrl+C 停止。")
		}

		<-ctx.Done()
		fmt.Println("收到退出信号, 正在关闭...")

		// 7. 优雅停止
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("管理器停止时发生错误: %w", err)
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "启动时立即执行一次测试")
}
