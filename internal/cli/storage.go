package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwwzy/GraphPilot/internal/autorun"
	"github.com/wwwzy/GraphPilot/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、查看测试运行记录以及清理审计记录的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

// pruneAuditCmd represents the prune-audit command
var pruneAuditCmd = &cobra.Command{
	Use:   "prune-audit",
	Short: "清理审计记录",
	Long:  `根据用户指定的保留条数或天数，清理旧的审计记录。`,
	Run:   runPruneAudit,
}

// pruneCmd 立即按配置执行一次完整的保留策略
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "根据配置文件立即清理过期数据",
	Long:  `忽略定时任务间隔，立即执行一次 autorun.retention 中的保留策略。`,
	Run:   runPrune,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "列出最近的测试运行记录",
	Run:   runRuns,
}

var (
	keepAuditCount int
	keepAuditDays  int

	runsLimit   int
	runsTrigger string
	runsStatus  string
)

func init() {
	pruneAuditCmd.Flags().IntVar(&keepAuditCount, "keep", 0, "保留最近的 N 条记录")
	pruneAuditCmd.Flags().IntVar(&keepAuditDays, "days", 0, "保留最近 N 天的记录")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "最多显示 N 条")
	runsCmd.Flags().StringVar(&runsTrigger, "trigger", "", "按触发方式过滤: cron/manual")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "按状态过滤: running/success/failed")

	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(pruneCmd)
	storageCmd.AddCommand(pruneAuditCmd)
	storageCmd.AddCommand(runsCmd)
}

func mustOpenStore(ctx context.Context) *storage.Storage {
	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runPruneAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if keepAuditCount <= 0 && keepAuditDays <= 0 {
		fmt.Println("Error: must specify either --keep or --days")
		_ = cmd.Usage()
		os.Exit(1)
	}

	fmt.Println("Opening database...")
	store := mustOpenStore(ctx)
	defer store.Close()

	var deletedCount int64

	if keepAuditDays > 0 {
		before := time.Now().UTC().AddDate(0, 0, -keepAuditDays)
		fmt.Printf("Pruning audit records older than %d days (before %s)...\n", keepAuditDays, before.Format(time.RFC3339))
		for {
			count, err := store.DeleteAuditRecordsBeforeLimited(ctx, before, 0)
			if err != nil {
				fmt.Printf("Error pruning by days: %v\n", err)
				os.Exit(1)
			}
			if count == 0 {
				break
			}
			deletedCount += count
		}
	}

	if keepAuditCount > 0 {
		fmt.Printf("Pruning audit records, keeping latest %d records...\n", keepAuditCount)
		for {
			count, err := store.DeleteAuditRecordsKeepLatest(ctx, keepAuditCount, 0)
			if err != nil {
				fmt.Printf("Error pruning by count: %v\n", err)
				os.Exit(1)
			}
			if count == 0 {
				break
			}
			deletedCount += count
		}
	}

	fmt.Printf("Prune completed. Deleted %d records.\n", deletedCount)

	if count, err := store.CountAuditRecords(ctx, storage.AuditQuery{}); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", count)
	}
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	fmt.Println("Opening database...")
	store := mustOpenStore(ctx)
	defer store.Close()

	policy := cfg.AutoRun.Retention
	fmt.Printf("Policy: AuditKeep=%v AuditMaxRows=%d TestRunKeep=%v\n", policy.AuditKeep, policy.AuditMaxRows, policy.TestRunKeep)

	c, err := autorun.NewRetentionCollector(store, policy)
	if err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}
	if err := c.RunOnce(ctx, time.Now().UTC()); err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Prune completed successfully.")
	if info, err := store.Info(ctx); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", info.AuditRecords)
		fmt.Printf("Remaining Test Runs: %d\n", info.TestRuns)
	}
}

func runRuns(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	store := mustOpenStore(ctx)
	defer store.Close()

	runs, err := store.QueryTestRuns(ctx, storage.TestRunQuery{
		TriggeredBy: runsTrigger,
		Status:      runsStatus,
		Limit:       runsLimit,
		Desc:        true,
	})
	if err != nil {
		fmt.Printf("Error querying test runs: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTRIGGER\tSTATUS\tDURATION\tLLM\tSUMMARY")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		summary := r.Summary
		if r.ErrorMessage != "" {
			summary = "error: " + r.ErrorMessage
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.TriggeredBy,
			r.Status,
			duration,
			r.LLMCalls,
			oneLine(summary, 60),
		)
	}
	_ = w.Flush()
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	// 1. 获取数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	fi, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(fi.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	// 3. 获取统计信息
	info, err := store.Info(ctx)
	if err != nil {
		fmt.Printf("Error reading database info: %v\n", err)
		return
	}

	// 4. 格式化输出
	fmt.Printf("Database File: %s\n\n", dbSizeStr)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "AuditRecords\t%d\n", info.AuditRecords)
	fmt.Fprintf(w, "TestRuns\t%d\n", info.TestRuns)
	_ = w.Flush()

	if info.LastRun != nil {
		fmt.Printf("\nLast Run: #%d %s (%s) at %s\n",
			info.LastRun.ID, info.LastRun.Status, info.LastRun.TriggeredBy,
			info.LastRun.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

// oneLine 取首行并截断到 n 个字符
func oneLine(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n-3]) + "..."
	}
	return s
}
