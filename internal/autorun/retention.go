package autorun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wwwzy/GraphPilot/internal/storage"
)

// RetentionCollector 周期性删除过期的审计记录与测试运行记录
type RetentionCollector struct {
	cfg RetentionConfig

	store *storage.Storage
}

func NewRetentionCollector(store *storage.Storage, cfg RetentionConfig) (*RetentionCollector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &RetentionCollector{store: store, cfg: cfg.withDefaults()}, nil
}

// Run 启动时先清理一次，之后按 Interval 周期执行；单轮失败交给 OnError 后继续
func (c *RetentionCollector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := c.RunOnce(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			c.cfg.OnError(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type pruneTask struct {
	name string
	del  func(context.Context) (int64, error)
}

func (c *RetentionCollector) tasks(now time.Time) []pruneTask {
	auditCut := now.Add(-c.cfg.AuditKeep)
	runCut := now.Add(-c.cfg.TestRunKeep)
	batch := c.cfg.BatchRows

	tasks := []pruneTask{
		{"audit_records", func(ctx context.Context) (int64, error) {
			return c.store.DeleteAuditRecordsBeforeLimited(ctx, auditCut, batch)
		}},
		{"test_runs", func(ctx context.Context) (int64, error) {
			return c.store.DeleteTestRunsBeforeLimited(ctx, runCut, batch)
		}},
	}
	if keep := c.cfg.AuditMaxRows; keep > 0 {
		tasks = append(tasks, pruneTask{"audit_records_overflow", func(ctx context.Context) (int64, error) {
			return c.store.DeleteAuditRecordsKeepLatest(ctx, keep, batch)
		}})
	}
	return tasks
}

// RunOnce 以 now 为基准执行一轮清理，各表的清理任务由 Workers 个 goroutine 并行处理
func (c *RetentionCollector) RunOnce(ctx context.Context, now time.Time) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	tasks := c.tasks(now)
	queue := make(chan pruneTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range min(max(c.cfg.Workers, 1), len(tasks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				n, err := c.deleteBatches(ctx, t.del)
				if n > 0 {
					slog.Info("retention pruned rows", "table", t.name, "rows", n)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("prune %s: %w", t.name, err))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// deleteBatches 反复调用 del 直到没有可删除的行，返回累计删除数
func (c *RetentionCollector) deleteBatches(ctx context.Context, del func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for ctx.Err() == nil {
		n, err := del(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := c.sleepIdle(ctx); err != nil {
			return total, err
		}
	}
	return total, ctx.Err()
}

func (c *RetentionCollector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
