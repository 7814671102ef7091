package autorun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
)

// ErrRunInProgress 表示上一次运行尚未结束
var ErrRunInProgress = errors.New("a run is already in progress")

// Job 是一次定时运行要做的事
type Job func(ctx context.Context) error

// Scheduler 按 cron 表达式触发 Job，同一时刻最多只有一次运行
type Scheduler struct {
	expr    string
	job     Job
	running atomic.Bool

	now     func() time.Time
	onError ErrorHandler
}

func NewScheduler(expr string, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %s", expr)
	}
	return &Scheduler{
		expr:    expr,
		job:     job,
		now:     time.Now,
		onError: func(error) {},
	}, nil
}

// OnError 设置运行失败时的回调
func (s *Scheduler) OnError(fn ErrorHandler) *Scheduler {
	if fn != nil {
		s.onError = fn
	}
	return s
}

func (s *Scheduler) Expr() string { return s.expr }

// Next 返回严格晚于 after 的下一个触发时间
func (s *Scheduler) Next(after time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(s.expr, after, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("compute next run for %q: %w", s.expr, err)
	}
	return next, nil
}

// Run 阻塞直到 ctx 结束。Job 失败只记录，不会停止调度。
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := s.Next(s.now())
		if err != nil {
			return err
		}
		slog.Info("next auto run scheduled", "at", next.Format(time.RFC3339), "cron", s.expr)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				slog.Warn("skipping auto run, previous run still in progress")
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("auto run failed", "error", err)
			s.onError(err)
		}
	}
}

// RunOnce 立即运行一次；已有运行在进行时返回 ErrRunInProgress
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.job(ctx)
}
