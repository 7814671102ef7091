package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TestRunQuery 用于查询测试运行记录，零值字段不参与过滤
type TestRunQuery struct {
	TriggeredBy string
	Status      string
	// From/To 过滤 StartedAt 区间：[From, To]（两端包含）。
	From  *time.Time
	To    *time.Time
	Limit int
	// Desc 按 StartedAt 倒序返回（最近一次在前）。
	Desc bool
}

func (q TestRunQuery) apply(db *gorm.DB) *gorm.DB {
	if q.TriggeredBy != "" {
		db = db.Where("triggered_by = ?", q.TriggeredBy)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	return timeRange(db, "started_at", q.From, q.To)
}

func (s *Storage) InsertTestRun(ctx context.Context, run *TestRun) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("test run is nil")
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if err := db.Create(run).Error; err != nil {
		return fmt.Errorf("insert test run: %w", err)
	}
	return nil
}

// TestRunResult 是一次运行结束时回写的字段
type TestRunResult struct {
	Status         string
	Summary        string
	TestOutput     string
	LLMCalls       int
	EnvInitialized bool
	ErrorMessage   string
	FinishedAt     time.Time
}

func (s *Storage) FinishTestRun(ctx context.Context, id uint64, r TestRunResult) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}

	// 用 map 更新，保证零值 (LLMCalls=0、EnvInitialized=false) 也会写入
	return updateByID[TestRun](db, "test run", id, map[string]any{
		"status":          r.Status,
		"summary":         r.Summary,
		"test_output":     r.TestOutput,
		"llm_calls":       r.LLMCalls,
		"env_initialized": r.EnvInitialized,
		"error_message":   r.ErrorMessage,
		"finished_at":     r.FinishedAt,
	})
}

func (s *Storage) QueryTestRuns(ctx context.Context, q TestRunQuery) ([]TestRun, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	db = q.apply(db.Model(&TestRun{}))
	if q.Desc {
		db = db.Order("started_at DESC").Order("id DESC")
	} else {
		db = db.Order("started_at ASC").Order("id ASC")
	}

	var out []TestRun
	if err := db.Limit(clampLimit(q.Limit, defaultLimit, maxLimit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query test runs: %w", err)
	}
	return out, nil
}

func (s *Storage) CountTestRuns(ctx context.Context, q TestRunQuery) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.apply(db.Model(&TestRun{})).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count test runs: %w", err)
	}
	return n, nil
}

// DeleteTestRunsBeforeLimited 删除 started_at 早于 before 且已结束的记录，单次最多 limit 条
func (s *Storage) DeleteTestRunsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	return deleteBatch[TestRun](db, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("started_at < ? AND status <> ?", before, StatusRunning).Order("id ASC").Limit(deleteLimit(limit))
	})
}

// Info 是数据库概况，供 storage info 命令展示
type Info struct {
	Path         string
	AuditRecords int64
	TestRuns     int64
	LastRun      *TestRun
}

func (s *Storage) Info(ctx context.Context) (Info, error) {
	info := Info{Path: s.Path()}

	var err error
	if info.AuditRecords, err = s.CountAuditRecords(ctx, AuditQuery{}); err != nil {
		return info, err
	}
	if info.TestRuns, err = s.CountTestRuns(ctx, TestRunQuery{}); err != nil {
		return info, err
	}
	runs, err := s.QueryTestRuns(ctx, TestRunQuery{Limit: 1, Desc: true})
	if err != nil {
		return info, err
	}
	if len(runs) > 0 {
		info.LastRun = &runs[0]
	}
	return info, nil
}
