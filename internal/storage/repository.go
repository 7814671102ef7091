package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// ErrNotOpen 表示 Storage 为 nil 或尚未 Open
var ErrNotOpen = errors.New("storage not initialized")

// conn 返回绑定了 ctx 的会话
func (s *Storage) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db.WithContext(ctx), nil
}

// AuditQuery 审计记录过滤条件，零值字段不参与过滤。
// 时间区间作用于 CreatedAt，两端包含。
type AuditQuery struct {
	TraceID string
	Action  string
	Status  string
	From    *time.Time
	To      *time.Time
	// Limit <=0 时取 defaultLimit
	Limit int
	Desc  bool
}

func (q AuditQuery) apply(db *gorm.DB) *gorm.DB {
	for col, v := range map[string]string{"trace_id": q.TraceID, "action": q.Action, "status": q.Status} {
		if v != "" {
			db = db.Where(col+" = ?", v)
		}
	}
	return timeRange(db, "created_at", q.From, q.To)
}

func timeRange(db *gorm.DB, col string, from, to *time.Time) *gorm.DB {
	if from != nil {
		db = db.Where(col+" >= ?", *from)
	}
	if to != nil {
		db = db.Where(col+" <= ?", *to)
	}
	return db
}

func (s *Storage) InsertAuditRecord(ctx context.Context, rec *AuditRecord) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.New("audit record is nil")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Storage) QueryAuditRecords(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	order := "created_at ASC"
	if q.Desc {
		order = "created_at DESC"
	}

	var out []AuditRecord
	err = q.apply(db.Model(&AuditRecord{})).Order(order).Limit(clampLimit(q.Limit, defaultLimit, maxLimit)).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return out, nil
}

// CountAuditRecords 忽略 Limit/Desc
func (s *Storage) CountAuditRecords(ctx context.Context, q AuditQuery) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.apply(db.Model(&AuditRecord{})).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// DeleteAuditRecordsBeforeLimited 删除 created_at 早于 before 的最旧一批记录并返回删除条数。
// 调用方循环到返回 0 为止，单批较小可以缩短 SQLite 写锁的持有时间。
func (s *Storage) DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	return deleteBatch[AuditRecord](db, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", before).Order("id ASC").Limit(deleteLimit(limit))
	})
}

// DeleteAuditRecordsKeepLatest 删除最新 keep 条之外的一批记录
func (s *Storage) DeleteAuditRecordsKeepLatest(ctx context.Context, keep int, limit int) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	return deleteBatch[AuditRecord](db, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id DESC").Offset(max(keep, 0)).Limit(deleteLimit(limit))
	})
}

// deleteBatch 先用 pick 选出一批 id 再按 id 删除；SQLite 默认不支持 DELETE ... LIMIT
func deleteBatch[T any](db *gorm.DB, pick func(*gorm.DB) *gorm.DB) (int64, error) {
	var model T
	var ids []uint64
	if err := pick(db.Model(&model).Select("id")).Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select %T ids: %w", model, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Where("id IN ?", ids).Delete(&model)
	if res.Error != nil {
		return 0, fmt.Errorf("delete %T: %w", model, res.Error)
	}
	return res.RowsAffected, nil
}

// AuditUpdate 只写入非 nil 字段
type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (u AuditUpdate) columns() map[string]any {
	cols := make(map[string]any, 4)
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.ResultJSON != nil {
		cols["result_json"] = *u.ResultJSON
	}
	if u.ErrorMessage != nil {
		cols["error_message"] = *u.ErrorMessage
	}
	if u.FinishedAt != nil {
		cols["finished_at"] = *u.FinishedAt
	}
	return cols
}

func (s *Storage) UpdateAuditRecord(ctx context.Context, id uint64, up AuditUpdate) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	cols := up.columns()
	if len(cols) == 0 {
		return nil
	}
	return updateByID[AuditRecord](db, "audit record", id, cols)
}

// updateByID 按 id 更新列，没有命中任何行时返回 notFoundError
func updateByID[T any](db *gorm.DB, entity string, id uint64, cols map[string]any) error {
	var model T
	res := db.Model(&model).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", entity, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundError{Entity: entity, ID: id}
	}
	return nil
}

func clampLimit(v, def, hi int) int {
	if v <= 0 {
		return def
	}
	return min(v, hi)
}

func deleteLimit(v int) int { return clampLimit(v, defaultDeleteLimit, maxDeleteLimit) }

type notFoundError struct {
	Entity string
	ID     uint64
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}
