package agent

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/storage"
)

const auditTruncateLimit = 2048

// AuditStore 是审计包装器需要的最小存储接口，*storage.Storage 实现了它
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *storage.AuditRecord) error
	UpdateAuditRecord(ctx context.Context, id uint64, up storage.AuditUpdate) error
}

// AuditedTool 在工具执行前后各写一次审计记录，按 TraceID 归组
type AuditedTool struct {
	impl  tool.InvokableTool
	store AuditStore
	agent string
}

// wrapWithAudit 将普通工具包装为带审计功能的工具；store 为空时原样返回
func wrapWithAudit(t tool.BaseTool, store AuditStore, agentName string) tool.BaseTool {
	if store == nil {
		return t
	}
	if it, ok := t.(tool.InvokableTool); ok {
		return &AuditedTool{impl: it, store: store, agent: agentName}
	}
	return t
}

func (t *AuditedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.impl.Info(ctx)
}

func (t *AuditedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	rec := t.begin(ctx, argumentsInJSON)
	result, runErr := t.impl.InvokableRun(ctx, argumentsInJSON, opts...)
	t.finish(ctx, rec, result, runErr)
	return result, runErr
}

// action 形如 "<agent>.<tool>"，取不到工具名时为 unknown
func (t *AuditedTool) action(ctx context.Context) string {
	name := "unknown"
	if info, err := t.impl.Info(ctx); err == nil && info != nil {
		name = info.Name
	}
	if t.agent == "" {
		return name
	}
	return t.agent + "." + name
}

// begin 写入 running 记录；写库失败只告警，工具照常执行
func (t *AuditedTool) begin(ctx context.Context, args string) *storage.AuditRecord {
	rec := &storage.AuditRecord{
		TraceID:    GetTraceID(ctx),
		Action:     t.action(ctx),
		ParamsJSON: truncate(args, auditTruncateLimit),
		Status:     storage.StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := t.store.InsertAuditRecord(ctx, rec); err != nil {
		slog.Warn("insert audit record failed", "action", rec.Action, "error", err)
	}
	return rec
}

func (t *AuditedTool) finish(ctx context.Context, rec *storage.AuditRecord, result string, runErr error) {
	if rec.ID == 0 {
		return
	}
	now := time.Now().UTC()
	up := storage.AuditUpdate{FinishedAt: &now}
	status := storage.StatusSuccess
	if runErr != nil {
		status = storage.StatusFailed
		msg := truncate(runErr.Error(), auditTruncateLimit)
		up.ErrorMessage = &msg
	} else {
		out := truncate(result, auditTruncateLimit)
		up.ResultJSON = &out
	}
	up.Status = &status

	if err := t.store.UpdateAuditRecord(ctx, rec.ID, up); err != nil {
		slog.Warn("update audit record failed", "action", rec.Action, "id", rec.ID, "error", err)
	}
}

// truncate 按字节截断，不切断 UTF-8 字符
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
