package agent

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// WithTraceID 将 TraceID 注入 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 从 context 获取 TraceID
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NewTrace 为一次调用生成新的 TraceID 并注入 context
func NewTrace(ctx context.Context) (context.Context, string) {
	traceID := uuid.NewString()
	return WithTraceID(ctx, traceID), traceID
}
