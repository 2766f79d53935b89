package logger

import (
	"context"

	"go.uber.org/zap"

	reqctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithContext returns a context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context's logger enriched with request, tenant and
// trace ids. A context without a logger yields a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || l == nil {
		return zap.NewNop()
	}
	if id := reqctx.GetRequestID(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if tenantID := reqctx.GetTenantID(ctx); tenantID != "" {
		l = l.With(zap.String("tenant_id", tenantID))
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		l = l.With(
			zap.String("trace_id", traceID),
			zap.String("span_id", tracing.GetSpanID(ctx)),
		)
	}
	return l
}
