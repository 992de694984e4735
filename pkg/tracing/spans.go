package tracing

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware opens a server span per request and records the
// response status on it.
func HTTPMiddleware() gin.HandlerFunc {
	tracer := GetTracer("ledgerd/http")
	return func(c *gin.Context) {
		name := c.Request.Method + " " + c.FullPath()
		ctx, span := tracer.Start(c.Request.Context(), name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Request.Method),
				semconv.HTTPRoute(c.FullPath()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}

// StartSpan opens an internal span; used around transaction closures
// and worker batches.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return GetTracer("ledgerd").Start(ctx, name)
}

// DBSpanConfig identifies a database operation for tracing.
type DBSpanConfig struct {
	Operation string
	Table     string
}

// StartDBSpan opens a client span for a single database operation.
func StartDBSpan(ctx context.Context, cfg DBSpanConfig) (context.Context, trace.Span) {
	return GetTracer("ledgerd/db").Start(ctx, cfg.Operation+" "+cfg.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperation(cfg.Operation),
			semconv.DBSQLTable(cfg.Table),
		),
	)
}

// EndDBSpan records the outcome and affected row count, then ends the
// span. A negative rows value means the count is unknown.
func EndDBSpan(span trace.Span, err error, rows int64) {
	if rows >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", rows))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
