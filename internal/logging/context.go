package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Correlation keys carried on the context and emitted on every entry.
const (
	FieldUserID    = "user.id"
	FieldContentID = "content.id"
	FieldFolderID  = "folder.id"
	FieldRequestID = "request.id"
	FieldTaskType  = "task.type"
	FieldMessageID = "message.id"
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

type ctxKey string

// ContextFields extracts correlation data from ctx: the active span plus any
// IDs attached with the With* helpers.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	for _, key := range []string{FieldRequestID, FieldMessageID, FieldTaskType, FieldUserID, FieldContentID, FieldFolderID} {
		if v := idFromContext(ctx, key); v != "" {
			fields = append(fields, zap.String(key, v))
		}
	}
	return fields
}

// withID attaches id under key. IDs arrive from queue payloads and HTTP
// paths, so malformed values are dropped rather than logged verbatim.
func withID(ctx context.Context, key, id string) context.Context {
	if id == "" || len(id) > maxIDLen || !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, ctxKey(key), id)
}

func idFromContext(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

// WithUserID attaches the acting user.
func WithUserID(ctx context.Context, id string) context.Context { return withID(ctx, FieldUserID, id) }

// WithContentID attaches the content item being processed.
func WithContentID(ctx context.Context, id string) context.Context {
	return withID(ctx, FieldContentID, id)
}

// WithFolderID attaches the folder being acted on.
func WithFolderID(ctx context.Context, id string) context.Context {
	return withID(ctx, FieldFolderID, id)
}

// WithRequestID attaches an HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, FieldRequestID, id)
}

// WithTask attaches the queue task type and message ID.
func WithTask(ctx context.Context, taskType, messageID string) context.Context {
	return withID(withID(ctx, FieldTaskType, taskType), FieldMessageID, messageID)
}

// UserIDFromContext returns the user attached with WithUserID.
func UserIDFromContext(ctx context.Context) string { return idFromContext(ctx, FieldUserID) }

// RequestIDFromContext returns the request ID attached with WithRequestID.
func RequestIDFromContext(ctx context.Context) string { return idFromContext(ctx, FieldRequestID) }

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
