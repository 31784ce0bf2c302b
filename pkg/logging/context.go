package logging

import (
	"context"
)

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	InstanceTagKey = "instance_tag"
	IntegrationKey = "integration"
)

type ctxKey string

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ctxKey(MessageIDKey), messageID)
}

// WithInstanceTag marks every log line emitted on behalf of a pipeline instance.
func WithInstanceTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, ctxKey(InstanceTagKey), tag)
}

func WithIntegration(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKey(IntegrationKey), name)
}

func value(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return value(ctx, MessageIDKey)
}

func GetInstanceTag(ctx context.Context) string {
	return value(ctx, InstanceTagKey)
}

func GetIntegration(ctx context.Context) string {
	return value(ctx, IntegrationKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []string{TraceIDKey, MessageIDKey, InstanceTagKey, IntegrationKey} {
		if v := value(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
