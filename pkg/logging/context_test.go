package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected []interface{}
	}{
		{
			name:     "empty context",
			ctx:      context.Background(),
			expected: []interface{}{},
		},
		{
			name:     "instance and integration",
			ctx:      WithIntegration(WithInstanceTag(context.Background(), "main"), "Segment.io"),
			expected: []interface{}{InstanceTagKey, "main", IntegrationKey, "Segment.io"},
		},
		{
			name: "all fields in fixed order",
			ctx: WithTraceID(
				WithMessageID(WithInstanceTag(context.Background(), "t"), "m-1"),
				"trace-1",
			),
			expected: []interface{}{TraceIDKey, "trace-1", MessageIDKey, "m-1", InstanceTagKey, "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetLogFields(tt.ctx))
		})
	}
}

func TestPlainStringKeysDoNotCollide(t *testing.T) {
	//nolint:staticcheck
	ctx := context.WithValue(context.Background(), MessageIDKey, "foreign")
	assert.Empty(t, GetMessageID(ctx))
}

func TestEarlyLogFatalExits(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := &EarlyLog{out: &buf, exit: func(c int) { code = c }}

	l.Warn("config %s missing", "pulse.yaml")
	l.Fatal("boom")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "WARN: config pulse.yaml missing")
	assert.Contains(t, buf.String(), "FATAL: boom")
}
