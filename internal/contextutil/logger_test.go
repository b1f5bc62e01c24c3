package contextutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))

	tests := []struct {
		name       string
		ctx        context.Context
		wantCustom bool
	}{
		{
			name:       "logger in context",
			ctx:        WithLogger(context.Background(), custom),
			wantCustom: true,
		},
		{
			name:       "no logger in context",
			ctx:        context.Background(),
			wantCustom: false,
		},
		{
			name:       "wrong type under key",
			ctx:        context.WithValue(context.Background(), LoggerKey(), "not a logger"),
			wantCustom: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LoggerFromContext(tt.ctx)
			if got == nil {
				t.Fatal("LoggerFromContext() returned nil")
			}
			if (got == custom) != tt.wantCustom {
				t.Errorf("LoggerFromContext() custom = %v, want %v", got == custom, tt.wantCustom)
			}
		})
	}
}

func TestWithLogger_WritesToAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger.With("request_id", "abc"))
	LoggerFromContext(ctx).InfoContext(ctx, "hello")

	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("log output = %q, want request_id attribute", buf.String())
	}
}
