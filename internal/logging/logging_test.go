package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"debug level text", Config{Level: "debug", Format: "text"}, "level=INFO"},
		{"info level json", Config{Level: "info", Format: "json"}, `"level":"INFO"`},
		{"default level", Config{Level: "invalid", Format: "text"}, "level=INFO"},
	}
	defer slog.SetDefault(slog.Default())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf
			Init(tt.config).Info("test message")
			if !strings.Contains(buf.String(), tt.want) {
				t.Fatalf("unexpected output %q", buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warn") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithActorID(WithRequestID(context.Background(), "req-123"), "u42")

	WithContext(ctx, base).Info("hello")
	out := buf.String()
	if !strings.Contains(out, "request_id=req-123") || !strings.Contains(out, "actor_id=u42") {
		t.Fatalf("missing context attributes: %q", out)
	}

	buf.Reset()
	WithContext(context.Background(), base).Info("bare")
	if strings.Contains(buf.String(), "request_id") {
		t.Fatalf("unexpected request id: %q", buf.String())
	}
}
