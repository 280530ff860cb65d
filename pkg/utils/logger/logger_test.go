package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestContextIDsBecomeFields(t *testing.T) {
	var buf bytes.Buffer
	logger.SetLogger(logger.NewWithWriter("json", zapcore.InfoLevel, &buf))
	t.Cleanup(func() { logger.SetLogger(nil) })

	ctx := context.WithValue(context.Background(), contextkey.SessionID, "s-1")
	ctx = context.WithValue(ctx, contextkey.RunID, "r-9")
	logger.Info(ctx, "run finished", zap.String("outcome", "Success"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line failed: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "run finished" || entry["outcome"] != "Success" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["session_id"] != "s-1" || entry["run_id"] != "r-9" {
		t.Fatalf("context ids missing: %v", entry)
	}
	if _, ok := entry["view_id"]; ok {
		t.Fatalf("absent id should not be logged: %v", entry)
	}
}

func TestLevelFilterAndNilLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.SetLogger(logger.NewWithWriter("json", zapcore.WarnLevel, &buf))
	logger.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.SetLogger(nil)
	logger.Error(context.Background(), "nobody listens")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync without logger: %v", err)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := logger.NewLogger(logger.Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
