package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"codepad/internal/playground/notify"
)

func TestWriterNotifier(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		note notify.Notification
		want string
	}{
		{name: "success", note: notify.New(notify.LevelSuccess, "Run finished", "3 lines in 12 ms", now), want: "[ok] Run finished: 3 lines in 12 ms\n"},
		{name: "error", note: notify.New(notify.LevelError, "Run failed", "RuntimeError: boom (line 1)", now), want: "[error] Run failed: RuntimeError: boom (line 1)\n"},
		{name: "no message", note: notify.New(notify.LevelInfo, "Runtime ready", "", now), want: "[info] Runtime ready\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := notify.NewWriterNotifier(&buf).Notify(context.Background(), tt.note); err != nil {
				t.Fatalf("notify failed: %v", err)
			}
			if buf.String() != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestNewTTL(t *testing.T) {
	if n := notify.New(notify.LevelSuccess, "", "", time.Time{}); n.TTL != notify.DefaultTTL {
		t.Fatalf("unexpected success ttl %v", n.TTL)
	}
	if n := notify.New(notify.LevelError, "", "", time.Time{}); n.TTL != notify.DefaultErrorTTL {
		t.Fatalf("unexpected error ttl %v", n.TTL)
	}
}

type recordingNotifier struct {
	got []notify.Notification
	err error
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("socket closed")}
	ok := &recordingNotifier{}
	m := notify.Multi{failing, nil, ok}

	err := m.Notify(context.Background(), notify.New(notify.LevelWarning, "Please enter some code to run.", "", time.Time{}))
	if err == nil {
		t.Fatalf("expected first error to be returned")
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Fatalf("expected both targets to be called, got %d and %d", len(failing.got), len(ok.got))
	}
}
