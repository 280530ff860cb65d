// Package notify delivers transient success and failure messages to the user.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Default display times per level.
const (
	DefaultTTL      = 3 * time.Second
	DefaultErrorTTL = 6 * time.Second
)

// Notification is one transient message.
type Notification struct {
	Level     Level         `json:"level"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
}

// New builds a notification with the default TTL for level.
func New(level Level, title, message string, now time.Time) Notification {
	ttl := DefaultTTL
	if level == LevelError || level == LevelWarning {
		ttl = DefaultErrorTTL
	}
	return Notification{Level: level, Title: title, Message: message, TTL: ttl, CreatedAt: now}
}

// Notifier shows notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// WriterNotifier renders notifications as single lines on a terminal.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier writes to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(ctx context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	line := fmt.Sprintf("%s %s", badge(note.Level), note.Title)
	if note.Message != "" {
		line += ": " + note.Message
	}
	_, err := fmt.Fprintln(n.w, line)
	return err
}

func badge(level Level) string {
	switch level {
	case LevelSuccess:
		return "[ok]"
	case LevelWarning:
		return "[warn]"
	case LevelError:
		return "[error]"
	default:
		return "[info]"
	}
}

// Multi fans a notification out to several notifiers. A failing target is
// logged and does not stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			logger.Warn(ctx, "notification delivery failed", zap.String("level", string(n.Level)), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
