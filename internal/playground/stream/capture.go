// Package stream accumulates the interpreter's stdout and stderr for one run.
package stream

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"codepad/internal/playground/lifecycle"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// Kind names an output stream.
type Kind string

const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
)

// TruncationNotice is appended once when output exceeds the limit.
const TruncationNotice = "\n[output truncated]\n"

// Chunk is one write observed by a sink, numbered in arrival order within a run.
type Chunk struct {
	Stream Kind   `json:"stream"`
	Text   string `json:"text"`
	Seq    uint64 `json:"seq"`
}

// Buffers is a snapshot of both streams.
type Buffers struct {
	Stdout    string
	Stderr    string
	Truncated bool
}

// Listener receives each accepted chunk. It is called after the capture and the
// guard are unlocked, so it may block or call back into the capture; Seq gives
// the program order.
type Listener func(Chunk)

// Capture owns the two append-only buffers. Writes are accepted only between
// Begin and End and only while the view is mounted.
type Capture struct {
	guard    *lifecycle.Guard
	maxBytes int
	listener Listener

	mu        sync.Mutex
	token     lifecycle.Token
	active    bool
	stdout    strings.Builder
	stderr    strings.Builder
	written   int
	seq       uint64
	truncated bool
}

// Options configures a Capture.
type Options struct {
	// MaxBytes caps combined output per run; 0 means unlimited.
	MaxBytes int
	Listener Listener
}

// NewCapture creates a capture bound to guard.
func NewCapture(guard *lifecycle.Guard, opts Options) *Capture {
	return &Capture{guard: guard, maxBytes: opts.MaxBytes, listener: opts.Listener}
}

// Begin clears both buffers for a new run started under token.
func (c *Capture) Begin(token lifecycle.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stdout.Reset()
	c.stderr.Reset()
	c.written = 0
	c.seq = 0
	c.truncated = false
	c.token = token
	c.active = true
}

// End closes the run and returns the final buffers.
func (c *Capture) End() Buffers {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return c.snapshotLocked()
}

// Snapshot returns the buffers without closing the run.
func (c *Capture) Snapshot() Buffers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// WriteStdout is the stdout sink.
func (c *Capture) WriteStdout(text string) {
	c.write(Stdout, text)
}

// WriteStderr is the stderr sink.
func (c *Capture) WriteStderr(text string) {
	c.write(Stderr, text)
}

// Diagnose appends the normalized failure text to stderr. It ignores the output
// limit so the failure stays visible after a truncated run.
func (c *Capture) Diagnose(text string) {
	c.mu.Lock()
	if !c.active || text == "" {
		c.mu.Unlock()
		return
	}
	var chunk *Chunk
	c.guard.Do(context.Background(), c.token, "stream.diagnostic", func() {
		if c.stderr.Len() > 0 && !strings.HasSuffix(c.stderr.String(), "\n") {
			text = "\n" + text
		}
		chunk = c.emitLocked(Stderr, text)
	})
	c.mu.Unlock()
	c.notify(chunk)
}

func (c *Capture) write(kind Kind, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		logger.Debug(context.Background(), "output outside of a run dropped", zap.String("stream", string(kind)), zap.Int("bytes", len(text)))
		return
	}
	var chunk *Chunk
	c.guard.Do(context.Background(), c.token, "stream."+string(kind), func() {
		chunk = c.appendLocked(kind, text)
	})
	c.mu.Unlock()
	c.notify(chunk)
}

func (c *Capture) appendLocked(kind Kind, text string) *Chunk {
	if c.truncated {
		return nil
	}
	if c.maxBytes > 0 && c.written+len(text) > c.maxBytes {
		cut := c.maxBytes - c.written
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationNotice
		c.truncated = true
	}
	c.written += len(text)
	return c.emitLocked(kind, text)
}

// emitLocked appends text and returns the chunk to hand to the listener.
func (c *Capture) emitLocked(kind Kind, text string) *Chunk {
	if kind == Stderr {
		c.stderr.WriteString(text)
	} else {
		c.stdout.WriteString(text)
	}
	c.seq++
	return &Chunk{Stream: kind, Text: text, Seq: c.seq}
}

func (c *Capture) notify(chunk *Chunk) {
	if chunk != nil && c.listener != nil {
		c.listener(*chunk)
	}
}

func (c *Capture) snapshotLocked() Buffers {
	return Buffers{
		Stdout:    c.stdout.String(),
		Stderr:    c.stderr.String(),
		Truncated: c.truncated,
	}
}
