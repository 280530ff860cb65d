package stream_test

import (
	"strings"
	"testing"
	"time"

	"codepad/internal/playground/lifecycle"
	"codepad/internal/playground/stream"
)

func TestCaptureAccumulatesInOrder(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()

	var chunks []stream.Chunk
	c := stream.NewCapture(guard, stream.Options{Listener: func(ch stream.Chunk) {
		chunks = append(chunks, ch)
	}})

	c.Begin(tok)
	c.WriteStdout("a\n")
	c.WriteStderr("warn\n")
	c.WriteStdout("b\n")
	buf := c.End()

	if buf.Stdout != "a\nb\n" {
		t.Fatalf("unexpected stdout %q", buf.Stdout)
	}
	if buf.Stderr != "warn\n" {
		t.Fatalf("unexpected stderr %q", buf.Stderr)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Seq != uint64(i+1) {
			t.Fatalf("chunk %d has seq %d", i, ch.Seq)
		}
	}
	if chunks[1].Stream != stream.Stderr || chunks[1].Text != "warn\n" {
		t.Fatalf("unexpected second chunk %+v", chunks[1])
	}
}

func TestCaptureBeginResetsBuffers(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()
	c := stream.NewCapture(guard, stream.Options{})

	c.Begin(tok)
	c.WriteStdout("first\n")
	c.End()

	c.Begin(tok)
	c.WriteStdout("second\n")
	buf := c.End()
	if buf.Stdout != "second\n" {
		t.Fatalf("expected buffers reset between runs, got %q", buf.Stdout)
	}
}

func TestCaptureDropsWritesOutsideRun(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()
	c := stream.NewCapture(guard, stream.Options{})

	c.WriteStdout("before\n")
	c.Begin(tok)
	c.End()
	c.WriteStdout("after\n")

	if got := c.Snapshot().Stdout; got != "" {
		t.Fatalf("expected no output outside a run, got %q", got)
	}
}

func TestCaptureDropsWritesAfterDetach(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()
	calls := 0
	c := stream.NewCapture(guard, stream.Options{Listener: func(stream.Chunk) { calls++ }})

	c.Begin(tok)
	c.WriteStdout("kept\n")
	guard.Detach()
	c.WriteStdout("late\n")
	c.WriteStderr("late\n")
	c.Diagnose("RuntimeError: late")

	buf := c.End()
	if buf.Stdout != "kept\n" || buf.Stderr != "" {
		t.Fatalf("expected writes after detach to be dropped, got %+v", buf)
	}
	if calls != 1 {
		t.Fatalf("expected one listener call, got %d", calls)
	}
}

func TestCaptureTruncatesAtLimit(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()
	c := stream.NewCapture(guard, stream.Options{MaxBytes: 10})

	c.Begin(tok)
	c.WriteStdout("12345678")
	c.WriteStdout("90abcdef")
	c.WriteStdout("ignored")
	c.Diagnose("RuntimeError: boom")
	buf := c.End()

	if !buf.Truncated {
		t.Fatalf("expected truncated output")
	}
	if buf.Stdout != "1234567890"+stream.TruncationNotice {
		t.Fatalf("unexpected stdout %q", buf.Stdout)
	}
	if !strings.Contains(buf.Stderr, "RuntimeError: boom") {
		t.Fatalf("diagnostic must survive truncation, got %q", buf.Stderr)
	}
}

func TestCaptureTruncationKeepsRunesWhole(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()
	c := stream.NewCapture(guard, stream.Options{MaxBytes: 4})

	c.Begin(tok)
	c.WriteStdout("abéé")
	buf := c.End()
	if buf.Stdout != "abé"+stream.TruncationNotice {
		t.Fatalf("unexpected stdout %q", buf.Stdout)
	}
}

func TestCaptureListenerMayReenter(t *testing.T) {
	guard := lifecycle.New()
	tok := guard.Attach()

	var c *stream.Capture
	var seen []string
	c = stream.NewCapture(guard, stream.Options{Listener: func(ch stream.Chunk) {
		seen = append(seen, c.Snapshot().Stdout)
		if ch.Seq == 1 {
			guard.Detach()
		}
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Begin(tok)
		c.WriteStdout("a")
		c.WriteStdout("b")
		c.Diagnose("RuntimeError: late")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("listener calling into the capture and guard deadlocked")
	}

	if len(seen) != 1 || seen[0] != "a" {
		t.Fatalf("expected one chunk before detach, got %q", seen)
	}
	if buf := c.End(); buf.Stdout != "a" || buf.Stderr != "" {
		t.Fatalf("writes after detach must be dropped, got %+v", buf)
	}
}
