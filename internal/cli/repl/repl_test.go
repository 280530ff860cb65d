package repl_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codepad/internal/cli/repl"
	"codepad/internal/playground/notify"
	"codepad/internal/playground/reporter"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/view"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type flakySource struct {
	mu    sync.Mutex
	fails int
}

func (s *flakySource) Describe() string { return "flaky" }

func (s *flakySource) Fetch(ctx context.Context) (*runtime.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("network unreachable")
	}
	return runtime.EmbeddedBundle()
}

func newSession(t *testing.T, source runtime.BootstrapSource) (*repl.Session, *view.View, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	s := repl.New(out)
	rep := reporter.New(reporter.Config{Notifier: notify.NewWriterNotifier(s.Output())})
	v := view.New(view.Config{
		Loader:      runtime.NewLoader(source, runtime.LoaderConfig{}),
		Reporter:    rep,
		ExecTimeout: 2 * time.Second,
		Listener:    s.Listener(),
	})
	s.Attach(v)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, v, out
}

func waitReady(t *testing.T, v *view.View) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := v.WaitReady(ctx)
	if err != nil || status != runtime.StatusReady {
		t.Fatalf("runtime not ready: %s %v", status, err)
	}
}

func TestRunBuffer(t *testing.T) {
	s, v, out := newSession(t, runtime.EmbeddedSource{})
	waitReady(t, v)
	ctx := context.Background()

	s.Handle(ctx, "x = 21")
	s.Handle(ctx, "print(x * 2)")
	if v.Draft() != "x = 21\nprint(x * 2)" {
		t.Fatalf("unexpected buffer %q", v.Draft())
	}
	s.Handle(ctx, ":run")
	got := out.String()
	if !strings.Contains(got, "42\n") || !strings.Contains(got, "[ok] Run succeeded") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestRunReportsProblems(t *testing.T) {
	s, v, out := newSession(t, runtime.EmbeddedSource{})
	waitReady(t, v)
	ctx := context.Background()

	s.Handle(ctx, ":run")
	if !strings.Contains(out.String(), "[warn] Please enter some code to run.") {
		t.Fatalf("expected empty source warning:\n%s", out.String())
	}

	s.Handle(ctx, "error('boom')")
	s.Handle(ctx, ":run")
	got := out.String()
	if !strings.Contains(got, "boom") || !strings.Contains(got, "[error] Run failed") {
		t.Fatalf("expected run failure:\n%s", got)
	}

	s.Handle(ctx, ":reload")
	if !strings.Contains(out.String(), "[error] Runtime can only be reloaded after a failed load") {
		t.Fatalf("reload of a ready runtime should be refused:\n%s", out.String())
	}
}

func TestEditCommands(t *testing.T) {
	s, v, out := newSession(t, runtime.EmbeddedSource{})
	ctx := context.Background()

	s.Handle(ctx, "a = 1")
	s.Handle(ctx, "b = 2")
	s.Handle(ctx, ":show")
	if !strings.Contains(out.String(), "  1  a = 1\n  2  b = 2\n") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}

	steps := []struct {
		line string
		want string
	}{
		{":undo", "a = 1"},
		{":clear", ""},
		{":undo", "a = 1"},
		{":undo", ""},
		{"::top::", "::top::"},
	}
	for _, step := range steps {
		s.Handle(ctx, step.line)
		if v.Draft() != step.want {
			t.Fatalf("after %s expected %q, got %q", step.line, step.want, v.Draft())
		}
	}

	s.Handle(ctx, ":clear")
	s.Handle(ctx, ":undo")
	s.Handle(ctx, ":undo")
	s.Handle(ctx, ":undo")
	s.Handle(ctx, ":undo")
	if !strings.Contains(out.String(), "nothing to undo") {
		t.Fatalf("expected empty undo stack:\n%s", out.String())
	}

	s.Handle(ctx, ":bogus")
	if !strings.Contains(out.String(), "unknown command :bogus") {
		t.Fatalf("expected unknown command:\n%s", out.String())
	}
}

func TestLoadFile(t *testing.T) {
	s, v, out := newSession(t, runtime.EmbeddedSource{})
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "hello world.lua")
	if err := os.WriteFile(path, []byte("print('from file')\nprint(2)\n"), 0o600); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
	s.Handle(ctx, `:load "`+path+`"`)
	if v.Draft() != "print('from file')\nprint(2)" {
		t.Fatalf("unexpected buffer %q", v.Draft())
	}
	if !strings.Contains(out.String(), "loaded 2 lines") {
		t.Fatalf("expected load message:\n%s", out.String())
	}

	s.Handle(ctx, ":load")
	s.Handle(ctx, ":load "+filepath.Join(t.TempDir(), "missing.lua"))
	got := out.String()
	if !strings.Contains(got, "usage: :load <file>") || !strings.Contains(got, "load file failed") {
		t.Fatalf("expected load errors:\n%s", got)
	}
}

func TestFailedLoadThenReload(t *testing.T) {
	s, v, out := newSession(t, &flakySource{fails: 1})
	ctx := context.Background()

	if status, _ := v.WaitReady(ctx); status != runtime.StatusFailed {
		t.Fatalf("expected failed load, got %s", status)
	}
	s.Handle(ctx, "print('after reload')")
	s.Handle(ctx, ":run")
	s.Handle(ctx, ":status")
	got := out.String()
	if !strings.Contains(got, "[error] Runtime is not ready yet") || !strings.Contains(got, "runtime: Failed") {
		t.Fatalf("expected not ready:\n%s", got)
	}

	s.Handle(ctx, ":reload")
	waitReady(t, v)
	s.Handle(ctx, ":run")
	got = out.String()
	if !strings.Contains(got, "reloading runtime") || !strings.Contains(got, "after reload\n") {
		t.Fatalf("expected run after reload:\n%s", got)
	}
}

type scriptedReader struct {
	lines []string
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func TestRunLoop(t *testing.T) {
	s, v, out := newSession(t, runtime.EmbeddedSource{})
	waitReady(t, v)

	in := &scriptedReader{lines: []string{"print('loop')", ":run", ":quit", "print('never')"}}
	if err := s.Run(context.Background(), in); err != nil {
		t.Fatalf("run loop failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "loop\n") || !strings.Contains(got, "bye") {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if len(in.lines) != 1 {
		t.Fatalf("loop should stop at :quit, %d lines left", len(in.lines))
	}

	if err := s.Run(context.Background(), &scriptedReader{}); err != nil {
		t.Fatalf("EOF should end the loop cleanly: %v", err)
	}
}
