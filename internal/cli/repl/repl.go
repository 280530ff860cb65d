// Package repl is the terminal host: an edit buffer fed line by line, with
// colon commands to run, inspect and reload.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"codepad/internal/playground/runtime"
	"codepad/internal/playground/stream"
	"codepad/internal/playground/view"
	appErr "codepad/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	Prompt   = "codepad> "
	maxUndos = 100
)

// LineReader yields one input line per call; *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
}

// Session holds REPL state for one view.
type Session struct {
	out  *terminal
	view *view.View

	mu         sync.Mutex
	undo       []string
	lastStatus runtime.Status
}

// New creates a session writing to out. Attach a view before Start.
func New(out io.Writer) *Session {
	return &Session{out: &terminal{w: out, atLineStart: true}}
}

// Output is the serialized writer the session prints through; share it with
// notifiers so lines never interleave.
func (s *Session) Output() io.Writer {
	return s.out
}

// Listener renders view events on the terminal.
func (s *Session) Listener() view.Listener {
	return s.onEvent
}

// Attach binds the view the commands act on.
func (s *Session) Attach(v *view.View) {
	s.view = v
}

// Start mounts the view. The runtime keeps loading in the background.
func (s *Session) Start(ctx context.Context) error {
	if err := s.view.Mount(ctx); err != nil {
		return err
	}
	if draft := s.view.Draft(); draft != "" {
		s.printLine("restored draft (%s), :show to view", pluralLines(lineCount(draft)))
	}
	return nil
}

// Close unmounts the view.
func (s *Session) Close(ctx context.Context) {
	s.view.Unmount(ctx)
}

// Run reads lines until :quit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, in LineReader) error {
	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if s.Handle(ctx, line) {
			return nil
		}
	}
}

// Handle processes one input line and reports whether the session should end.
func (s *Session) Handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if !isCommand(trimmed) {
		s.appendLine(ctx, line)
		return false
	}

	tokens, err := shlex.Split(trimmed)
	if err != nil {
		s.printLine("parse command failed: %v", err)
		return false
	}
	args := tokens[1:]
	switch tokens[0] {
	case ":quit", ":q", ":exit":
		s.printLine("bye")
		return true
	case ":help", ":h":
		s.printHelp()
	case ":run", ":r":
		s.run(ctx)
	case ":show", ":s":
		s.show()
	case ":clear":
		s.replace(ctx, "")
		s.printLine("buffer cleared")
	case ":undo", ":u":
		s.undoEdit(ctx)
	case ":load":
		s.load(ctx, args)
	case ":status":
		s.status()
	case ":reload":
		if err := s.view.Reload(ctx); err != nil {
			s.printError(err)
			return false
		}
		s.printLine("reloading runtime")
	default:
		s.printLine("unknown command %s, type :help", tokens[0])
	}
	return false
}

// isCommand treats ":word" as a command; "::label::" stays Lua.
func isCommand(line string) bool {
	return strings.HasPrefix(line, ":") && !strings.HasPrefix(line, "::") && len(line) > 1
}

func (s *Session) appendLine(ctx context.Context, line string) {
	text := s.view.Draft()
	if text == "" {
		text = line
	} else {
		text = text + "\n" + line
	}
	s.replace(ctx, text)
}

func (s *Session) replace(ctx context.Context, text string) {
	prev := s.view.Draft()
	if prev == text {
		return
	}
	s.mu.Lock()
	s.undo = append(s.undo, prev)
	if len(s.undo) > maxUndos {
		s.undo = s.undo[len(s.undo)-maxUndos:]
	}
	s.mu.Unlock()
	s.edit(ctx, text)
}

func (s *Session) edit(ctx context.Context, text string) {
	if err := s.view.Edit(ctx, text); err != nil {
		if appErr.Is(err, appErr.DraftSaveFailed) {
			s.printLine("[warn] draft not saved: %v", err)
			return
		}
		s.printError(err)
	}
}

func (s *Session) undoEdit(ctx context.Context) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		s.printLine("nothing to undo")
		return
	}
	prev := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.mu.Unlock()
	s.edit(ctx, prev)
	s.printLine("undone, buffer has %s", pluralLines(lineCount(prev)))
}

func (s *Session) load(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.printLine("usage: :load <file>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		s.printLine("load file failed: %v", err)
		return
	}
	text := strings.TrimSuffix(string(data), "\n")
	s.replace(ctx, text)
	s.printLine("loaded %s from %s", pluralLines(lineCount(text)), args[0])
}

func (s *Session) run(ctx context.Context) {
	if st := s.view.State(); st.Status == string(runtime.StatusLoading) {
		s.printLine("waiting for runtime...")
		if _, err := s.view.WaitReady(ctx); err != nil {
			s.printError(err)
			return
		}
	}
	if _, err := s.view.Run(ctx, s.view.Draft()); err != nil {
		s.out.finishLine()
		s.printError(err)
		return
	}
	s.out.finishLine()
}

func (s *Session) show() {
	text := s.view.Draft()
	if text == "" {
		s.printLine("(empty)")
		return
	}
	for i, line := range strings.Split(text, "\n") {
		s.printLine("%3d  %s", i+1, line)
	}
}

func (s *Session) status() {
	st := s.view.State()
	s.printLine("runtime: %s, phase: %s", st.Status, st.Phase)
	if st.LoadError != "" {
		s.printLine("load error: %s", st.LoadError)
	}
	if st.Outcome != nil {
		s.printLine("last run: %s", *st.Outcome)
	}
}

func (s *Session) onEvent(ev view.Event) {
	switch ev.Type {
	case view.EventStdout, view.EventStderr:
		if chunk, ok := ev.Data.(stream.Chunk); ok {
			_, _ = io.WriteString(s.out, chunk.Text)
		}
	case view.EventStatus:
		data, ok := ev.Data.(view.StatusData)
		if !ok {
			return
		}
		s.mu.Lock()
		changed := data.Status != s.lastStatus
		s.lastStatus = data.Status
		s.mu.Unlock()
		if !changed {
			return
		}
		switch data.Status {
		case runtime.StatusReady:
			s.printLine("runtime ready")
		case runtime.StatusFailed:
			s.printLine("[error] runtime failed to load: %s", data.LoadError)
			s.printLine("type :reload to retry")
		}
	}
}

func (s *Session) printError(err error) {
	s.printLine("[error] %s", appErr.GetError(err).Error())
}

func (s *Session) printHelp() {
	s.printLine("type Lua code line by line; it is added to the edit buffer")
	s.printLine("commands:")
	s.printLine("  :run            run the buffer")
	s.printLine("  :show           print the buffer with line numbers")
	s.printLine("  :clear          empty the buffer")
	s.printLine("  :undo           revert the last edit")
	s.printLine("  :load <file>    replace the buffer with a file")
	s.printLine("  :status         show runtime status")
	s.printLine("  :reload         retry a failed runtime load")
	s.printLine("  :help | :quit")
}

func (s *Session) printLine(format string, args ...interface{}) {
	s.out.finishLine()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

func pluralLines(n int) string {
	if n == 1 {
		return "1 line"
	}
	return fmt.Sprintf("%d lines", n)
}

// terminal serializes writes and remembers whether the cursor is at the
// start of a line.
type terminal struct {
	mu          sync.Mutex
	w           io.Writer
	atLineStart bool
}

func (t *terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p) > 0 {
		t.atLineStart = p[len(p)-1] == '\n'
	}
	return t.w.Write(p)
}

// finishLine ends a partial line left by script output.
func (t *terminal) finishLine() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.atLineStart {
		_, _ = io.WriteString(t.w, "\n")
		t.atLineStart = true
	}
}
