package wrapper_test

import (
	"strings"
	"testing"

	"codepad/internal/playground/wrapper"
)

func TestWrapKeepsSourceVerbatim(t *testing.T) {
	src := "local x = 1\nprint(x) -- trailing comment"
	w := wrapper.Wrap(src)

	if !strings.Contains(w.Text, src) {
		t.Fatalf("wrapped text lost the source: %q", w.Text)
	}
	if w.Original != src {
		t.Fatalf("expected original to be kept")
	}
	if w.ChunkName != wrapper.ChunkName {
		t.Fatalf("unexpected chunk name %q", w.ChunkName)
	}
	if !strings.HasPrefix(w.Text, "return function(...) ") {
		t.Fatalf("expected function header prefix, got %q", w.Text)
	}
	if strings.Contains(w.Text, wrapper.HarnessFunc) {
		t.Fatalf("harness must not be named in the chunk: %q", w.Text)
	}
	if !strings.HasSuffix(w.Text, "\nend") {
		t.Fatalf("expected closing end on its own line, got %q", w.Text)
	}
}

func TestWrapPreservesLineNumbers(t *testing.T) {
	src := "a = 1\nb = 2\nerror('x')"
	w := wrapper.Wrap(src)

	lines := strings.Split(w.Text, "\n")
	if !strings.HasSuffix(lines[0], "a = 1") {
		t.Fatalf("user line 1 must stay on line 1, got %q", lines[0])
	}
	if lines[2] != "error('x')" {
		t.Fatalf("user line 3 must stay on line 3, got %q", lines[2])
	}
	if len(lines) != 4 {
		t.Fatalf("expected one extra line for the closing end, got %d", len(lines))
	}
}
