// Package wrapper turns user source into the form the runtime harness invokes.
package wrapper

import "strings"

const (
	// HarnessFunc is defined by the bundle prelude and captured by the host
	// at boot. It calls the user function under xpcall and returns nil or a
	// normalized error table.
	HarnessFunc = "__codepad_run"

	// ChunkName appears in interpreter positions, e.g. "main:3: boom".
	ChunkName = "main"
)

// Source is wrapped code ready for the runtime.
type Source struct {
	Text      string
	ChunkName string
	// Original is the unwrapped user text.
	Original string
}

// Wrap places source inside a function body the chunk returns. The header
// shares the first line with user code so line numbers in diagnostics match the
// editor. The closing end sits on its own line so a trailing line comment
// cannot swallow it.
func Wrap(source string) Source {
	var b strings.Builder
	b.Grow(len(source) + 64)
	b.WriteString("return function(...) ")
	b.WriteString(source)
	b.WriteString("\nend")
	return Source{Text: b.String(), ChunkName: ChunkName, Original: source}
}
