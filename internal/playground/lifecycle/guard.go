// Package lifecycle tracks whether the hosting view is still mounted so that
// late async continuations can be dropped instead of mutating a detached view.
package lifecycle

import (
	"context"
	"sync"

	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// Token identifies the mount generation a continuation was started under.
type Token uint64

// Guard is a generation counter plus a mounted flag. Every Attach and Detach
// bumps the generation, so a token from an earlier mount never validates again.
type Guard struct {
	mu         sync.Mutex
	mounted    bool
	generation uint64
	suppressed uint64
}

// New returns a detached guard.
func New() *Guard {
	return &Guard{}
}

// Attach marks the view mounted and returns the token for this mount.
func (g *Guard) Attach() Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.mounted = true
	return Token(g.generation)
}

// Detach marks the view unmounted. Once it returns, no Do callback is running
// and none will run for any earlier token.
func (g *Guard) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return
	}
	g.generation++
	g.mounted = false
}

// Mounted reports whether the view is attached.
func (g *Guard) Mounted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mounted
}

// Current returns the token of the active mount, or 0 when detached.
func (g *Guard) Current() Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return 0
	}
	return Token(g.generation)
}

// Valid reports whether t still belongs to the active mount.
func (g *Guard) Valid(t Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validLocked(t)
}

// Do runs fn only if t is valid, holding the guard for the duration of fn.
// fn must not call back into the guard.
func (g *Guard) Do(ctx context.Context, t Token, what string, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.validLocked(t) {
		g.suppressed++
		logger.Debug(ctx, "stale callback suppressed",
			zap.String("callback", what),
			zap.Uint64("token", uint64(t)),
			zap.Uint64("generation", g.generation),
		)
		return false
	}
	fn()
	return true
}

// Suppressed returns how many continuations were dropped.
func (g *Guard) Suppressed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

func (g *Guard) validLocked(t Token) bool {
	return g.mounted && t != 0 && uint64(t) == g.generation
}
