package runtime

import (
	"context"
	"fmt"
	"time"

	"codepad/internal/playground/lifecycle"
	"codepad/internal/playground/observer"
	appErr "codepad/pkg/errors"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// LoadTimeout bounds fetching and booting the bundle; 0 means no limit.
	LoadTimeout time.Duration
	State       Options
	Metrics     observer.Recorder
}

// Loader acquires and boots interpreters from one bootstrap source.
type Loader struct {
	source  BootstrapSource
	timeout time.Duration
	opts    Options
	metrics observer.Recorder
}

// NewLoader creates a loader reading from source.
func NewLoader(source BootstrapSource, cfg LoaderConfig) *Loader {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observer.Nop{}
	}
	return &Loader{source: source, timeout: cfg.LoadTimeout, opts: cfg.State, metrics: metrics}
}

// Source returns the bootstrap source.
func (l *Loader) Source() BootstrapSource {
	return l.source
}

// Initialize drives inst from Uninitialized (or Failed) through Loading to Ready
// or Failed. It blocks until the load settles; callers run it on its own
// goroutine. A call while inst is Loading or Ready does nothing. Every state
// change is applied through guard under token, so a view detached mid-load
// never sees a transition and the half-built interpreter is discarded.
func (l *Loader) Initialize(ctx context.Context, guard *lifecycle.Guard, token lifecycle.Token, inst *Instance) error {
	started, err := l.Begin(ctx, guard, token, inst)
	if err != nil || !started {
		return err
	}
	return l.Complete(ctx, guard, token, inst)
}

// Begin moves inst to Loading and reports whether this call owns the load.
// A caller that got true must follow up with Complete.
func (l *Loader) Begin(ctx context.Context, guard *lifecycle.Guard, token lifecycle.Token, inst *Instance) (bool, error) {
	started := false
	if !guard.Do(ctx, token, "runtime.begin", func() {
		started = inst.beginLoad(l.source.Describe())
	}) {
		return false, appErr.New(appErr.ViewDetached)
	}
	if !started {
		logger.Debug(ctx, "runtime load already in progress or done", zap.String("status", string(inst.Status())))
	}
	return started, nil
}

// Complete fetches the bundle, boots the interpreter and settles inst.
func (l *Loader) Complete(ctx context.Context, guard *lifecycle.Guard, token lifecycle.Token, inst *Instance) error {
	start := time.Now()
	logger.Info(ctx, "runtime loading", zap.String("source", l.source.Describe()))

	vm, loadErr := l.load(ctx, inst.sinks)
	elapsed := time.Since(start)
	l.metrics.ObserveLoad(ctx, l.source.Describe(), loadErr == nil, elapsed)

	installed := false
	applied := guard.Do(ctx, token, "runtime.settle", func() {
		if loadErr != nil {
			inst.failLoad(l.diagnostic(loadErr))
			return
		}
		installed = inst.finishLoad(vm)
	})
	if vm != nil && !installed {
		vm.Close()
	}
	if !applied {
		return appErr.New(appErr.ViewDetached)
	}
	if loadErr != nil {
		logger.Warn(ctx, "runtime load failed", zap.String("source", l.source.Describe()), zap.Error(loadErr), zap.Duration("elapsed", elapsed))
		return appErr.Wrapf(loadErr, appErr.RuntimeLoadFailed, "%s", l.diagnostic(loadErr))
	}
	if !installed {
		return appErr.New(appErr.RuntimeDisposed)
	}
	logger.Info(ctx, "runtime ready", zap.String("source", l.source.Describe()), zap.Duration("elapsed", elapsed))
	return nil
}

func (l *Loader) load(ctx context.Context, sinks Sinks) (*luaVM, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	bundle, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return newLuaState(bundle, sinks, l.opts)
}

// diagnostic is the user-facing load failure text.
func (l *Loader) diagnostic(err error) string {
	hint := "Check that the runtime bundle is installed correctly, then reload."
	switch l.source.(type) {
	case HTTPSource, ObjectSource:
		hint = "Check your network connection, then reload."
	}
	return fmt.Sprintf("Failed to load the runtime from %s: %v. %s", l.source.Describe(), err, hint)
}
