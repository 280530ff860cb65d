// Package view hosts one playground: it owns the lifecycle guard, the runtime
// instance, the capture buffers and the draft, and drives the run state machine.
package view

import (
	"context"
	"sync"
	"time"

	"codepad/internal/playground/draft"
	"codepad/internal/playground/lifecycle"
	"codepad/internal/playground/model"
	"codepad/internal/playground/reporter"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/stream"
	"codepad/internal/playground/validator"
	"codepad/internal/playground/wrapper"
	appErr "codepad/pkg/errors"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType names a view update.
type EventType string

const (
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventStatus EventType = "status"
)

// Event is one incremental update pushed to the host.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// StatusData is the payload of an EventStatus.
type StatusData struct {
	Status    runtime.Status `json:"status"`
	Phase     model.Phase    `json:"phase"`
	LoadError string         `json:"loadError,omitempty"`
}

// Listener receives updates. Output events are delivered outside the capture
// lock; their Seq gives the program order.
type Listener func(Event)

// Config wires a View.
type Config struct {
	// ID names the view in logs; a UUID is generated when empty.
	ID        string
	Loader    *runtime.Loader
	Reporter  *reporter.Reporter
	Drafts    draft.Store
	Validator validator.Validator
	// ExecTimeout is the per-run watchdog; 0 disables it.
	ExecTimeout    time.Duration
	MaxOutputBytes int
	Listener       Listener
}

// View is safe for concurrent use. At most one run is in flight; a second
// Run while one is active is rejected with RuntimeBusy.
type View struct {
	id          string
	loader      *runtime.Loader
	reporter    *reporter.Reporter
	drafts      draft.Store
	validator   validator.Validator
	execTimeout time.Duration
	listener    Listener

	guard   *lifecycle.Guard
	capture *stream.Capture
	inst    *runtime.Instance

	ctx    context.Context
	cancel context.CancelFunc

	// lifeMu serializes Mount and Unmount. Order: lifeMu, then guard, then mu.
	lifeMu  sync.Mutex
	mounted bool
	closed  bool

	mu      sync.Mutex
	token   lifecycle.Token
	phase   model.Phase
	outcome *model.Outcome
	source  string
}

// New creates an unmounted view. The runtime is not loaded until Mount.
func New(cfg Config) *View {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	drafts := cfg.Drafts
	if drafts == nil {
		drafts = &draft.Memory{}
	}
	rep := cfg.Reporter
	if rep == nil {
		rep = reporter.New(reporter.Config{})
	}

	v := &View{
		id:          id,
		loader:      cfg.Loader,
		reporter:    rep,
		drafts:      drafts,
		validator:   cfg.Validator,
		execTimeout: cfg.ExecTimeout,
		listener:    cfg.Listener,
		guard:       lifecycle.New(),
		phase:       model.PhaseIdle,
	}
	v.ctx, v.cancel = context.WithCancel(context.WithValue(context.Background(), contextkey.ViewID, id))
	v.capture = stream.NewCapture(v.guard, stream.Options{
		MaxBytes: cfg.MaxOutputBytes,
		Listener: v.forwardChunk,
	})
	v.inst = runtime.NewInstance(runtime.Sinks{
		Stdout: v.capture.WriteStdout,
		Stderr: v.capture.WriteStderr,
	})
	return v
}

// ID returns the view id.
func (v *View) ID() string {
	return v.id
}

// Mount attaches the view, restores the saved draft and starts loading the
// runtime in the background. Mounting a mounted view does nothing; a view
// cannot be mounted again after Unmount.
func (v *View) Mount(ctx context.Context) error {
	v.lifeMu.Lock()
	defer v.lifeMu.Unlock()
	if v.closed {
		return appErr.New(appErr.RuntimeDisposed).WithMessage("view has been unmounted")
	}
	if v.mounted {
		return nil
	}
	if v.loader == nil {
		return appErr.New(appErr.RuntimeNotReady).WithMessage("no runtime loader configured")
	}

	token := v.guard.Attach()
	v.mounted = true
	v.mu.Lock()
	v.token = token
	v.mu.Unlock()

	ctx = v.logContext(ctx)
	text, err := v.drafts.Load(ctx)
	if err != nil {
		logger.Warn(ctx, "draft load failed", zap.Error(err))
	} else {
		v.guard.Do(ctx, token, "view.draft", func() {
			v.mu.Lock()
			v.source = text
			v.mu.Unlock()
		})
	}

	logger.Info(ctx, "view mounted", zap.String("source", v.loader.Source().Describe()))
	v.startLoad(token)
	return nil
}

func (v *View) startLoad(token lifecycle.Token) {
	started, err := v.loader.Begin(v.ctx, v.guard, token, v.inst)
	if err != nil || !started {
		return
	}
	v.emitStatus(token)
	go func() {
		err := v.loader.Complete(v.ctx, v.guard, token, v.inst)
		if err != nil && !appErr.Is(err, appErr.ViewDetached) {
			logger.Warn(v.ctx, "runtime unavailable", zap.Error(err))
		}
		v.emitStatus(token)
	}()
}

// WaitReady blocks until the current load settles or ctx is done and
// returns the resulting status.
func (v *View) WaitReady(ctx context.Context) (runtime.Status, error) {
	select {
	case <-v.inst.Settled():
		return v.inst.Status(), nil
	case <-ctx.Done():
		return v.inst.Status(), appErr.Wrap(ctx.Err(), appErr.Timeout)
	}
}

// Reload retries a failed runtime load. It is refused in every other status.
func (v *View) Reload(ctx context.Context) error {
	v.lifeMu.Lock()
	defer v.lifeMu.Unlock()
	if !v.mounted {
		return appErr.New(appErr.ViewNotMounted)
	}
	status := v.inst.Status()
	if status != runtime.StatusFailed {
		return appErr.New(appErr.RuntimeReloadDenied).WithDetail("status", string(status))
	}
	token := v.guard.Current()
	logger.Info(v.logContext(ctx), "runtime reload requested")
	v.startLoad(token)
	return nil
}

// Edit replaces the editor text and persists it as the draft. The text is kept
// even when persisting fails.
func (v *View) Edit(ctx context.Context, text string) error {
	v.mu.Lock()
	token := v.token
	v.mu.Unlock()

	applied := v.guard.Do(ctx, token, "view.edit", func() {
		v.mu.Lock()
		v.source = text
		v.mu.Unlock()
	})
	if !applied {
		return appErr.New(appErr.ViewNotMounted)
	}
	if err := v.drafts.Save(ctx, text); err != nil {
		logger.Warn(v.logContext(ctx), "draft save failed", zap.Error(err))
		return err
	}
	return nil
}

// Draft returns the current editor text.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

// Run validates, wraps and executes source, then reports the result.
//
// The returned error is set only when no result could be produced: the view
// is not mounted, a run is already in progress, the runtime is not Ready, or
// the view was detached while the run was in flight. A script failure or a
// validation rejection is a normal result.
func (v *View) Run(ctx context.Context, source string) (model.ExecutionResult, error) {
	v.mu.Lock()
	token := v.token
	v.mu.Unlock()
	if !v.guard.Valid(token) {
		return model.ExecutionResult{}, appErr.New(appErr.ViewNotMounted)
	}

	v.mu.Lock()
	if v.phase != model.PhaseIdle {
		phase := v.phase
		v.mu.Unlock()
		return model.ExecutionResult{}, appErr.New(appErr.RuntimeBusy).WithDetail("phase", string(phase))
	}
	v.phase = model.PhaseValidating
	v.mu.Unlock()
	defer v.settle(token)

	if status := v.inst.Status(); status != runtime.StatusReady {
		return model.ExecutionResult{}, appErr.New(appErr.RuntimeNotReady).WithDetail("status", string(status))
	}

	req := model.NewExecutionRequest(source, v.reporter.Now())
	ctx = context.WithValue(v.logContext(ctx), contextkey.RunID, req.ID)

	if check := v.validator.Validate(source); !check.IsValid {
		v.setPhase(token, model.PhaseRejected)
		result := v.reporter.Reject(ctx, req, check)
		v.setOutcome(token, result.Outcome)
		return result, nil
	}

	v.setPhase(token, model.PhaseSubmitted)
	wrapped := wrapper.Wrap(source)

	runCtx := ctx
	if v.execTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, v.execTimeout)
		defer cancel()
	}

	v.capture.Begin(token)
	v.setPhase(token, model.PhaseRunning)
	raw, err := v.inst.Run(runCtx, wrapped)
	if err != nil {
		v.capture.End()
		if !v.guard.Valid(token) {
			return model.ExecutionResult{}, appErr.New(appErr.ViewDetached)
		}
		return model.ExecutionResult{}, err
	}
	if !raw.OK() {
		v.capture.Diagnose(raw.Failure.Diagnostic())
	}
	buffers := v.capture.End()

	if !v.guard.Valid(token) {
		logger.Debug(ctx, "run finished after view detached, result dropped")
		return model.ExecutionResult{}, appErr.New(appErr.ViewDetached)
	}
	result := v.reporter.Finalize(ctx, req, buffers, raw)
	if result.IsError() {
		v.setPhase(token, model.PhaseErrored)
	} else {
		v.setPhase(token, model.PhaseSucceeded)
	}
	v.setOutcome(token, result.Outcome)
	return result, nil
}

// State returns what the host should render.
func (v *View) State() model.ViewState {
	buffers := v.capture.Snapshot()
	v.mu.Lock()
	defer v.mu.Unlock()
	st := model.ViewState{
		Stdout:    buffers.Stdout,
		Status:    string(v.inst.Status()),
		Phase:     v.phase,
		LoadError: v.inst.ErrorMessage(),
		Source:    v.source,
	}
	if buffers.Stderr != "" {
		stderr := buffers.Stderr
		st.Stderr = &stderr
	}
	if v.outcome != nil {
		outcome := *v.outcome
		st.Outcome = &outcome
	}
	return st
}

// Unmount detaches the view and disposes the runtime. Pending loads and runs
// are canceled and their late results are dropped.
func (v *View) Unmount(ctx context.Context) {
	v.lifeMu.Lock()
	defer v.lifeMu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.mounted = false
	v.guard.Detach()
	v.cancel()
	v.inst.Close()
	logger.Info(v.logContext(ctx), "view unmounted", zap.Uint64("suppressed", v.guard.Suppressed()))
}

// settle returns the state machine to Idle. It runs even after detach so a
// late run never leaves the view stuck.
func (v *View) settle(token lifecycle.Token) {
	v.mu.Lock()
	v.phase = model.PhaseIdle
	v.mu.Unlock()
	v.emitStatus(token)
}

func (v *View) setPhase(token lifecycle.Token, phase model.Phase) {
	v.guard.Do(v.ctx, token, "view.phase", func() {
		v.mu.Lock()
		v.phase = phase
		v.mu.Unlock()
	})
	v.emitStatus(token)
}

func (v *View) setOutcome(token lifecycle.Token, outcome model.Outcome) {
	v.guard.Do(v.ctx, token, "view.outcome", func() {
		v.mu.Lock()
		v.outcome = &outcome
		v.mu.Unlock()
	})
}

func (v *View) emitStatus(token lifecycle.Token) {
	if v.listener == nil || !v.guard.Valid(token) {
		return
	}
	v.mu.Lock()
	data := StatusData{Status: v.inst.Status(), Phase: v.phase, LoadError: v.inst.ErrorMessage()}
	v.mu.Unlock()
	v.listener(Event{Type: EventStatus, Data: data})
}

func (v *View) forwardChunk(c stream.Chunk) {
	if v.listener == nil {
		return
	}
	typ := EventStdout
	if c.Stream == stream.Stderr {
		typ = EventStderr
	}
	v.listener(Event{Type: typ, Data: c})
}

func (v *View) logContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextkey.ViewID, v.id)
}
