// Package runtime boots the embedded Lua interpreter and runs wrapped user code in it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"codepad/internal/playground/wrapper"
	appErr "codepad/pkg/errors"

	lua "github.com/yuin/gopher-lua"
)

// Status is the load state of an instance.
type Status string

const (
	StatusUninitialized Status = "Uninitialized"
	StatusLoading       Status = "Loading"
	StatusReady         Status = "Ready"
	StatusFailed        Status = "Failed"
)

// Error kinds produced by the host rather than the script.
const (
	KindSyntaxError = "SyntaxError"
	KindTimeout     = "TimeoutError"
	KindCanceled    = "Canceled"
	KindInternal    = "InternalError"
)

const errorTag = "codepad.error"

// Sinks receive interpreter output. They are fixed when the instance is created.
type Sinks struct {
	Stdout func(string)
	Stderr func(string)
}

// ScriptError is a normalized failure of user code.
type ScriptError struct {
	Kind    string
	Message string
	// Line is 1-based in the user's source; 0 when unknown.
	Line int
	Code appErr.ErrorCode
}

func (e *ScriptError) Error() string {
	return e.Diagnostic()
}

// Diagnostic is the text written to the stderr buffer.
func (e *ScriptError) Diagnostic() string {
	var b strings.Builder
	b.WriteString(e.Kind)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Line > 0 {
		b.WriteString(" (line ")
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(")")
	}
	return b.String()
}

// RawOutcome is what the interpreter reports for one run.
type RawOutcome struct {
	Failure *ScriptError
}

// OK reports whether the script completed without an uncaught error.
func (o RawOutcome) OK() bool {
	return o.Failure == nil
}

// Instance owns one interpreter. It is created per view, loaded once by a
// Loader and disposed with Close. Only one run may use it at a time.
type Instance struct {
	sinks Sinks

	running atomic.Bool

	mu            sync.Mutex
	status        Status
	errMsg        string
	source        string
	vm            *luaVM
	settled       chan struct{}
	settledClosed bool
	cancelRun     context.CancelFunc
	closed        bool
}

// NewInstance creates an uninitialized instance bound to sinks.
func NewInstance(sinks Sinks) *Instance {
	return &Instance{
		sinks:   sinks,
		status:  StatusUninitialized,
		settled: make(chan struct{}),
	}
}

// Status returns the current load state.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// ErrorMessage returns the load diagnostic when Failed.
func (i *Instance) ErrorMessage() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.errMsg
}

// Source describes where the bundle was loaded from.
func (i *Instance) Source() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.source
}

// Settled is closed once the current load attempt reaches Ready or Failed,
// or when the instance is closed.
func (i *Instance) Settled() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.settled
}

// Busy reports whether a run is in progress.
func (i *Instance) Busy() bool {
	return i.running.Load()
}

// beginLoad moves Uninitialized or Failed to Loading. It returns false while a
// load is already in flight or the instance is Ready or closed.
func (i *Instance) beginLoad(source string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	switch i.status {
	case StatusUninitialized, StatusFailed:
	default:
		return false
	}
	if i.settledClosed {
		i.settled = make(chan struct{})
		i.settledClosed = false
	}
	i.status = StatusLoading
	i.errMsg = ""
	i.source = source
	return true
}

// finishLoad installs the interpreter. It returns false if the instance was
// closed meanwhile; the caller then owns vm.
func (i *Instance) finishLoad(vm *luaVM) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.status != StatusLoading {
		return false
	}
	i.vm = vm
	i.status = StatusReady
	i.settleLocked()
	return true
}

func (i *Instance) failLoad(msg string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.status != StatusLoading {
		return
	}
	i.status = StatusFailed
	i.errMsg = msg
	i.settleLocked()
}

func (i *Instance) settleLocked() {
	if !i.settledClosed {
		close(i.settled)
		i.settledClosed = true
	}
}

// Close disposes the interpreter. A run in progress is canceled and the
// interpreter is released when it returns.
func (i *Instance) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	i.settleLocked()
	if i.cancelRun != nil {
		i.cancelRun()
	}
	if i.vm != nil && !i.running.Load() {
		i.vm.Close()
		i.vm = nil
	}
}

// Run executes wrapped source. The returned error is set only when the run
// could not start (busy, not ready, disposed); script failures are reported
// in RawOutcome.
func (i *Instance) Run(ctx context.Context, src wrapper.Source) (RawOutcome, error) {
	if !i.running.CompareAndSwap(false, true) {
		return RawOutcome{}, appErr.New(appErr.RuntimeBusy)
	}
	defer i.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return RawOutcome{}, appErr.New(appErr.RuntimeDisposed)
	}
	if i.status != StatusReady || i.vm == nil {
		status := i.status
		i.mu.Unlock()
		return RawOutcome{}, appErr.New(appErr.RuntimeNotReady).WithDetail("status", string(status))
	}
	vm := i.vm
	i.cancelRun = cancel
	i.mu.Unlock()

	out := execute(runCtx, vm, src)

	i.mu.Lock()
	i.cancelRun = nil
	if i.closed && i.vm == vm {
		vm.Close()
		i.vm = nil
	}
	i.mu.Unlock()
	return out, nil
}

// execute compiles src into the user function, gives it a fresh global
// environment and calls it through the harness.
func execute(ctx context.Context, vm *luaVM, src wrapper.Source) (out RawOutcome) {
	L := vm.L
	env := vm.runEnv()
	prevEnv := L.Env
	L.Env = env
	defer func() {
		if r := recover(); r != nil {
			out = RawOutcome{Failure: &ScriptError{Kind: KindInternal, Message: fmt.Sprint(r), Code: appErr.ExecutionFailed}}
		}
		L.SetTop(0)
		L.Env = prevEnv
	}()

	L.SetContext(ctx)
	defer L.RemoveContext()

	chunk, err := L.Load(strings.NewReader(src.Text), src.ChunkName)
	if err != nil {
		return RawOutcome{Failure: syntaxFailure(err)}
	}
	L.SetFEnv(chunk, env)
	L.Push(chunk)
	if err := L.PCall(0, 1, nil); err != nil {
		return RawOutcome{Failure: callFailure(ctx, err)}
	}
	userFn, ok := L.Get(-1).(*lua.LFunction)
	L.Pop(1)
	if !ok {
		return RawOutcome{Failure: &ScriptError{Kind: KindSyntaxError, Message: "unbalanced block closes the script early", Code: appErr.SyntaxError}}
	}
	L.SetFEnv(userFn, env)

	L.Push(vm.harness)
	L.Push(userFn)
	if err := L.PCall(1, 1, nil); err != nil {
		return RawOutcome{Failure: callFailure(ctx, err)}
	}
	ret := L.Get(-1)
	if ret.Type() == lua.LTNil {
		return RawOutcome{}
	}
	if f := contextFailure(ctx); f != nil {
		return RawOutcome{Failure: f}
	}
	if tbl, ok := ret.(*lua.LTable); ok && lua.LVAsString(tbl.RawGetString("__tag")) == errorTag {
		return RawOutcome{Failure: &ScriptError{
			Kind:    lua.LVAsString(tbl.RawGetString("kind")),
			Message: lua.LVAsString(tbl.RawGetString("message")),
			Line:    int(lua.LVAsNumber(tbl.RawGetString("line"))),
			Code:    appErr.ExecutionFailed,
		}}
	}
	return RawOutcome{}
}

// callFailure reports an error raised outside the harness's own handler.
func callFailure(ctx context.Context, err error) *ScriptError {
	if f := contextFailure(ctx); f != nil {
		return f
	}
	return apiFailure(err)
}

var compileLine = regexp.MustCompile(`line:(\d+)`)

func syntaxFailure(err error) *ScriptError {
	msg := errorText(err)
	line := 0
	if m := compileLine.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	// "main line:2(column:7) near 'x':   syntax error" -> "near 'x': syntax error"
	if idx := strings.Index(msg, ")"); idx >= 0 && strings.HasPrefix(msg, wrapper.ChunkName+" line:") {
		msg = strings.TrimSpace(msg[idx+1:])
	}
	msg = strings.Join(strings.Fields(msg), " ")
	return &ScriptError{Kind: KindSyntaxError, Message: msg, Line: line, Code: appErr.SyntaxError}
}

func contextFailure(ctx context.Context) *ScriptError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ScriptError{Kind: KindTimeout, Message: "execution time limit exceeded", Code: appErr.TimeLimitExceeded}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ScriptError{Kind: KindCanceled, Message: "execution was canceled", Code: appErr.ExecutionCanceled}
	default:
		return nil
	}
}

var chunkPosition = regexp.MustCompile(`^` + regexp.QuoteMeta(wrapper.ChunkName) + `:(\d+):\s*`)

// apiFailure moves a leading "main:N:" position into Line.
func apiFailure(err error) *ScriptError {
	msg := errorText(err)
	line := 0
	if m := chunkPosition.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
		msg = msg[len(m[0]):]
	}
	return &ScriptError{Kind: "RuntimeError", Message: msg, Line: line, Code: appErr.ExecutionFailed}
}

func errorText(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return strings.TrimSpace(apiErr.Object.String())
	}
	return strings.TrimSpace(err.Error())
}
