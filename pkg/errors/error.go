package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error carries a stable code plus optional context and the wrapped cause.
// Codes travel to HTTP clients, the terminal and scoring, so the message is
// always user-facing; the cause and stack are for logs only.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the default message of code.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil)
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. When err already is an *Error its message is
// kept and a copy with the new code is returned; err itself is not modified.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return newError(code, e.Error(), err)
	}
	return newError(code, err.Error(), err)
}

// Wrapf attaches code and a formatted message to err.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Details: make(map[string]interface{}),
		Stack:   getStack(3),
	}
}

// WithMessage replaces the error message
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode returns the code of the outermost *Error in err's chain.
// Errors without one report InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the outermost *Error in err's chain, wrapping err as an
// internal error when there is none.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, InternalServerError)
}

// Is reports whether any *Error in err's chain has code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

func getStack(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var builder strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&builder, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// BadRequest creates an invalid params error
func BadRequest(msg string) *Error {
	return New(InvalidParams).WithMessage(msg)
}
