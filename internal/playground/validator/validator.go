// Package validator runs the synchronous pre-flight checks on submitted source.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"codepad/pkg/errors"
)

// EmptySourceMessage is shown when the editor holds nothing runnable.
const EmptySourceMessage = "Please enter some code to run."

// Result reports whether source may be submitted.
type Result struct {
	IsValid bool
	Error   string
	Code    errors.ErrorCode
}

// Err converts a failed result into a coded error; nil when valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return errors.New(r.Code).WithMessage(r.Error)
}

// Validator holds the tunable limits. The zero value only rejects blank input.
type Validator struct {
	// MaxBytes caps the source size; 0 disables the check.
	MaxBytes int
}

// Validate never touches the runtime and has no side effects.
func (v Validator) Validate(source string) Result {
	if strings.TrimSpace(source) == "" {
		return reject(errors.CodeEmpty, EmptySourceMessage)
	}
	if v.MaxBytes > 0 && len(source) > v.MaxBytes {
		return reject(errors.CodeTooLarge, fmt.Sprintf("Code is too large (%d bytes, limit %d).", len(source), v.MaxBytes))
	}
	if !utf8.ValidString(source) {
		return reject(errors.CodeInvalidEncoding, "Code must be valid UTF-8 text.")
	}
	if strings.IndexByte(source, 0) >= 0 {
		return reject(errors.CodeInvalidEncoding, "Code must not contain NUL characters.")
	}
	return Result{IsValid: true, Code: errors.Success}
}

// Validate applies the default checks.
func Validate(source string) Result {
	return Validator{}.Validate(source)
}

func reject(code errors.ErrorCode, msg string) Result {
	return Result{IsValid: false, Error: msg, Code: code}
}
