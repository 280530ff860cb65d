package validator_test

import (
	"strings"
	"testing"

	"codepad/internal/playground/validator"
	"codepad/pkg/errors"
)

func TestValidate(t *testing.T) {
	v := validator.Validator{MaxBytes: 32}
	tests := []struct {
		name   string
		source string
		valid  bool
		code   errors.ErrorCode
	}{
		{name: "empty", source: "", valid: false, code: errors.CodeEmpty},
		{name: "whitespace only", source: "  \n\t \r\n", valid: false, code: errors.CodeEmpty},
		{name: "simple print", source: `print("hello")`, valid: true, code: errors.Success},
		{name: "leading blank lines", source: "\n\nprint(1)", valid: true, code: errors.Success},
		{name: "too large", source: strings.Repeat("x", 33), valid: false, code: errors.CodeTooLarge},
		{name: "invalid utf8", source: "print('\xff')", valid: false, code: errors.CodeInvalidEncoding},
		{name: "nul byte", source: "print(1)\x00", valid: false, code: errors.CodeInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.source)
			if res.IsValid != tt.valid {
				t.Fatalf("expected valid=%v, got %+v", tt.valid, res)
			}
			if res.Code != tt.code {
				t.Fatalf("expected code %d, got %d", tt.code, res.Code)
			}
			if !tt.valid && res.Error == "" {
				t.Fatalf("expected error message for rejected source")
			}
			if tt.valid && res.Err() != nil {
				t.Fatalf("expected nil error for valid source")
			}
		})
	}
}

func TestValidateEmptyMessageIsStable(t *testing.T) {
	res := validator.Validate("   ")
	if res.Error != validator.EmptySourceMessage {
		t.Fatalf("unexpected message %q", res.Error)
	}
	if !errors.Is(res.Err(), errors.CodeEmpty) {
		t.Fatalf("expected CodeEmpty error, got %v", res.Err())
	}
}

func TestValidateZeroValueHasNoSizeLimit(t *testing.T) {
	res := validator.Validate(strings.Repeat("-- comment\n", 10000) + "print(1)")
	if !res.IsValid {
		t.Fatalf("expected large source to pass without a limit: %+v", res)
	}
}
