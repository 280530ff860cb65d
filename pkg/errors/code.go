package errors

import "net/http"

// ErrorCode is the stable identifier sent to clients alongside a message.
type ErrorCode int

// Codes are grouped by the thousand:
//
//	10xxx  common (params, rate limits, cache, validation)
//	11xxx  editor input rejected before execution
//	12xxx  runtime lifecycle and bootstrap bundle
//	13xxx  execution
//	14xxx  collaborators (drafts, scoring, storage, queue)
//	15xxx  views and server sessions
const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	TooManyRequests     ErrorCode = 10006
	Timeout             ErrorCode = 10008
	CacheError          ErrorCode = 10200
	ValidationFailed    ErrorCode = 10300
	InvalidValue        ErrorCode = 10302

	CodeEmpty           ErrorCode = 11000
	CodeTooLarge        ErrorCode = 11001
	CodeInvalidEncoding ErrorCode = 11002

	RuntimeNotReady     ErrorCode = 12000
	RuntimeLoadFailed   ErrorCode = 12001
	RuntimeBusy         ErrorCode = 12002
	RuntimeDisposed     ErrorCode = 12003
	RuntimeReloadDenied ErrorCode = 12004
	BundleNotFound      ErrorCode = 12100
	BundleInvalid       ErrorCode = 12101
	BundleHashMismatch  ErrorCode = 12102
	BundleFetchFailed   ErrorCode = 12103

	ExecutionFailed   ErrorCode = 13000
	SyntaxError       ErrorCode = 13001
	TimeLimitExceeded ErrorCode = 13002
	ExecutionCanceled ErrorCode = 13004

	DraftLoadFailed   ErrorCode = 14000
	DraftSaveFailed   ErrorCode = 14001
	ScoringFailed     ErrorCode = 14100
	StorageError      ErrorCode = 14300
	MessageQueueError ErrorCode = 14400

	SessionNotFound ErrorCode = 15000
	ViewDetached    ErrorCode = 15001
	ViewNotMounted  ErrorCode = 15002
)

type codeInfo struct {
	message string
	status  int
}

var codes = map[ErrorCode]codeInfo{
	Success:             {"Success", http.StatusOK},
	InternalServerError: {"Internal server error", http.StatusInternalServerError},
	InvalidParams:       {"Invalid parameters", http.StatusBadRequest},
	TooManyRequests:     {"Too many requests, please try again later", http.StatusTooManyRequests},
	Timeout:             {"Request timeout", http.StatusGatewayTimeout},
	CacheError:          {"Cache operation failed", http.StatusInternalServerError},
	ValidationFailed:    {"Validation failed", http.StatusBadRequest},
	InvalidValue:        {"Invalid value", http.StatusBadRequest},

	CodeEmpty:           {"Please enter some code to run.", http.StatusBadRequest},
	CodeTooLarge:        {"Code is too large", http.StatusBadRequest},
	CodeInvalidEncoding: {"Code must be valid UTF-8 text", http.StatusBadRequest},

	RuntimeNotReady:     {"Runtime is not ready yet", http.StatusServiceUnavailable},
	RuntimeLoadFailed:   {"Failed to load the runtime", http.StatusServiceUnavailable},
	RuntimeBusy:         {"A run is already in progress", http.StatusConflict},
	RuntimeDisposed:     {"Runtime has been disposed", http.StatusGone},
	RuntimeReloadDenied: {"Runtime can only be reloaded after a failed load", http.StatusConflict},
	BundleNotFound:      {"Runtime bundle not found", http.StatusNotFound},
	BundleInvalid:       {"Runtime bundle is invalid", http.StatusInternalServerError},
	BundleHashMismatch:  {"Runtime bundle checksum mismatch", http.StatusInternalServerError},
	BundleFetchFailed:   {"Failed to fetch runtime bundle", http.StatusBadGateway},

	ExecutionFailed:   {"Execution failed", http.StatusInternalServerError},
	SyntaxError:       {"Syntax error", http.StatusBadRequest},
	TimeLimitExceeded: {"Time limit exceeded", http.StatusRequestTimeout},
	ExecutionCanceled: {"Execution canceled", http.StatusConflict},

	DraftLoadFailed:   {"Failed to load draft", http.StatusInternalServerError},
	DraftSaveFailed:   {"Failed to save draft", http.StatusInternalServerError},
	ScoringFailed:     {"Failed to report run metrics", http.StatusBadGateway},
	StorageError:      {"Object storage operation failed", http.StatusBadGateway},
	MessageQueueError: {"Message queue operation failed", http.StatusBadGateway},

	SessionNotFound: {"Session not found", http.StatusNotFound},
	ViewDetached:    {"View has been detached", http.StatusConflict},
	ViewNotMounted:  {"View is not mounted", http.StatusConflict},
}

// Message returns the default message for the code.
func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// HTTPStatus returns the status the server answers with for the code.
// Unknown codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
