// Package model defines the data shared by the playground components.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeSuccess            Outcome = "Success"
	OutcomeExecutionError     Outcome = "ExecutionError"
	OutcomeValidationRejected Outcome = "ValidationRejected"
)

// Phase is the position of a view in the run state machine.
type Phase string

const (
	PhaseIdle       Phase = "Idle"
	PhaseValidating Phase = "Validating"
	PhaseRejected   Phase = "Rejected"
	PhaseSubmitted  Phase = "Submitted"
	PhaseRunning    Phase = "Running"
	PhaseSucceeded  Phase = "Succeeded"
	PhaseErrored    Phase = "Errored"
)

// ExecutionRequest is one user-initiated run.
type ExecutionRequest struct {
	ID          string
	SourceText  string
	SubmittedAt time.Time
}

// NewExecutionRequest stamps source with a fresh run id and the submission time.
func NewExecutionRequest(source string, now time.Time) ExecutionRequest {
	return ExecutionRequest{
		ID:          uuid.NewString(),
		SourceText:  source,
		SubmittedAt: now,
	}
}

// LineCount counts newline-separated segments; a trailing newline adds an empty segment.
func (r ExecutionRequest) LineCount() int {
	return strings.Count(r.SourceText, "\n") + 1
}

// ExecutionResult is the finalized, rendered result of a run.
type ExecutionResult struct {
	RunID      string  `json:"runId"`
	Stdout     string  `json:"stdout"`
	Stderr     *string `json:"stderr"`
	DurationMs int64   `json:"durationMs"`
	LineCount  int     `json:"lineCount"`
	Outcome    Outcome `json:"outcome"`
	ErrorKind  string  `json:"errorKind,omitempty"`
	ErrorLine  int     `json:"errorLine,omitempty"`
	// Message is the validation error or the normalized diagnostic.
	Message   string `json:"message,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// IsError reports whether the run is counted as failed for scoring.
func (r ExecutionResult) IsError() bool {
	return r.Outcome == OutcomeExecutionError
}

// ViewState is the observable state of a hosting view.
type ViewState struct {
	Stdout    string   `json:"stdout"`
	Stderr    *string  `json:"stderr"`
	Status    string   `json:"status"`
	Phase     Phase    `json:"phase"`
	Outcome   *Outcome `json:"outcome,omitempty"`
	LoadError string   `json:"loadError,omitempty"`
	Source    string   `json:"source"`
}
