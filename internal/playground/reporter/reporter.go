// Package reporter turns a finished run into an ExecutionResult and forwards
// its metrics to the scoring and notification collaborators.
package reporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codepad/internal/playground/model"
	"codepad/internal/playground/notify"
	"codepad/internal/playground/observer"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/scoring"
	"codepad/internal/playground/stream"
	"codepad/internal/playground/validator"
	"codepad/pkg/errors"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultScoreTimeout bounds a scoring call when none is configured.
const DefaultScoreTimeout = 3 * time.Second

// Celebrator is the decorative hook fired after a successful run.
type Celebrator interface {
	Celebrate(ctx context.Context, result model.ExecutionResult)
}

// CelebratorFunc adapts a function to Celebrator.
type CelebratorFunc func(ctx context.Context, result model.ExecutionResult)

func (f CelebratorFunc) Celebrate(ctx context.Context, result model.ExecutionResult) {
	f(ctx, result)
}

// Config wires the collaborators. Nil fields fall back to no-ops.
type Config struct {
	Scorer       scoring.Scorer
	Notifier     notify.Notifier
	Celebrator   Celebrator
	Metrics      observer.Recorder
	ScoreTimeout time.Duration
	Now          func() time.Time
}

// Reporter finalizes runs. It never returns an error; collaborator failures are logged.
type Reporter struct {
	scorer       scoring.Scorer
	notifier     notify.Notifier
	celebrator   Celebrator
	metrics      observer.Recorder
	scoreTimeout time.Duration
	now          func() time.Time
}

// New creates a reporter from cfg.
func New(cfg Config) *Reporter {
	r := &Reporter{
		scorer:       cfg.Scorer,
		notifier:     cfg.Notifier,
		celebrator:   cfg.Celebrator,
		metrics:      cfg.Metrics,
		scoreTimeout: cfg.ScoreTimeout,
		now:          cfg.Now,
	}
	if r.scorer == nil {
		r.scorer = scoring.NopScorer{}
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.metrics == nil {
		r.metrics = observer.Nop{}
	}
	if r.scoreTimeout <= 0 {
		r.scoreTimeout = DefaultScoreTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Now returns the reporter clock, so callers stamp requests on the same clock.
func (r *Reporter) Now() time.Time {
	return r.now()
}

// Finalize classifies a run that reached the runtime. buffers are the final
// capture contents; a failure diagnostic missing from stderr is appended.
func (r *Reporter) Finalize(ctx context.Context, req model.ExecutionRequest, buffers stream.Buffers, raw runtime.RawOutcome) model.ExecutionResult {
	ctx = context.WithValue(ctx, contextkey.RunID, req.ID)
	result := model.ExecutionResult{
		RunID:      req.ID,
		Stdout:     buffers.Stdout,
		DurationMs: r.elapsedMs(req),
		LineCount:  req.LineCount(),
		Outcome:    model.OutcomeSuccess,
		Truncated:  buffers.Truncated,
	}

	stderr := buffers.Stderr
	if !raw.OK() {
		diag := raw.Failure.Diagnostic()
		if !strings.Contains(stderr, diag) {
			if stderr != "" && !strings.HasSuffix(stderr, "\n") {
				stderr += "\n"
			}
			stderr += diag
		}
		result.Outcome = model.OutcomeExecutionError
		result.ErrorKind = raw.Failure.Kind
		result.ErrorLine = raw.Failure.Line
		result.Message = diag
	}
	if stderr != "" {
		result.Stderr = &stderr
	}

	r.metrics.ObserveRun(ctx, string(result.Outcome), result.DurationMs, result.LineCount)
	logger.Info(ctx, "run finished",
		zap.String("outcome", string(result.Outcome)),
		zap.String("error_kind", result.ErrorKind),
		zap.Int64("duration_ms", result.DurationMs),
		zap.Int("line_count", result.LineCount),
		zap.Bool("truncated", result.Truncated),
	)

	if result.IsError() {
		r.score(ctx, req.ID, result)
		r.notify(ctx, notify.New(notify.LevelError, "Run failed", result.Message, r.now()))
		return result
	}

	if r.celebrator != nil {
		r.celebrator.Celebrate(ctx, result)
	}
	r.score(ctx, req.ID, result)
	r.notify(ctx, notify.New(notify.LevelSuccess, "Run succeeded",
		fmt.Sprintf("%s in %d ms", pluralLines(result.LineCount), result.DurationMs), r.now()))
	return result
}

// Reject renders a submission the validator refused. Nothing is scored.
func (r *Reporter) Reject(ctx context.Context, req model.ExecutionRequest, v validator.Result) model.ExecutionResult {
	ctx = context.WithValue(ctx, contextkey.RunID, req.ID)
	result := model.ExecutionResult{
		RunID:      req.ID,
		DurationMs: r.elapsedMs(req),
		LineCount:  req.LineCount(),
		Outcome:    model.OutcomeValidationRejected,
		Message:    v.Error,
	}
	r.metrics.ObserveRejected(ctx, rejectReason(v))
	logger.Info(ctx, "run rejected", zap.Int("code", int(v.Code)), zap.String("reason", v.Error))
	r.notify(ctx, notify.New(notify.LevelWarning, v.Error, "", r.now()))
	return result
}

func (r *Reporter) score(ctx context.Context, runID string, result model.ExecutionResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.scoreTimeout)
	defer cancel()
	ev := scoring.Event{LineCount: result.LineCount, DurationMs: result.DurationMs, IsError: result.IsError()}
	if err := r.scorer.Track(ctx, runID, ev); err != nil {
		logger.Warn(ctx, "score delivery failed", zap.Error(err))
	}
}

func (r *Reporter) notify(ctx context.Context, n notify.Notification) {
	if err := r.notifier.Notify(ctx, n); err != nil {
		logger.Warn(ctx, "notification failed", zap.String("title", n.Title), zap.Error(err))
	}
}

func (r *Reporter) elapsedMs(req model.ExecutionRequest) int64 {
	ms := r.now().Sub(req.SubmittedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func rejectReason(v validator.Result) string {
	switch v.Code {
	case errors.CodeEmpty:
		return "empty"
	case errors.CodeTooLarge:
		return "too_large"
	case errors.CodeInvalidEncoding:
		return "encoding"
	default:
		return "other"
	}
}

func pluralLines(n int) string {
	if n == 1 {
		return "1 line"
	}
	return fmt.Sprintf("%d lines", n)
}
