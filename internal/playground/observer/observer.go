// Package observer defines metrics hooks for runtime loading and code runs.
package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records playground metrics.
type Recorder interface {
	ObserveLoad(ctx context.Context, source string, ok bool, d time.Duration)
	ObserveRun(ctx context.Context, outcome string, durationMs int64, lineCount int)
	ObserveRejected(ctx context.Context, reason string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveLoad(context.Context, string, bool, time.Duration) {}
func (Nop) ObserveRun(context.Context, string, int64, int) {}
func (Nop) ObserveRejected(context.Context, string) {}

// PrometheusRecorder exports metrics under the codepad namespace.
type PrometheusRecorder struct {
	loads        *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runLines     prometheus.Histogram
	rejected     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codepad",
			Subsystem: "runtime",
			Name:      "load_total",
			Help:      "Total number of runtime load attempts.",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codepad",
			Subsystem: "runtime",
			Name:      "load_duration_seconds",
			Help:      "Duration of runtime loads in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codepad",
			Subsystem: "exec",
			Name:      "run_total",
			Help:      "Total number of finished runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codepad",
			Subsystem: "exec",
			Name:      "run_duration_seconds",
			Help:      "Wall time from submission to finalized result in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 18),
		}, []string{"outcome"}),
		runLines: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codepad",
			Subsystem: "exec",
			Name:      "run_source_lines",
			Help:      "Number of source lines per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codepad",
			Subsystem: "exec",
			Name:      "rejected_total",
			Help:      "Runs rejected before reaching the runtime.",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.loads, r.loadDuration, r.runs, r.runDuration, r.runLines, r.rejected)
	return r
}

func (r *PrometheusRecorder) ObserveLoad(ctx context.Context, source string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.loads.WithLabelValues(result).Inc()
	r.loadDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveRun(ctx context.Context, outcome string, durationMs int64, lineCount int) {
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(float64(durationMs) / 1000)
	r.runLines.Observe(float64(lineCount))
}

func (r *PrometheusRecorder) ObserveRejected(ctx context.Context, reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}
