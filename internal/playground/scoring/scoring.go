// Package scoring forwards per-run metrics to the telemetry collaborator.
package scoring

import (
	"context"
	"encoding/json"
	"time"

	"codepad/internal/common/httpclient"
	"codepad/internal/common/mq"
	appErr "codepad/pkg/errors"
)

// DefaultTopic is the Kafka topic used when none is configured.
const DefaultTopic = "codepad.run.scored"

// Event is the payload the scoring service receives for every finished run.
type Event struct {
	LineCount  int   `json:"lineCount"`
	DurationMs int64 `json:"durationMs"`
	IsError    bool  `json:"isError"`
}

// Scorer delivers events. Implementations must respect ctx cancellation.
type Scorer interface {
	Track(ctx context.Context, runID string, ev Event) error
}

// NopScorer drops every event.
type NopScorer struct{}

func (NopScorer) Track(context.Context, string, Event) error { return nil }

// HTTPScorer posts events as JSON.
type HTTPScorer struct {
	client *httpclient.Client
}

// NewHTTPScorer creates a scorer posting to url.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{client: httpclient.New(url, httpclient.WithTimeout(timeout))}
}

func (s *HTTPScorer) Track(ctx context.Context, runID string, ev Event) error {
	info, err := s.client.PostJSON(ctx, ev, map[string]string{"X-Run-Id": runID})
	if err != nil {
		return appErr.Wrapf(err, appErr.ScoringFailed, "post score to %s failed", s.client.URL())
	}
	if !info.OK() {
		return appErr.Newf(appErr.ScoringFailed, "score endpoint returned HTTP %d", info.StatusCode).
			WithDetail("body", string(info.Body))
	}
	return nil
}

// MQScorer publishes events to a message queue topic keyed by run id.
type MQScorer struct {
	producer mq.Producer
	topic    string
}

// NewMQScorer creates a scorer publishing to topic.
func NewMQScorer(producer mq.Producer, topic string) *MQScorer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQScorer{producer: producer, topic: topic}
}

func (s *MQScorer) Track(ctx context.Context, runID string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return appErr.Wrapf(err, appErr.ScoringFailed, "marshal score event failed")
	}
	msg := mq.NewMessage(runID, body)
	msg.SetHeader("content-type", "application/json")
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.MessageQueueError, "publish score event failed")
	}
	return nil
}
