package scoring_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codepad/internal/common/mq"
	"codepad/internal/playground/scoring"
	appErr "codepad/pkg/errors"
)

func TestHTTPScorerPostsEvent(t *testing.T) {
	var got scoring.Event
	var runID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID = r.Header.Get("X-Run-Id")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	scorer := scoring.NewHTTPScorer(srv.URL, time.Second)
	ev := scoring.Event{LineCount: 4, DurationMs: 12, IsError: true}
	if err := scorer.Track(context.Background(), "run-7", ev); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if got != ev {
		t.Fatalf("expected %+v, got %+v", ev, got)
	}
	if runID != "run-7" {
		t.Fatalf("expected run id header, got %q", runID)
	}
}

func TestHTTPScorerRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := scoring.NewHTTPScorer(srv.URL, time.Second).Track(context.Background(), "run", scoring.Event{})
	if !appErr.Is(err, appErr.ScoringFailed) {
		t.Fatalf("expected ScoringFailed, got %v", err)
	}
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(scoring.Event{LineCount: 1, DurationMs: 2})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"lineCount":1,"durationMs":2,"isError":false}` {
		t.Fatalf("unexpected payload %s", data)
	}
}

type fakeProducer struct {
	topic string
	msg   *mq.Message
	err   error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.topic = topic
	f.msg = message
	return f.err
}

func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { return nil }

func TestMQScorer(t *testing.T) {
	producer := &fakeProducer{}
	scorer := scoring.NewMQScorer(producer, "")
	if err := scorer.Track(context.Background(), "run-9", scoring.Event{LineCount: 2, DurationMs: 5}); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if producer.topic != scoring.DefaultTopic {
		t.Fatalf("expected default topic, got %q", producer.topic)
	}
	if producer.msg.ID != "run-9" {
		t.Fatalf("expected message keyed by run id, got %q", producer.msg.ID)
	}
	var ev scoring.Event
	if err := json.Unmarshal(producer.msg.Body, &ev); err != nil || ev.LineCount != 2 {
		t.Fatalf("unexpected body %s (%v)", producer.msg.Body, err)
	}

	producer.err = errors.New("broker down")
	if err := scorer.Track(context.Background(), "run-10", scoring.Event{}); !appErr.Is(err, appErr.MessageQueueError) {
		t.Fatalf("expected MessageQueueError, got %v", err)
	}
}
