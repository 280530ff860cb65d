package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestToKafkaMessageCarriesIDAndHeaders(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{ID: "run-1", Body: []byte(`{"lineCount":2}`), Timestamp: ts}
	msg.SetHeader("content-type", "application/json")

	km := toKafkaMessage("codepad.score", msg)
	if km.Topic != "codepad.score" {
		t.Fatalf("unexpected topic %q", km.Topic)
	}
	if string(km.Key) != "run-1" {
		t.Fatalf("expected key to be message id, got %q", km.Key)
	}
	if !km.Time.Equal(ts) {
		t.Fatalf("expected time %v, got %v", ts, km.Time)
	}
	got := map[string]string{}
	for _, h := range km.Headers {
		got[h.Key] = string(h.Value)
	}
	if got["content-type"] != "application/json" {
		t.Fatalf("custom header lost: %v", got)
	}
	if got[headerID] != "run-1" {
		t.Fatalf("expected id header, got %v", got)
	}
	if got[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("expected timestamp header, got %v", got)
	}
}

func TestToKafkaMessageFillsTimestamp(t *testing.T) {
	msg := &Message{Body: []byte("x")}
	km := toKafkaMessage("t", msg)
	if msg.Timestamp.IsZero() || km.Time.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
	for _, h := range km.Headers {
		if h.Key == headerID {
			t.Fatalf("unexpected id header for message without id")
		}
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("new producer failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := p.Publish(context.Background(), "t", NewMessage("id", nil)); !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{"": 0, "none": 0, "GZIP": kafka.Gzip, " zstd ": kafka.Zstd, "lz4": kafka.Lz4}
	for name, want := range cases {
		got, err := parseCompression(name)
		if err != nil || got != want {
			t.Fatalf("parseCompression(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"b:9092"}, Compression: "brotli"}); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
