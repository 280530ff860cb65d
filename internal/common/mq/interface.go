package mq

import (
	"context"
	"time"
)

// Producer publishes messages to a topic. Score events are the only traffic;
// nothing in codepad consumes.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	// Ping reports whether a broker is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Message is a broker-agnostic envelope. ID doubles as the partition key.
type Message struct {
	ID        string            `json:"id"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage stamps a message with the current time.
func NewMessage(id string, body []byte) *Message {
	return &Message{ID: id, Body: body, Timestamp: time.Now()}
}

// SetHeader sets a header, allocating the map on first use.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string, 1)
	}
	m.Headers[key] = value
}
