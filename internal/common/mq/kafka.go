package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New("producer is closed")

// KafkaConfig defines configuration for the Kafka producer.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientId"`
	Compression  string        `yaml:"compression"` // none, gzip, snappy, lz4, zstd
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = "codepad"
	}
	// Score events are rare and small; flush each one right away.
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown kafka compression %q", name)
	}
}

// KafkaProducer implements Producer on a kafka-go writer. Messages are
// partitioned by key so every event of one run lands on the same partition.
type KafkaProducer struct {
	brokers []string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	closed  atomic.Bool
}

// NewKafkaProducer creates a Kafka-backed producer. No connection is made until
// the first publish or ping.
func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	transport := &kafka.Transport{
		ClientID: cfg.ClientID,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, address)
		},
	}
	return &KafkaProducer{
		brokers: cfg.Brokers,
		dialer:  dialer,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Compression:  codec,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Transport:    transport,
		},
	}, nil
}

// Publish writes message to topic and waits for the leader ack.
func (k *KafkaProducer) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case k.closed.Load():
		return ErrProducerClosed
	case message == nil:
		return errors.New("message is nil")
	case topic == "":
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, toKafkaMessage(topic, message))
}

// Ping dials each broker in turn and succeeds on the first reachable one.
func (k *KafkaProducer) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close flushes pending writes. Later calls are no-ops.
func (k *KafkaProducer) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	return k.writer.Close()
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+2)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	headers = append(headers, kafka.Header{Key: headerTimestamp, Value: []byte(message.Timestamp.Format(time.RFC3339Nano))})

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}
