// Package publish mirrors stored funnel events to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/headline-goat/funnel-goat/internal/store"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

var publishFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "funnel",
	Name:      "publish_failures_total",
	Help:      "Events the Kafka writer failed to deliver.",
})

func init() {
	_ = prometheus.Register(publishFailures)
}

// NewKafkaPublisher returns an async publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewWithWriter(newWriter(brokers, topic))
}

// newWriter builds an async writer. WriteMessages returns before delivery,
// so failures only surface through Completion.
func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		Async:        true,
		Completion:   reportCompletion,
	}
}

func reportCompletion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	publishFailures.Add(float64(len(messages)))
	log.Warn().Err(err).Int("messages", len(messages)).Msg("failed to deliver events to kafka")
}

func NewWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Message is the wire form of a mirrored event.
type Message struct {
	EventID    string         `json:"event_id"`
	SessionID  string         `json:"session_id"`
	Page       string         `json:"page"`
	EventName  string         `json:"event_name"`
	Variant    *string        `json:"variant"`
	IsTest     bool           `json:"is_test"`
	OccurredAt int64          `json:"occurred_at"`
	BucketTS   int64          `json:"bucket_ts"`
	DeviceType string         `json:"device_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Publish keys messages by session so one session's events stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, e *store.Event) error {
	data, err := json.Marshal(Message{
		EventID:    e.EventID,
		SessionID:  e.SessionID,
		Page:       e.Page,
		EventName:  e.EventName,
		Variant:    e.Variant,
		IsTest:     e.IsTest,
		OccurredAt: e.OccurredAt.UnixMilli(),
		BucketTS:   e.BucketTime.UnixMilli(),
		DeviceType: e.DeviceType,
		Metadata:   e.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.SessionID),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
