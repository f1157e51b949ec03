// Package eventbus publishes best-effort audit events for memory
// mutations onto a Kafka topic, for downstream consumers (analytics,
// compliance tooling) that want to observe what changed without querying
// the vector/file store directly. Disabled by default: the core never
// requires a broker to run.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names the kind of memory mutation an Event records.
type EventType string

const (
	FactAdded   EventType = "fact.added"
	FactDeleted EventType = "fact.deleted"
)

// Event is one memory mutation, shaped for a downstream JSON consumer.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	FactID         string    `json:"fact_id"`
	FactKey        string    `json:"fact_key,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher writes Events to a Kafka topic. The zero value is not usable;
// build one with New.
type Publisher struct {
	writer *kafka.Writer
}

// New dials brokers (host:port addresses) and returns a Publisher that
// writes to topic. Dialing is lazy: kafka-go's Writer connects on first
// WriteMessages call, so New itself cannot fail.
func New(brokers []string, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// Publish writes evt as a single Kafka message keyed by conversation id so
// a topic consumer can partition by conversation and see mutations for one
// conversation in order.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.ConversationID),
		Value: body,
	})
}

// Close flushes and closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
