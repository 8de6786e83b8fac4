// Package events publishes order outcome events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// EventTypeOrderFulfilled is the type of the fulfillment outcome event
const EventTypeOrderFulfilled = "order.fulfilled"

// envelopeVersion is bumped on incompatible payload changes
const envelopeVersion = 1

// ErrPublisherClosed is returned after Close
var ErrPublisherClosed = errors.New("events: publisher closed")

// Envelope wraps every published payload
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// messageWriter abstracts kafka.Writer for testability
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outcome events to a Kafka topic keyed by order id.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *zap.Logger
}

var _ fulfillment.OutcomePublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous, all-acks Kafka publisher
func NewKafkaPublisher(cfg config.KafkaConfig, log *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("events: kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisherWith(w, cfg.WriteTimeout, log), nil
}

func newKafkaPublisherWith(w messageWriter, writeTimeout time.Duration, log *zap.Logger) *KafkaPublisher {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, writeTimeout: writeTimeout, logger: log.Named("events")}
}

// PublishOutcome writes one envelope for evt
func (p *KafkaPublisher) PublishOutcome(ctx context.Context, evt fulfillment.OutcomeEvent) error {
	msg, err := NewOutcomeMessage(evt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", EventTypeOrderFulfilled, err)
	}
	p.logger.Debug("outcome published",
		zap.String("order_id", evt.OrderID.String()),
		zap.String("status", string(evt.Status)),
	)
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewOutcomeMessage builds the Kafka message for evt
func NewOutcomeMessage(evt fulfillment.OutcomeEvent) (kafka.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       EventTypeOrderFulfilled,
		Version:    envelopeVersion,
		OccurredAt: evt.OccurredAt.UTC(),
		Payload:    payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.OrderID.String()),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeOrderFulfilled)},
			{Key: "event-id", Value: []byte(env.ID)},
		},
	}, nil
}

// NoopPublisher drops events. It is the default when Kafka is disabled.
type NoopPublisher struct{}

var _ fulfillment.OutcomePublisher = NoopPublisher{}

// PublishOutcome does nothing
func (NoopPublisher) PublishOutcome(context.Context, fulfillment.OutcomeEvent) error { return nil }

// Close does nothing
func (NoopPublisher) Close() error { return nil }

// Publisher is an OutcomePublisher that owns resources
type Publisher interface {
	fulfillment.OutcomePublisher
	Close() error
}

// NewPublisher returns a Kafka publisher when enabled, otherwise a noop one
func NewPublisher(cfg config.KafkaConfig, log *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg, log)
}
