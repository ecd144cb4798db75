package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intprep/apiserver/config"
	"github.com/intprep/apiserver/types"
)

const (
	BackendPubSub   = "pubsub"
	BackendRabbitMQ = "rabbitmq"
	BackendKafka    = "kafka"

	eventTypeAttr          = "event_type"
	eventSubmissionCreated = "submission.created"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects to the backend named in cfg. It returns nil, nil when no
// backend is configured.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case BackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	case BackendRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	case BackendKafka:
		client, err := NewKafkaClient(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// SubmissionEvents publishes and decodes submission events on one channel.
type SubmissionEvents struct {
	mq      *MQ
	channel string
}

func NewSubmissionEvents(mq *MQ, channel string) *SubmissionEvents {
	return &SubmissionEvents{mq: mq, channel: channel}
}

// PublishSubmission encodes the event as JSON and publishes it.
func (s *SubmissionEvents) PublishSubmission(ctx context.Context, event types.SubmissionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.mq.Publish(ctx, s.channel, data, map[string]string{
		eventTypeAttr: eventSubmissionCreated,
		"status":      string(event.Status),
	})
	return err
}

// Consume blocks delivering decoded events to handle until ctx is done.
// Messages that cannot be decoded are acknowledged and dropped.
func (s *SubmissionEvents) Consume(ctx context.Context, handle func(ctx context.Context, event types.SubmissionEvent) error) error {
	return s.mq.Subscribe(ctx, s.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeSubmissionEvent(msg)
		if err != nil {
			return nil
		}
		return handle(ctx, event)
	})
}

// DecodeSubmissionEvent parses a message produced by PublishSubmission.
func DecodeSubmissionEvent(msg Message) (types.SubmissionEvent, error) {
	if kind, ok := msg.Attributes[eventTypeAttr]; ok && kind != eventSubmissionCreated {
		return types.SubmissionEvent{}, fmt.Errorf("unexpected event type %q", kind)
	}
	var event types.SubmissionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.SubmissionEvent{}, fmt.Errorf("decode submission event: %w", err)
	}
	return event, nil
}
