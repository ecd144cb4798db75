package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intprep/apiserver/config"
	"github.com/segmentio/kafka-go"
)

const (
	kafkaHeaderID       = "x-message-id"
	kafkaBatchTimeout   = 10 * time.Millisecond
	kafkaDefaultGroupID = "intprep-apiserver"
)

// KafkaClient publishes to Kafka topics and consumes them through a consumer group.
type KafkaClient struct {
	brokers []string
	groupID string
	writer  *kafka.Writer
}

func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = kafkaDefaultGroupID
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return &KafkaClient{
		brokers: cfg.Brokers,
		groupID: groupID,
		writer:  writer,
	}, nil
}

// Publish writes one message to the topic. The message id doubles as the
// partition key.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka topic is required")
	}

	messageID := uuid.NewString()
	msg := kafka.Message{
		Topic:   channel,
		Key:     []byte(messageID),
		Value:   data,
		Headers: attributesToKafkaHeaders(messageID, attrs),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe reads the topic as part of the consumer group until ctx is done.
// Offsets are committed only after the handler succeeds.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		GroupID: k.groupID,
		Topic:   channel,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		message := fromKafkaMessage(msg)
		if err := handler(ctx, message); err != nil {
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (k *KafkaClient) Close() error {
	return k.writer.Close()
}

func attributesToKafkaHeaders(id string, attrs map[string]string) []kafka.Header {
	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: kafkaHeaderID, Value: []byte(id)})
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return headers
}

func fromKafkaMessage(msg kafka.Message) Message {
	message := Message{
		ID:         string(msg.Key),
		Data:       msg.Value,
		Attributes: make(map[string]string, len(msg.Headers)),
	}
	for _, header := range msg.Headers {
		if header.Key == kafkaHeaderID {
			message.ID = string(header.Value)
			continue
		}
		message.Attributes[header.Key] = string(header.Value)
	}
	return message
}
