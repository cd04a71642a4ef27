package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
)

// KafkaWriter is the subset of *kafka.Writer used to publish.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer that picks the topic per message and
// keeps revisions of one entity on one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// Kafka publishes events to topics named prefix + topic, keyed by entity.
type Kafka struct {
	writer KafkaWriter
	prefix string
	logger *zap.Logger
}

func NewKafka(w KafkaWriter, prefix string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{writer: w, prefix: prefix, logger: logger.Named("notify.kafka")}
}

func (k *Kafka) Dispatch(ctx context.Context, e revisionable.Event) error {
	msg, body, err := encode(e)
	if err != nil {
		return err
	}
	topic := k.prefix + msg.Topic
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(e.Ref.Type + ":" + e.Ref.ID),
		Value: body,
		Time:  msg.EmittedAt,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to write kafka message to %s: %w", topic, err)
	}
	k.logger.Debug("event published", zap.String("topic", topic))
	return nil
}
