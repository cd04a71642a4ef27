package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
)

// DefaultExchange is declared when no exchange is configured.
const DefaultExchange = "revisions"

// AMQPChannel is the subset of *amqp.Channel used to publish.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events to a durable topic exchange with the event topic as
// routing key.
type AMQP struct {
	ch       AMQPChannel
	exchange string
	logger   *zap.Logger
}

// NewAMQP declares the exchange and returns a publisher on it.
func NewAMQP(ch AMQPChannel, exchange string, logger *zap.Logger) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("notify: failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQP{ch: ch, exchange: exchange, logger: logger.Named("notify.amqp")}, nil
}

func (a *AMQP) Dispatch(ctx context.Context, e revisionable.Event) error {
	msg, body, err := encode(e)
	if err != nil {
		return err
	}
	err = a.ch.PublishWithContext(ctx, a.exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.EmittedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to publish to exchange %s: %w", a.exchange, err)
	}
	a.logger.Debug("event published", zap.String("exchange", a.exchange), zap.String("routing_key", msg.Topic))
	return nil
}
