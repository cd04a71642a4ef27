// Package notify publishes revision events to message brokers.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
)

// Message is the JSON body published for every event.
type Message struct {
	ID        string                `json:"id"`
	Topic     string                `json:"topic"`
	Type      string                `json:"revisionable_type"`
	EntityID  string                `json:"revisionable_id"`
	Records   []revisionable.Record `json:"revisions"`
	EmittedAt time.Time             `json:"emitted_at"`
}

// NewMessage builds the message for e.
func NewMessage(e revisionable.Event, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Topic:     e.Topic(),
		Type:      e.Ref.Type,
		EntityID:  e.Ref.ID,
		Records:   e.Records,
		EmittedAt: now.UTC(),
	}
}

func encode(e revisionable.Event) (Message, []byte, error) {
	msg := NewMessage(e, time.Now())
	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, fmt.Errorf("notify: failed to encode event: %w", err)
	}
	return msg, body, nil
}

// Config selects and configures the broker.
type Config struct {
	Driver string      `mapstructure:"driver" validate:"omitempty,oneof=none redis kafka amqp"`
	Prefix string      `mapstructure:"prefix"`
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	AMQP   AMQPConfig  `mapstructure:"amqp"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// ErrNoBroker is returned by Open when the driver is "none" or empty.
var ErrNoBroker = errors.New("notify: no broker configured")

// Open connects to the configured broker. The returned closer releases the
// connection.
func Open(cfg Config, logger *zap.Logger) (revisionable.Dispatcher, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", "none":
		return nil, nil, ErrNoBroker
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, errors.New("notify: redis addr is empty")
		}
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		return NewRedis(client, cfg.Prefix, logger), client, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, errors.New("notify: kafka brokers are empty")
		}
		w := NewKafkaWriter(cfg.Kafka.Brokers)
		return NewKafka(w, cfg.Prefix, logger), w, nil
	case "amqp":
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("notify: amqp connection error: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("notify: failed to open amqp channel: %w", err)
		}
		p, err := NewAMQP(ch, cfg.AMQP.Exchange, logger)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return p, conn, nil
	}
	return nil, nil, fmt.Errorf("notify: unsupported driver %q", cfg.Driver)
}
