package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
)

// RedisPublisher is the subset of a go-redis client used to publish.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes events on pub/sub channels named prefix + topic.
type Redis struct {
	client RedisPublisher
	prefix string
	logger *zap.Logger
}

func NewRedis(client RedisPublisher, prefix string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, logger: logger.Named("notify.redis")}
}

func (r *Redis) Dispatch(ctx context.Context, e revisionable.Event) error {
	msg, body, err := encode(e)
	if err != nil {
		return err
	}
	channel := r.prefix + msg.Topic
	receivers, err := r.client.Publish(ctx, channel, body).Result()
	if err != nil {
		return fmt.Errorf("notify: failed to publish to redis channel %s: %w", channel, err)
	}
	r.logger.Debug("event published",
		zap.String("channel", channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}
