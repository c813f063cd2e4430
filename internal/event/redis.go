package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes events as JSON on a Redis pub/sub channel for
// out-of-process consumers.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to addr and checks the connection.
func NewRedisPublisher(addr, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: 3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis event publisher initialized", zap.String("addr", addr), zap.String("channel", channel))
	return &RedisPublisher{client: client, channel: channel, logger: logger}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Client exposes the underlying connection, e.g. for subscriptions.
func (p *RedisPublisher) Client() *redis.Client {
	return p.client
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
