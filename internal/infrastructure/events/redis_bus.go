package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus implements Bus on redis pub/sub so every API instance sees
// every committed event regardless of which instance accepted the bid.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	pubsub := b.client.PSubscribe(ctx, patterns...)
	// Force the subscription onto the wire before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", patterns, err)
	}

	sub := &redisSub{pubsub: pubsub, ch: make(chan Message, 256)}
	go sub.pump(b.logger)
	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Message
}

func (s *redisSub) pump(logger *zap.Logger) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		select {
		case s.ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
		default:
			logger.Warn("event subscriber falling behind, dropping message",
				zap.String("channel", msg.Channel))
		}
	}
}

func (s *redisSub) Messages() <-chan Message { return s.ch }

func (s *redisSub) Close() error { return s.pubsub.Close() }
