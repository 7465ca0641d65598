package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes and subscribes over Redis PUBLISH/SUBSCRIBE. Redis
// itself keeps no history, which gives the same at-most-once contract as the
// in-process broker across engine instances.
type RedisBroker struct {
	client redis.UniversalClient
	buffer int
}

// NewRedisBroker wraps an existing client. The broker does not own the client.
func NewRedisBroker(client redis.UniversalClient, buffer int) *RedisBroker {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &RedisBroker{client: client, buffer: buffer}
}

// Publish sends payload on the Redis channel named topic.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("redis broker is not configured")
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a Redis subscription and waits for the server to confirm it,
// so messages published after Subscribe returns are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("redis broker is not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Message, b.buffer),
		done: make(chan struct{}),
	}
	go sub.run(ctx, b.buffer)
	return sub, nil
}

// Close is a no-op; the caller owns the Redis client.
func (b *RedisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) run(ctx context.Context, buffer int) {
	defer close(s.ch)
	in := s.ps.Channel(redis.WithChannelSize(buffer))
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			default:
			}
		}
	}
}
