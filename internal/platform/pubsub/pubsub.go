package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("pubsub: broker closed")

// Message is one payload delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher sends payloads to every current subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber opens a stream of messages for a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Broker is a transport that can both publish and subscribe.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription is a live message stream. The channel is closed once the
// subscription is closed or its context ends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Topic binds a topic name to a JSON-encoded message type.
type Topic[T any] struct {
	Name string
}

// NewTopic returns a typed topic handle.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name}
}

// Publish encodes msg and publishes it on the topic.
func (t Topic[T]) Publish(ctx context.Context, publisher Publisher, msg T) error {
	if publisher == nil {
		return fmt.Errorf("publisher is required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", t.Name, err)
	}
	return publisher.Publish(ctx, t.Name, payload)
}

// Subscribe opens a decoded stream for the topic. Payloads that fail to decode
// are logged and skipped.
func (t Topic[T]) Subscribe(ctx context.Context, subscriber Subscriber) (*TypedSubscription[T], error) {
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber is required")
	}
	raw, err := subscriber.Subscribe(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	typed := &TypedSubscription[T]{raw: raw, out: make(chan T)}
	go typed.run(ctx, t.Name)
	return typed, nil
}

// TypedSubscription is a Subscription whose payloads are decoded into T.
type TypedSubscription[T any] struct {
	raw Subscription
	out chan T
}

// Messages returns the decoded message stream.
func (s *TypedSubscription[T]) Messages() <-chan T {
	return s.out
}

// Close stops the underlying subscription.
func (s *TypedSubscription[T]) Close() error {
	return s.raw.Close()
}

func (s *TypedSubscription[T]) run(ctx context.Context, topic string) {
	defer close(s.out)
	for msg := range s.raw.Messages() {
		var value T
		if err := json.Unmarshal(msg.Payload, &value); err != nil {
			log.Printf("pubsub: drop undecodable %s message: %v", topic, err)
			continue
		}
		select {
		case s.out <- value:
		case <-ctx.Done():
			_ = s.raw.Close()
			return
		}
	}
}
