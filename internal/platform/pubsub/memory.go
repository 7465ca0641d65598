package pubsub

import (
	"context"
	"fmt"
	"sync"
)

const defaultMemoryBuffer = 64

// MemoryBroker is an in-process Broker. Each subscriber owns a buffered
// channel; a publish that finds the buffer full drops the message for that
// subscriber only.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBroker returns an in-process broker. buffer <= 0 uses a default.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
	}
}

// Publish fans payload out to current subscribers of topic.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[topic] {
		sub.deliver(Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	}
	return nil
}

// Subscribe registers a new subscription that ends when ctx is done or Close is called.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan Message, b.buffer),
		done:   make(chan struct{}),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Close ends every subscription and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()
	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.topic)
		}
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan Message

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
	}
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.ch)
	s.mu.Unlock()
	s.broker.remove(s)
	return nil
}
