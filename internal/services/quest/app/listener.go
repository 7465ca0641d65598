package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/louisbranch/questworld/internal/platform/pubsub"
)

// Listener applies change events from peer instances to the local cache.
type Listener struct {
	sub      *pubsub.TypedSubscription[ChangeEvent]
	cache    *StateCache
	originID string
	onEvent  func(ChangeEvent)

	done      chan struct{}
	closeOnce sync.Once
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithEventHook runs fn after each peer event has been applied.
func WithEventHook(fn func(ChangeEvent)) ListenerOption {
	return func(l *Listener) {
		l.onEvent = fn
	}
}

// StartListener subscribes to the change channel and invalidates cache
// entries for players changed by other instances. The subscription is live
// when StartListener returns.
func StartListener(ctx context.Context, b *Broadcaster, cache *StateCache, opts ...ListenerOption) (*Listener, error) {
	if b == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("state cache is required")
	}
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	l := &Listener{
		sub:      sub,
		cache:    cache,
		originID: b.OriginID(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l, nil
}

func (l *Listener) run() {
	defer close(l.done)
	for ev := range l.sub.Messages() {
		if ev.OriginID == l.originID {
			continue
		}
		if ev.PlayerID == "" {
			log.Printf("change listener: drop event without player from %s", ev.OriginID)
			continue
		}
		l.cache.Invalidate(ev.PlayerID)
		if l.onEvent != nil {
			l.onEvent(ev)
		}
	}
}

// Done is closed once the subscription ends.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops the subscription and waits for the loop to exit.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.sub.Close()
		<-l.done
	})
	return err
}
