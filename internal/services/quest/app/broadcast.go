package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questworld/internal/platform/pubsub"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// DefaultChannel is the shared change channel.
const DefaultChannel = "questworld:changes"

// EventKind names what happened to a player.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventMoved   EventKind = "moved"
)

// ChangeEvent notifies peers that a player's records changed.
type ChangeEvent struct {
	PlayerID string    `json:"playerId"`
	Kind     EventKind `json:"kind"`
	// Updates names the record sections that changed.
	Updates   []string                `json:"updates,omitempty"`
	Patch     *gamestate.Patch        `json:"patch,omitempty"`
	Location  *storage.LocationChange `json:"location,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	OriginID  string                  `json:"originId"`
}

// Broadcaster publishes change events on the shared channel. Delivery is
// at-most-once; subscribers that are not listening miss the event.
type Broadcaster struct {
	broker   pubsub.Broker
	topic    pubsub.Topic[ChangeEvent]
	originID string
	now      func() time.Time
}

// NewBroadcaster binds a broker to channel on behalf of instance originID.
func NewBroadcaster(broker pubsub.Broker, channel, originID string) (*Broadcaster, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if strings.TrimSpace(originID) == "" {
		return nil, fmt.Errorf("origin id is required")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{
		broker:   broker,
		topic:    pubsub.NewTopic[ChangeEvent](channel),
		originID: originID,
		now:      time.Now,
	}, nil
}

// OriginID identifies the instance this broadcaster speaks for.
func (b *Broadcaster) OriginID() string {
	return b.originID
}

// Publish stamps ev with this instance's origin and the current time, then
// sends it.
func (b *Broadcaster) Publish(ctx context.Context, ev ChangeEvent) error {
	ev.OriginID = b.originID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	if err := b.topic.Publish(ctx, b.broker, ev); err != nil {
		return fmt.Errorf("publish change for %s: %w", ev.PlayerID, err)
	}
	return nil
}

// Subscribe opens a stream of every change event on the channel, including
// this instance's own.
func (b *Broadcaster) Subscribe(ctx context.Context) (*pubsub.TypedSubscription[ChangeEvent], error) {
	return b.topic.Subscribe(ctx, b.broker)
}
