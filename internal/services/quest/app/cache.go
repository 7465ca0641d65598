package app

import (
	"sync"
	"time"

	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
)

// DefaultCacheTTL bounds how long a cached state is served without a reload.
// Change events are at-most-once, so entries must age out on their own.
const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	state    gamestate.GameState
	storedAt time.Time
}

// StateCache holds recently read player states for one engine instance.
type StateCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewStateCache returns an empty cache. A non-positive ttl uses
// DefaultCacheTTL.
func NewStateCache(ttl time.Duration, now func() time.Time) *StateCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCache{entries: make(map[string]cacheEntry), ttl: ttl, now: now}
}

// Get returns a copy of the cached state for playerID.
func (c *StateCache) Get(playerID string) (gamestate.GameState, bool) {
	c.mu.RLock()
	entry, ok := c.entries[playerID]
	c.mu.RUnlock()
	if !ok {
		return gamestate.GameState{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.Invalidate(playerID)
		return gamestate.GameState{}, false
	}
	return entry.state.Clone(), true
}

// Put stores a copy of state.
func (c *StateCache) Put(state gamestate.GameState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[state.Player.ID] = cacheEntry{state: state.Clone(), storedAt: c.now()}
}

// Invalidate drops playerID.
func (c *StateCache) Invalidate(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, playerID)
}

// Len reports the number of cached players.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
