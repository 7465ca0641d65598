package app

import (
	"testing"
	"time"

	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestStateCacheExpires(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewStateCache(10*time.Second, clock.Now)
	cache.Put(gamestate.New("p1", "Ada", 5, clock.now))

	clock.Advance(10 * time.Second)
	if _, ok := cache.Get("p1"); !ok {
		t.Fatal("expected entry within ttl")
	}
	clock.Advance(time.Second)
	if _, ok := cache.Get("p1"); ok {
		t.Fatal("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry evicted, len=%d", cache.Len())
	}
}

func TestStateCacheReturnsCopies(t *testing.T) {
	cache := NewStateCache(0, nil)
	state := gamestate.New("p1", "Ada", 5, time.Now())
	cache.Put(state)

	state.Player.Name = "changed"
	got, ok := cache.Get("p1")
	if !ok || got.Player.Name != "Ada" {
		t.Fatalf("cache aliased caller state: %+v", got.Player)
	}
	got.Player.Score = 99
	again, _ := cache.Get("p1")
	if again.Player.Score != 0 {
		t.Fatalf("cache aliased returned state: %+v", again.Player)
	}

	cache.Invalidate("p1")
	if _, ok := cache.Get("p1"); ok {
		t.Fatal("expected invalidated entry gone")
	}
}
