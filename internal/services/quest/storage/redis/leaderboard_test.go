package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

func TestLeaderboardTopAndRank(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	scores := map[string]int{"p1": 150, "p2": 900, "p3": 40, "p4": 1200}
	for id, score := range scores {
		if err := store.SetScore(ctx, id, score); err != nil {
			t.Fatalf("set score %s: %v", id, err)
		}
	}

	top, err := store.Top(ctx, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []string{"p4", "p2", "p1"}
	if len(top) != len(want) {
		t.Fatalf("top = %+v", top)
	}
	for i, id := range want {
		if top[i].PlayerID != id || top[i].Score != scores[id] || top[i].Rank != i+1 {
			t.Fatalf("top[%d] = %+v, want %s", i, top[i], id)
		}
	}

	all, _ := store.Top(ctx, 0)
	if len(all) != 4 {
		t.Fatalf("default limit returned %d entries", len(all))
	}

	rank, err := store.Rank(ctx, "p3")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if rank.Rank != 4 || rank.Score != 40 {
		t.Fatalf("unexpected rank %+v", rank)
	}

	_, err = store.Rank(ctx, "ghost")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetScoreUpserts(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_ = store.SetScore(ctx, "p1", 10)
	_ = store.SetScore(ctx, "p1", 75)
	top, _ := store.Top(ctx, 10)
	if len(top) != 1 || top[0].Score != 75 {
		t.Fatalf("unexpected top %+v", top)
	}
}
