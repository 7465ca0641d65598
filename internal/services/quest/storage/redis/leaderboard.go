package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// DefaultTopLimit is used when Top is asked for a non-positive count.
const DefaultTopLimit = 10

// SetScore upserts the player's leaderboard score.
func (s *Store) SetScore(ctx context.Context, playerID string, score int) (err error) {
	ctx, span := startSpan(ctx, "SetScore", playerID)
	defer func() { endSpan(span, err) }()

	if err := s.client.ZAdd(ctx, KeyLeaderboard, goredis.Z{Score: float64(score), Member: playerID}).Err(); err != nil {
		return transportError("set score", err)
	}
	return nil
}

// Top returns the n highest scores, highest first.
func (s *Store) Top(ctx context.Context, n int) (entries []storage.LeaderboardEntry, err error) {
	ctx, span := startSpan(ctx, "Top", "")
	defer func() { endSpan(span, err) }()

	if n <= 0 {
		n = DefaultTopLimit
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, KeyLeaderboard, 0, int64(n-1)).Result()
	if err != nil {
		return nil, transportError("top scores", err)
	}
	entries = make([]storage.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, storage.LeaderboardEntry{
			PlayerID: fmt.Sprint(z.Member),
			Score:    int(z.Score),
			Rank:     i + 1,
		})
	}
	return entries, nil
}

// Rank returns the player's 1-based position on the leaderboard.
func (s *Store) Rank(ctx context.Context, playerID string) (entry storage.LeaderboardEntry, err error) {
	ctx, span := startSpan(ctx, "Rank", playerID)
	defer func() { endSpan(span, err) }()

	pipe := s.client.Pipeline()
	rank := pipe.ZRevRank(ctx, KeyLeaderboard, playerID)
	score := pipe.ZScore(ctx, KeyLeaderboard, playerID)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, goredis.Nil) {
			return storage.LeaderboardEntry{}, storage.ErrNotFound
		}
		return storage.LeaderboardEntry{}, transportError("rank", err)
	}
	return storage.LeaderboardEntry{
		PlayerID: playerID,
		Score:    int(score.Val()),
		Rank:     int(rank.Val()) + 1,
	}, nil
}
