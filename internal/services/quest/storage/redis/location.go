package redis

import (
	"context"
	"fmt"
	"slices"

	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// moveScript reads the current location, and when it differs moves the
// player between location sets and rewrites the profile field.
//
// KEYS[1] profile hash. ARGV[1] player id, ARGV[2] target, ARGV[3] prefix.
// Returns {moved, from}; moved is -1 when the profile does not exist.
const moveScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, ''}
end
local from = redis.call('HGET', KEYS[1], 'location')
if from == ARGV[2] then
  return {0, from}
end
if from then
  redis.call('SREM', ARGV[3] .. from, ARGV[1])
end
redis.call('SADD', ARGV[3] .. ARGV[2], ARGV[1])
redis.call('HSET', KEYS[1], 'location', ARGV[2])
return {1, from or ''}
`

// MovePlayer moves playerID to location. Moving to the current location is
// a no-op reported with moved=false.
func (s *Store) MovePlayer(ctx context.Context, playerID, location string) (change storage.LocationChange, moved bool, err error) {
	ctx, span := startSpan(ctx, "MovePlayer", playerID)
	defer func() { endSpan(span, err) }()

	result, err := s.client.Eval(ctx, moveScript, []string{playerKey(playerID)}, playerID, location, PrefixLocation).Slice()
	if err != nil {
		return storage.LocationChange{}, false, transportError("move player", err)
	}
	status, from, err := parseMoveResult(result)
	if err != nil {
		return storage.LocationChange{}, false, transportError("move player", err)
	}
	if status < 0 {
		return storage.LocationChange{}, false, storage.ErrNotFound
	}
	return storage.LocationChange{PlayerID: playerID, From: from, To: location}, status == 1, nil
}

// PlayersInLocation returns the ids of players in location, sorted.
func (s *Store) PlayersInLocation(ctx context.Context, location string) (ids []string, err error) {
	ctx, span := startSpan(ctx, "PlayersInLocation", "")
	defer func() { endSpan(span, err) }()

	ids, err = s.client.SMembers(ctx, locationKey(location)).Result()
	if err != nil {
		return nil, transportError("players in location", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func parseMoveResult(result []any) (int64, string, error) {
	if len(result) != 2 {
		return 0, "", fmt.Errorf("unexpected move result %v", result)
	}
	status, ok := result[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("unexpected move status %T", result[0])
	}
	from, _ := result[1].(string)
	return status, from, nil
}
