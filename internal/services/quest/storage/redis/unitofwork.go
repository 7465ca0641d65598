package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/questworld/internal/services/quest/codec"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// UnitOfWork records the sub-writes of one player update and sends them in
// a single pipeline on Commit. Without WithTransactions the pipeline is not
// atomic: a transport failure mid-batch leaves earlier writes applied.
type UnitOfWork struct {
	store    *Store
	playerID string
	ops      []func(ctx context.Context, pipe goredis.Pipeliner)
}

// Begin starts a unit of work for playerID.
func (s *Store) Begin(playerID string) *UnitOfWork {
	return &UnitOfWork{store: s, playerID: playerID}
}

// Len returns the number of recorded sub-writes.
func (u *UnitOfWork) Len() int {
	return len(u.ops)
}

func (u *UnitOfWork) add(op func(ctx context.Context, pipe goredis.Pipeliner)) {
	u.ops = append(u.ops, op)
}

// SetProfile writes profile hash fields.
func (u *UnitOfWork) SetProfile(fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.HSet(ctx, playerKey(u.playerID), fields)
	})
}

// ClearProfile removes profile hash fields.
func (u *UnitOfWork) ClearProfile(fields ...string) {
	if len(fields) == 0 {
		return
	}
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.HDel(ctx, playerKey(u.playerID), fields...)
	})
}

// MoveLocation moves the player between location sets and updates the
// profile field in one server-side step.
func (u *UnitOfWork) MoveLocation(location string) {
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.Eval(ctx, moveScript, []string{playerKey(u.playerID)}, u.playerID, location, PrefixLocation)
	})
}

// ReplaceInventory clears the prior membership and item records, then writes
// inv in their place.
func (u *UnitOfWork) ReplaceInventory(priorItemIDs []string, inv inventory.Inventory) {
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		keys := make([]string, 0, len(priorItemIDs)+1)
		keys = append(keys, inventoryKey(u.playerID))
		for _, itemID := range priorItemIDs {
			keys = append(keys, itemKey(u.playerID, itemID))
		}
		pipe.Del(ctx, keys...)
		for _, item := range inv.Items {
			pipe.SAdd(ctx, inventoryKey(u.playerID), item.ID)
			pipe.HSet(ctx, itemKey(u.playerID, item.ID), encodeItem(item))
		}
		pipe.HSet(ctx, playerKey(u.playerID), fieldInventoryCapacity, inv.Capacity)
	})
}

// SetActiveQuest stores q as the active quest blob.
func (u *UnitOfWork) SetActiveQuest(q quest.Quest) error {
	blob, err := codec.Encode(q)
	if err != nil {
		return err
	}
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.HSet(ctx, activeQuestKey(u.playerID), fieldID, q.ID, fieldData, string(blob))
	})
	return nil
}

// ClearActiveQuest removes the active quest blob.
func (u *UnitOfWork) ClearActiveQuest() {
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.Del(ctx, activeQuestKey(u.playerID))
	})
}

// AddCompletedQuest records q in the completed membership set and blob hash.
func (u *UnitOfWork) AddCompletedQuest(q quest.Quest) error {
	blob, err := codec.Encode(q)
	if err != nil {
		return err
	}
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.SAdd(ctx, completedSetKey(u.playerID), q.ID)
		pipe.HSet(ctx, completedQuestsKey(u.playerID), q.ID, string(blob))
	})
	return nil
}

// AppendHistory pushes entries onto the session log and trims it to the
// configured maximum.
func (u *UnitOfWork) AppendHistory(entries ...session.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode history entry: %w", err)
		}
		values = append(values, string(line))
	}
	limit := int64(u.store.historyMax)
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.RPush(ctx, historyKey(u.playerID), values...)
		pipe.LTrim(ctx, historyKey(u.playerID), -limit, -1)
	})
	return nil
}

// Touch advances the turn counter, stamps the last action time, and
// refreshes the session TTL. An expired session is recreated.
func (u *UnitOfWork) Touch(now time.Time) {
	stamp := millis(now.UTC())
	ttl := u.store.sessionTTL
	u.add(func(ctx context.Context, pipe goredis.Pipeliner) {
		key := sessionKey(u.playerID)
		pipe.HSetNX(ctx, key, fieldID, u.playerID)
		pipe.HSetNX(ctx, key, fieldStartedAt, stamp)
		pipe.HIncrBy(ctx, key, fieldTurn, 1)
		pipe.HSet(ctx, key, fieldLastActionAt, stamp)
		pipe.Expire(ctx, key, ttl)
		pipe.Expire(ctx, historyKey(u.playerID), ttl)
		pipe.HSet(ctx, playerKey(u.playerID), fieldUpdatedAt, stamp)
	})
}

// Commit sends every recorded sub-write in one pipeline.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if len(u.ops) == 0 {
		return nil
	}
	pipe := u.store.pipeline()
	for _, op := range u.ops {
		op(ctx, pipe)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return transportError("commit", err)
	}
	u.ops = nil
	return nil
}

// UpdateState applies patch to the player's records, advancing the turn
// counter and session TTL. It returns ErrNotFound for unknown players.
func (s *Store) UpdateState(ctx context.Context, playerID string, patch gamestate.Patch) (err error) {
	ctx, span := startSpan(ctx, "UpdateState", playerID)
	defer func() { endSpan(span, err) }()

	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, playerKey(playerID))
	var prior *goredis.StringSliceCmd
	if patch.Inventory != nil {
		prior = pipe.SMembers(ctx, inventoryKey(playerID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return transportError("update state", err)
	}
	if exists.Val() == 0 {
		return storage.ErrNotFound
	}

	uow := s.Begin(playerID)
	if pp := patch.Player; pp != nil {
		fields := map[string]any{}
		if pp.Name != nil {
			fields[fieldName] = *pp.Name
		}
		if pp.Score != nil {
			fields[fieldScore] = *pp.Score
			fields[fieldLevel] = string(player.LevelForScore(*pp.Score))
		}
		if pp.Status != nil {
			fields[fieldStatus] = string(*pp.Status)
		}
		if pp.CurrentQuest != nil {
			if *pp.CurrentQuest == "" {
				uow.ClearProfile(fieldCurrentQuest)
			} else {
				fields[fieldCurrentQuest] = *pp.CurrentQuest
			}
		}
		uow.SetProfile(fields)
	}
	if patch.Location != nil {
		uow.MoveLocation(*patch.Location)
	}
	if patch.Inventory != nil {
		uow.ReplaceInventory(prior.Val(), *patch.Inventory)
	}
	if qp := patch.Quests; qp != nil {
		if qp.ClearActive {
			uow.ClearActiveQuest()
		}
		if qp.Active != nil {
			if err := uow.SetActiveQuest(*qp.Active); err != nil {
				return err
			}
		}
		for _, completed := range qp.Completed {
			if err := uow.AddCompletedQuest(completed); err != nil {
				return err
			}
		}
	}
	if err := uow.AppendHistory(patch.History...); err != nil {
		return err
	}
	uow.Touch(s.now())
	return uow.Commit(ctx)
}
