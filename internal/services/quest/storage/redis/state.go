package redis

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
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

type stateReads struct {
	profile        *goredis.MapStringStringCmd
	session        *goredis.MapStringStringCmd
	history        *goredis.StringSliceCmd
	inventory      *goredis.StringSliceCmd
	active         *goredis.MapStringStringCmd
	completedIDs   *goredis.StringSliceCmd
	completedBlobs *goredis.MapStringStringCmd
}

// GetState assembles the player's aggregate. Quest blobs that fail to decode
// are logged and treated as absent. A missing session is tolerated.
func (s *Store) GetState(ctx context.Context, playerID string) (state gamestate.GameState, err error) {
	ctx, span := startSpan(ctx, "GetState", playerID)
	defer func() { endSpan(span, err) }()

	pipe := s.client.Pipeline()
	reads := stateReads{
		profile:        pipe.HGetAll(ctx, playerKey(playerID)),
		session:        pipe.HGetAll(ctx, sessionKey(playerID)),
		history:        pipe.LRange(ctx, historyKey(playerID), 0, -1),
		inventory:      pipe.SMembers(ctx, inventoryKey(playerID)),
		active:         pipe.HGetAll(ctx, activeQuestKey(playerID)),
		completedIDs:   pipe.SMembers(ctx, completedSetKey(playerID)),
		completedBlobs: pipe.HGetAll(ctx, completedQuestsKey(playerID)),
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return gamestate.GameState{}, transportError("get state", err)
	}

	profile := reads.profile.Val()
	if len(profile) == 0 {
		return gamestate.GameState{}, storage.ErrNotFound
	}

	items, err := s.loadItems(ctx, playerID, reads.inventory.Val())
	if err != nil {
		return gamestate.GameState{}, err
	}

	state = gamestate.GameState{
		Player:    decodePlayer(playerID, profile),
		Quests:    gamestate.Quests{Available: []quest.Quest{}, Completed: []quest.Quest{}},
		Inventory: inventory.Inventory{Items: items, Capacity: parseInt(profile[fieldInventoryCapacity], s.inventoryCapacity)},
		Metadata: gamestate.Metadata{
			SchemaVersion: parseInt(profile[fieldSchemaVersion], gamestate.SchemaVersion),
			LastUpdated:   parseMillis(profile[fieldUpdatedAt]),
		},
	}

	if blob := reads.active.Val()[fieldData]; blob != "" {
		active, err := codec.Decode([]byte(blob))
		if err != nil {
			s.logf("redis: drop undecodable active quest for player %s: %v", playerID, err)
		} else {
			state.Quests.Active = &active
		}
	}
	if state.Quests.Active == nil && state.Player.CurrentQuest != "" {
		s.logf("redis: player %s references quest %s without an active quest record", playerID, state.Player.CurrentQuest)
		state.Player.CurrentQuest = ""
	}

	blobs := reads.completedBlobs.Val()
	for _, questID := range reads.completedIDs.Val() {
		completed, err := codec.Decode([]byte(blobs[questID]))
		if err != nil {
			s.logf("redis: drop undecodable completed quest %s for player %s: %v", questID, playerID, err)
			continue
		}
		state.Quests.Completed = append(state.Quests.Completed, completed)
	}
	sortCompleted(state.Quests.Completed)

	if fields := reads.session.Val(); len(fields) > 0 {
		sess := decodeSession(playerID, fields)
		sess.History = s.decodeHistory(playerID, reads.history.Val())
		state.Session = &sess
	}
	return state, nil
}

// loadItems resolves inventory membership into item records in a second
// round trip. Members without an item record are skipped.
func (s *Store) loadItems(ctx context.Context, playerID string, itemIDs []string) ([]inventory.Item, error) {
	items := make([]inventory.Item, 0, len(itemIDs))
	if len(itemIDs) == 0 {
		return items, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(itemIDs))
	for i, itemID := range itemIDs {
		cmds[i] = pipe.HGetAll(ctx, itemKey(playerID, itemID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, transportError("get items", err)
	}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			s.logf("redis: inventory of player %s lists missing item %s", playerID, itemIDs[i])
			continue
		}
		items = append(items, decodeItem(itemIDs[i], fields))
	}
	inventory.SortItems(items)
	return items, nil
}

// CreateState writes the default records for a new player. Writing over an
// existing player resets it; concurrent creates settle on the last writer.
// An existing player is first moved back to the default location by the
// location script, so with WithTransactions the reset is atomic with
// concurrent moves.
func (s *Store) CreateState(ctx context.Context, playerID, name string) (state gamestate.GameState, err error) {
	ctx, span := startSpan(ctx, "CreateState", playerID)
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	state = gamestate.New(playerID, name, s.inventoryCapacity, now)

	pipe := s.pipeline()
	pipe.Eval(ctx, moveScript, []string{playerKey(playerID)}, playerID, state.Player.Location, PrefixLocation)
	pipe.Del(ctx,
		inventoryKey(playerID),
		activeQuestKey(playerID),
		completedSetKey(playerID),
		completedQuestsKey(playerID),
		historyKey(playerID),
	)
	pipe.HDel(ctx, playerKey(playerID), fieldCurrentQuest)
	pipe.HSet(ctx, playerKey(playerID), encodePlayer(state.Player, state.Inventory.Capacity, now))
	pipe.HSet(ctx, sessionKey(playerID), map[string]any{
		fieldID:           state.Session.ID,
		fieldStartedAt:    millis(now),
		fieldLastActionAt: millis(now),
		fieldTurn:         0,
	})
	pipe.Expire(ctx, sessionKey(playerID), s.sessionTTL)
	pipe.SAdd(ctx, KeyPlayers, playerID)
	pipe.SAdd(ctx, locationKey(state.Player.Location), playerID)
	pipe.ZAdd(ctx, KeyLeaderboard, goredis.Z{Score: 0, Member: playerID})
	if _, err := pipe.Exec(ctx); err != nil {
		return gamestate.GameState{}, transportError("create state", err)
	}
	return state, nil
}

// ListPlayers returns every registered player id, sorted.
func (s *Store) ListPlayers(ctx context.Context) (ids []string, err error) {
	ctx, span := startSpan(ctx, "ListPlayers", "")
	defer func() { endSpan(span, err) }()

	ids, err = s.client.SMembers(ctx, KeyPlayers).Result()
	if err != nil {
		return nil, transportError("list players", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func encodePlayer(p player.Player, capacity int, now time.Time) map[string]any {
	return map[string]any{
		fieldID:                p.ID,
		fieldName:              p.Name,
		fieldScore:             p.Score,
		fieldLevel:             string(p.Level),
		fieldStatus:            string(p.Status),
		fieldLocation:          p.Location,
		fieldInventoryCapacity: capacity,
		fieldCreatedAt:         millis(p.CreatedAt),
		fieldUpdatedAt:         millis(now),
		fieldSchemaVersion:     gamestate.SchemaVersion,
	}
}

func decodePlayer(playerID string, fields map[string]string) player.Player {
	score := max(parseInt(fields[fieldScore], 0), 0)
	location := fields[fieldLocation]
	if location == "" {
		location = player.DefaultLocation
	}
	return player.Player{
		ID:           playerID,
		Name:         fields[fieldName],
		Score:        score,
		Level:        player.LevelForScore(score),
		Status:       player.StatusFromLabel(fields[fieldStatus]),
		Location:     location,
		CurrentQuest: fields[fieldCurrentQuest],
		CreatedAt:    parseMillis(fields[fieldCreatedAt]),
	}
}

func encodeItem(item inventory.Item) map[string]any {
	return map[string]any{
		fieldID:          item.ID,
		fieldName:        item.Name,
		fieldDescription: item.Description,
		fieldType:        string(item.Type),
		fieldAcquiredAt:  millis(item.AcquiredAt),
	}
}

func decodeItem(itemID string, fields map[string]string) inventory.Item {
	return inventory.Item{
		ID:          itemID,
		Name:        fields[fieldName],
		Description: fields[fieldDescription],
		Type:        inventory.ParseItemType(fields[fieldType]),
		AcquiredAt:  parseMillis(fields[fieldAcquiredAt]),
	}
}

func decodeSession(playerID string, fields map[string]string) session.Session {
	id := fields[fieldID]
	if id == "" {
		id = playerID
	}
	return session.Session{
		ID:           id,
		StartedAt:    parseMillis(fields[fieldStartedAt]),
		LastActionAt: parseMillis(fields[fieldLastActionAt]),
		Turn:         int64(parseInt(fields[fieldTurn], 0)),
	}
}

func (s *Store) decodeHistory(playerID string, raw []string) []session.Entry {
	history := make([]session.Entry, 0, len(raw))
	for _, line := range raw {
		var entry session.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logf("redis: drop undecodable history entry for player %s: %v", playerID, err)
			continue
		}
		history = append(history, entry)
	}
	return history
}

func sortCompleted(quests []quest.Quest) {
	slices.SortStableFunc(quests, func(a, b quest.Quest) int {
		at, bt := completedAt(a), completedAt(b)
		if c := at.Compare(bt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func completedAt(q quest.Quest) time.Time {
	if q.CompletedAt == nil {
		return time.Time{}
	}
	return *q.CompletedAt
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func parseMillis(value string) time.Time {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
