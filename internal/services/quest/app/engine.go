package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/platform/id"
	"github.com/louisbranch/questworld/internal/services/quest/domain/action"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// Templates is the part of the template repository the engine needs.
type Templates interface {
	// Instantiate builds a runtime quest from a published template, looked
	// up by template id or quest id.
	Instantiate(ctx context.Context, ref string) (quest.Quest, error)
	Published(ctx context.Context) ([]template.Template, error)
}

// Config tunes engine behavior.
type Config struct {
	HistoryMax     int
	RewardOverflow RewardOverflow
	Now            func() time.Time
	NewID          func() (string, error)
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	States      storage.StateStore
	Locations   storage.LocationIndex
	Leaderboard storage.Leaderboard
	Templates   Templates
	Broadcaster *Broadcaster
	Cache       *StateCache
}

// Engine serves reads and applies actions for every player.
type Engine struct {
	states      storage.StateStore
	locations   storage.LocationIndex
	leaderboard storage.Leaderboard
	templates   Templates
	broadcaster *Broadcaster
	cache       *StateCache
	cfg         Config
}

// Result is the outcome of one applied action.
type Result struct {
	Action action.Type         `json:"action"`
	State  gamestate.GameState `json:"state"`
	// Updates names the record sections the action changed.
	Updates  []string                `json:"updates"`
	Location *storage.LocationChange `json:"location,omitempty"`
}

// NewEngine validates deps and applies config defaults.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.States == nil:
		return nil, errors.New("state store is required")
	case deps.Locations == nil:
		return nil, errors.New("location index is required")
	case deps.Leaderboard == nil:
		return nil, errors.New("leaderboard is required")
	case deps.Templates == nil:
		return nil, errors.New("template repository is required")
	case deps.Broadcaster == nil:
		return nil, errors.New("broadcaster is required")
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = session.DefaultHistoryMax
	}
	if cfg.RewardOverflow == "" {
		cfg.RewardOverflow = RewardOverflowReject
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewStateCache(DefaultCacheTTL, cfg.Now)
	}
	return &Engine{
		states:      deps.States,
		locations:   deps.Locations,
		leaderboard: deps.Leaderboard,
		templates:   deps.Templates,
		broadcaster: deps.Broadcaster,
		cache:       cache,
		cfg:         cfg,
	}, nil
}

// GetState returns the player's state or a NOT_FOUND error for players
// never seen before.
func (e *Engine) GetState(ctx context.Context, playerID string) (gamestate.GameState, error) {
	state, ok := e.cache.Get(playerID)
	if !ok {
		loaded, err := e.states.GetState(ctx, playerID)
		if err != nil {
			return gamestate.GameState{}, err
		}
		e.cache.Put(loaded)
		state = loaded
	}
	return e.withAvailable(ctx, state)
}

// CreateState writes default records for playerID.
func (e *Engine) CreateState(ctx context.Context, playerID, name string) (gamestate.GameState, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return gamestate.GameState{}, invalidPlayerID()
	}
	state, err := e.states.CreateState(ctx, playerID, name)
	if err != nil {
		return gamestate.GameState{}, err
	}
	if err := e.leaderboard.SetScore(ctx, playerID, state.Player.Score); err != nil {
		return gamestate.GameState{}, err
	}
	e.cache.Put(state)
	e.publish(ctx, ChangeEvent{PlayerID: playerID, Kind: EventCreated})
	return e.withAvailable(ctx, state)
}

// GetOrCreateState returns the player's state, creating defaults on first
// access.
func (e *Engine) GetOrCreateState(ctx context.Context, playerID, name string) (gamestate.GameState, error) {
	state, err := e.GetState(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.CreateState(ctx, playerID, name)
	}
	return state, err
}

// ApplyAction parses and applies one player action. Malformed actions are
// rejected before the player's records are read.
func (e *Engine) ApplyAction(ctx context.Context, playerID string, a action.Action) (Result, error) {
	cmd, err := action.Parse(a)
	if err != nil {
		return Result{}, err
	}
	state, err := e.states.GetState(ctx, playerID)
	if err != nil {
		return Result{}, err
	}

	p := planner{now: e.cfg.Now(), overflow: e.cfg.RewardOverflow, newID: e.cfg.NewID}
	var patch gamestate.Patch
	switch c := cmd.(type) {
	case action.SetScore:
		patch, err = p.setScore(state, c)
	case action.StartQuest:
		var q quest.Quest
		if q, err = e.templates.Instantiate(ctx, c.QuestID); err == nil {
			patch, err = p.startQuest(state, q)
		}
	case action.CompleteQuestStep:
		patch, err = p.completeStep(state, c)
	case action.CompleteQuest:
		patch, err = p.completeQuest(state, c)
	case action.FailQuest:
		patch, err = p.failQuest(state, c)
	case action.Chat:
		patch, err = p.chat(state, c)
	case action.UseItem:
		patch, err = p.useItem(state, c)
	case action.ChangeLocation:
		return e.changeLocation(ctx, state, c)
	default:
		err = fmt.Errorf("unhandled command %T", cmd)
	}
	if err != nil {
		return Result{}, err
	}

	updated, err := e.commit(ctx, state, patch, p.now)
	if err != nil {
		return Result{}, err
	}
	e.publish(ctx, ChangeEvent{
		PlayerID: playerID,
		Kind:     EventUpdated,
		Updates:  patch.Sections(),
		Patch:    &patch,
	})
	updated, err = e.withAvailable(ctx, updated)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: cmd.ActionType(), State: updated, Updates: patch.Sections()}, nil
}

// commit writes patch, keeps the leaderboard in step with the profile score,
// and refreshes the local cache.
func (e *Engine) commit(ctx context.Context, state gamestate.GameState, patch gamestate.Patch, now time.Time) (gamestate.GameState, error) {
	playerID := state.Player.ID
	if err := e.states.UpdateState(ctx, playerID, patch); err != nil {
		e.cache.Invalidate(playerID)
		return gamestate.GameState{}, err
	}
	if patch.Player != nil && patch.Player.Score != nil {
		if err := e.leaderboard.SetScore(ctx, playerID, *patch.Player.Score); err != nil {
			e.cache.Invalidate(playerID)
			return gamestate.GameState{}, err
		}
	}
	updated := state.Apply(patch, e.cfg.HistoryMax, now)
	e.cache.Put(updated)
	return updated, nil
}

func (e *Engine) changeLocation(ctx context.Context, state gamestate.GameState, cmd action.ChangeLocation) (Result, error) {
	change, moved, err := e.move(ctx, state.Player.ID, cmd.Location)
	if err != nil {
		return Result{}, err
	}
	// The move itself is not a record patch; an empty patch still advances
	// the session turn.
	state.Player.Location = cmd.Location
	updated, err := e.commit(ctx, state, gamestate.Patch{}, e.cfg.Now())
	if err != nil {
		return Result{}, err
	}
	updated, err = e.withAvailable(ctx, updated)
	if err != nil {
		return Result{}, err
	}
	result := Result{Action: action.TypeChangeLocation, State: updated, Updates: []string{}}
	if moved {
		result.Location = &change
		result.Updates = []string{gamestate.SectionLocation}
	}
	return result, nil
}

// MovePlayer moves playerID to location. Moving to the current location
// changes nothing and publishes no event.
func (e *Engine) MovePlayer(ctx context.Context, playerID, location string) (storage.LocationChange, bool, error) {
	location, err := action.ParseLocation(location)
	if err != nil {
		return storage.LocationChange{}, false, err
	}
	return e.move(ctx, playerID, location)
}

func (e *Engine) move(ctx context.Context, playerID, location string) (storage.LocationChange, bool, error) {
	change, moved, err := e.locations.MovePlayer(ctx, playerID, location)
	if err != nil {
		return storage.LocationChange{}, false, err
	}
	if !moved {
		return change, false, nil
	}
	if cached, ok := e.cache.Get(playerID); ok {
		cached.Player.Location = change.To
		e.cache.Put(cached)
	}
	e.publish(ctx, ChangeEvent{
		PlayerID: playerID,
		Kind:     EventMoved,
		Updates:  []string{gamestate.SectionLocation},
		Location: &change,
	})
	return change, true, nil
}

// ListPlayers returns every registered player id.
func (e *Engine) ListPlayers(ctx context.Context) ([]string, error) {
	return e.states.ListPlayers(ctx)
}

// PlayersInLocation returns the players currently in location.
func (e *Engine) PlayersInLocation(ctx context.Context, location string) ([]string, error) {
	location, err := action.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return e.locations.PlayersInLocation(ctx, location)
}

// Leaderboard returns up to limit entries, highest score first.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	return e.leaderboard.Top(ctx, limit)
}

// Rank returns the player's leaderboard position.
func (e *Engine) Rank(ctx context.Context, playerID string) (storage.LeaderboardEntry, error) {
	return e.leaderboard.Rank(ctx, playerID)
}

// withAvailable fills Quests.Available from the published templates the
// player has neither active nor completed.
func (e *Engine) withAvailable(ctx context.Context, state gamestate.GameState) (gamestate.GameState, error) {
	published, err := e.templates.Published(ctx)
	if err != nil {
		return gamestate.GameState{}, fmt.Errorf("list published templates: %w", err)
	}
	available := make([]quest.Quest, 0, len(published))
	for _, t := range published {
		questID := t.Quest.ID
		if state.Quests.Active != nil && state.Quests.Active.ID == questID {
			continue
		}
		if state.CompletedQuest(questID) {
			continue
		}
		available = append(available, t.Quest.Instantiate(t.ID))
	}
	state.Quests.Available = available
	return state, nil
}

// publish is best effort; the write it reports has already landed.
func (e *Engine) publish(ctx context.Context, ev ChangeEvent) {
	if err := e.broadcaster.Publish(ctx, ev); err != nil {
		log.Printf("broadcast %s change for %s: %v", ev.Kind, ev.PlayerID, err)
	}
}

func invalidPlayerID() error {
	return apperrors.Validation("player id is required", []apperrors.Violation{{
		Path:    "playerId",
		Rule:    "required",
		Message: "player id must not be blank",
	}})
}
