package storage

import (
	"context"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to tell a never-seen player apart from transport or data
// corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// StateStore assembles and persists the per-player aggregate.
type StateStore interface {
	// GetState assembles the aggregate for playerID or returns ErrNotFound.
	GetState(ctx context.Context, playerID string) (gamestate.GameState, error)
	// CreateState writes default records for playerID and returns them.
	CreateState(ctx context.Context, playerID, name string) (gamestate.GameState, error)
	// UpdateState applies patch to the player's records. Writes are batched
	// and may be partially applied when the transport fails mid-batch.
	UpdateState(ctx context.Context, playerID string, patch gamestate.Patch) error
	// ListPlayers returns every registered player id.
	ListPlayers(ctx context.Context) ([]string, error)
}

// LocationChange describes a completed move between locations.
type LocationChange struct {
	PlayerID string `json:"playerId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// LocationIndex tracks which players are in which location.
type LocationIndex interface {
	// MovePlayer moves playerID to location. moved is false when the player
	// already was there.
	MovePlayer(ctx context.Context, playerID, location string) (change LocationChange, moved bool, err error)
	PlayersInLocation(ctx context.Context, location string) ([]string, error)
}

// LeaderboardEntry is one ranked score.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Leaderboard is the global score index.
type Leaderboard interface {
	SetScore(ctx context.Context, playerID string, score int) error
	// Top returns up to n entries, highest score first. Tie order is
	// unspecified.
	Top(ctx context.Context, n int) ([]LeaderboardEntry, error)
	// Rank returns the 1-based rank of playerID or ErrNotFound.
	Rank(ctx context.Context, playerID string) (LeaderboardEntry, error)
}

// TemplateStore persists quest template records.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]template.Template, error)
	PutTemplate(ctx context.Context, t template.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	Close() error
}
