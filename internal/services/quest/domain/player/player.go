// Package player models the player profile and its score-derived level.
package player

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
)

// DefaultLocation is where lazily created players start.
const DefaultLocation = "town"

// Level is the rank derived from a player's score.
type Level string

const (
	LevelNovice     Level = "novice"
	LevelApprentice Level = "apprentice"
	LevelExpert     Level = "expert"
	LevelMaster     Level = "master"
)

// Score thresholds for each level, inclusive.
const (
	ApprenticeThreshold = 100
	ExpertThreshold     = 500
	MasterThreshold     = 1000
)

// LevelForScore derives the level for a score.
func LevelForScore(score int) Level {
	switch {
	case score >= MasterThreshold:
		return LevelMaster
	case score >= ExpertThreshold:
		return LevelExpert
	case score >= ApprenticeThreshold:
		return LevelApprentice
	default:
		return LevelNovice
	}
}

// Status is what the player is currently doing.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusChatting       Status = "chatting"
	StatusInQuest        Status = "in-quest"
	StatusCompletedQuest Status = "completed-quest"
)

// StatusFromLabel parses a persisted status label. Unknown labels fall back
// to idle so a corrupted field never blocks a read.
func StatusFromLabel(value string) Status {
	switch Status(strings.TrimSpace(strings.ToLower(value))) {
	case StatusChatting:
		return StatusChatting
	case StatusInQuest:
		return StatusInQuest
	case StatusCompletedQuest:
		return StatusCompletedQuest
	default:
		return StatusIdle
	}
}

// Player is the profile record of one player.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Level  Level  `json:"level"`
	Status Status `json:"status"`
	// Location is the name of the location set the player belongs to.
	Location string `json:"location"`
	// CurrentQuest is the id of the active quest, empty when none is active.
	CurrentQuest string    `json:"currentQuest,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// New returns the default profile for a first-time player.
func New(id, name string, now time.Time) Player {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName(id)
	}
	return Player{
		ID:        id,
		Name:      name,
		Score:     0,
		Level:     LevelNovice,
		Status:    StatusIdle,
		Location:  DefaultLocation,
		CreatedAt: now.UTC(),
	}
}

// WithScore returns a copy with score set and level recomputed.
func (p Player) WithScore(score int) (Player, error) {
	if score < 0 {
		return Player{}, apperrors.WithMetadata(
			apperrors.CodeInvalidAction,
			fmt.Sprintf("score must not be negative: %d", score),
			map[string]string{"Score": fmt.Sprint(score)},
		)
	}
	p.Score = score
	p.Level = LevelForScore(score)
	return p, nil
}

func defaultName(id string) string {
	if id == "" {
		return "Adventurer"
	}
	return "Adventurer " + id
}
