// Package gamestate assembles the per-player aggregate and the partial
// updates applied to it.
package gamestate

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
)

// SchemaVersion is the version of the stored record layout.
const SchemaVersion = 1

// Quests groups a player's quests by lifecycle bucket.
type Quests struct {
	Available []quest.Quest `json:"available"`
	Active    *quest.Quest  `json:"active"`
	Completed []quest.Quest `json:"completed"`
}

// Metadata carries bookkeeping for the assembled state.
type Metadata struct {
	SchemaVersion int       `json:"schemaVersion"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// GameState is the full view of one player assembled from its records.
type GameState struct {
	Player    player.Player       `json:"player"`
	Quests    Quests              `json:"quests"`
	Inventory inventory.Inventory `json:"inventory"`
	// Session is nil once the ephemeral session record has expired.
	Session  *session.Session `json:"session"`
	Metadata Metadata         `json:"metadata"`
}

// New returns the default state for a first-time player.
func New(playerID, name string, capacity int, now time.Time) GameState {
	sess := session.New(playerID, now)
	return GameState{
		Player:    player.New(playerID, name, now),
		Quests:    Quests{Available: []quest.Quest{}, Completed: []quest.Quest{}},
		Inventory: inventory.New(capacity),
		Session:   &sess,
		Metadata:  Metadata{SchemaVersion: SchemaVersion, LastUpdated: now.UTC()},
	}
}

// Clone deep-copies the state.
func (s GameState) Clone() GameState {
	out := s
	out.Quests.Available = cloneQuests(s.Quests.Available)
	out.Quests.Completed = cloneQuests(s.Quests.Completed)
	if s.Quests.Active != nil {
		active := s.Quests.Active.Clone()
		out.Quests.Active = &active
	}
	out.Inventory = s.Inventory.Clone()
	if s.Session != nil {
		sess := *s.Session
		sess.History = append([]session.Entry(nil), s.Session.History...)
		out.Session = &sess
	}
	return out
}

// CompletedQuest reports whether questID is among the completed quests.
func (s GameState) CompletedQuest(questID string) bool {
	for _, q := range s.Quests.Completed {
		if q.ID == questID {
			return true
		}
	}
	return false
}

// CheckConsistency verifies that the current quest reference and the
// active quest agree.
func (s GameState) CheckConsistency() error {
	active := s.Quests.Active
	current := s.Player.CurrentQuest
	switch {
	case active == nil && current == "":
		return nil
	case active == nil:
		return inconsistent(fmt.Sprintf("current quest %s has no active quest record", current))
	case current != active.ID:
		return inconsistent(fmt.Sprintf("current quest %q does not match active quest %s", current, active.ID))
	case active.Status != quest.StatusActive:
		return inconsistent(fmt.Sprintf("active quest %s has status %s", active.ID, active.Status))
	}
	return nil
}

func inconsistent(message string) error {
	return apperrors.New(apperrors.CodeUnknown, "inconsistent game state: "+message)
}

func cloneQuests(in []quest.Quest) []quest.Quest {
	out := make([]quest.Quest, 0, len(in))
	for _, q := range in {
		out = append(out, q.Clone())
	}
	return out
}
