package gamestate

import (
	"time"

	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
)

// PlayerPatch changes profile fields. Nil fields are left untouched.
type PlayerPatch struct {
	Name   *string        `json:"name,omitempty"`
	Score  *int           `json:"score,omitempty"`
	Status *player.Status `json:"status,omitempty"`
	// CurrentQuest set to an empty string clears the reference.
	CurrentQuest *string `json:"currentQuest,omitempty"`
}

// QuestsPatch changes the active quest and appends completed quests.
type QuestsPatch struct {
	Active      *quest.Quest  `json:"active,omitempty"`
	ClearActive bool          `json:"clearActive,omitempty"`
	Completed   []quest.Quest `json:"completed,omitempty"`
}

// Patch is a partial update of one player's records.
type Patch struct {
	Player    *PlayerPatch         `json:"player,omitempty"`
	Location  *string              `json:"location,omitempty"`
	Inventory *inventory.Inventory `json:"inventory,omitempty"`
	Quests    *QuestsPatch         `json:"quests,omitempty"`
	History   []session.Entry      `json:"history,omitempty"`
}

// Section names used in change notifications.
const (
	SectionPlayer    = "player"
	SectionLocation  = "location"
	SectionInventory = "inventory"
	SectionQuests    = "quests"
	SectionSession   = "session"
)

// Sections lists the record groups the patch touches.
func (p Patch) Sections() []string {
	var out []string
	if p.Player != nil {
		out = append(out, SectionPlayer)
	}
	if p.Location != nil {
		out = append(out, SectionLocation)
	}
	if p.Inventory != nil {
		out = append(out, SectionInventory)
	}
	if p.Quests != nil {
		out = append(out, SectionQuests)
	}
	if len(p.History) > 0 {
		out = append(out, SectionSession)
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.Sections()) == 0
}

// Apply returns a copy of s with the patch applied in memory, advancing the
// session turn as a write through the record store would.
func (s GameState) Apply(p Patch, historyMax int, now time.Time) GameState {
	out := s.Clone()
	if pp := p.Player; pp != nil {
		if pp.Name != nil {
			out.Player.Name = *pp.Name
		}
		if pp.Score != nil {
			out.Player.Score = *pp.Score
			out.Player.Level = player.LevelForScore(*pp.Score)
		}
		if pp.Status != nil {
			out.Player.Status = *pp.Status
		}
		if pp.CurrentQuest != nil {
			out.Player.CurrentQuest = *pp.CurrentQuest
		}
	}
	if p.Location != nil {
		out.Player.Location = *p.Location
	}
	if p.Inventory != nil {
		out.Inventory = p.Inventory.Clone()
	}
	if qp := p.Quests; qp != nil {
		if qp.ClearActive {
			out.Quests.Active = nil
		}
		if qp.Active != nil {
			active := qp.Active.Clone()
			out.Quests.Active = &active
		}
		for _, completed := range qp.Completed {
			if !out.CompletedQuest(completed.ID) {
				out.Quests.Completed = append(out.Quests.Completed, completed.Clone())
			}
		}
	}
	sess := session.New(s.Player.ID, now)
	if out.Session != nil {
		sess = *out.Session
	}
	sess = sess.Touch(now)
	if len(p.History) > 0 {
		sess = sess.Append(historyMax, p.History...)
	}
	out.Session = &sess
	out.Metadata.LastUpdated = now.UTC()
	return out
}
