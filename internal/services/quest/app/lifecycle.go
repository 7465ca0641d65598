package app

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/action"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
)

// RewardOverflow decides what happens when quest reward items do not fit.
type RewardOverflow string

const (
	// RewardOverflowReject fails COMPLETE_QUEST with INVENTORY_FULL before
	// anything is written.
	RewardOverflowReject RewardOverflow = "reject"
	// RewardOverflowAllow grants every reward item even past capacity.
	RewardOverflowAllow RewardOverflow = "allow"
)

// ParseRewardOverflow parses a policy label. Empty selects reject.
func ParseRewardOverflow(value string) (RewardOverflow, error) {
	switch RewardOverflow(strings.ToLower(strings.TrimSpace(value))) {
	case "", RewardOverflowReject:
		return RewardOverflowReject, nil
	case RewardOverflowAllow:
		return RewardOverflowAllow, nil
	default:
		return "", fmt.Errorf("unknown reward overflow policy %q", value)
	}
}

// planner turns a command into the patch that applies it. Planners never
// write; an error means nothing changes.
type planner struct {
	now      time.Time
	overflow RewardOverflow
	newID    func() (string, error)
}

func (p planner) setScore(state gamestate.GameState, cmd action.SetScore) (gamestate.Patch, error) {
	updated, err := state.Player.WithScore(cmd.Score)
	if err != nil {
		return gamestate.Patch{}, err
	}
	return gamestate.Patch{Player: &gamestate.PlayerPatch{Score: &updated.Score}}, nil
}

// startQuest activates q, which the caller instantiated from a published
// template.
func (p planner) startQuest(state gamestate.GameState, q quest.Quest) (gamestate.Patch, error) {
	if active := state.Quests.Active; active != nil {
		return gamestate.Patch{}, apperrors.WithMetadata(
			apperrors.CodeQuestAlreadyActive,
			fmt.Sprintf("quest %s is already active", active.ID),
			map[string]string{"QuestID": active.ID, "RequestedQuestID": q.ID},
		)
	}
	if state.CompletedQuest(q.ID) {
		return gamestate.Patch{}, apperrors.WithMetadata(
			apperrors.CodeQuestInvalidStatusTransition,
			fmt.Sprintf("quest %s is already completed", q.ID),
			map[string]string{"QuestID": q.ID, "FromStatus": string(quest.StatusCompleted), "ToStatus": string(quest.StatusActive)},
		)
	}
	started, err := quest.Start(q, p.now)
	if err != nil {
		return gamestate.Patch{}, err
	}
	status := player.StatusInQuest
	return gamestate.Patch{
		Player: &gamestate.PlayerPatch{Status: &status, CurrentQuest: &started.ID},
		Quests: &gamestate.QuestsPatch{Active: &started},
	}, nil
}

func (p planner) completeStep(state gamestate.GameState, cmd action.CompleteQuestStep) (gamestate.Patch, error) {
	active, err := activeQuest(state, cmd.QuestID)
	if err != nil {
		return gamestate.Patch{}, err
	}
	updated, err := quest.CompleteStep(active, cmd.StepID)
	if err != nil {
		return gamestate.Patch{}, err
	}
	return gamestate.Patch{Quests: &gamestate.QuestsPatch{Active: &updated}}, nil
}

// completeQuest finishes the active quest and grants its reward in the same
// patch.
func (p planner) completeQuest(state gamestate.GameState, cmd action.CompleteQuest) (gamestate.Patch, error) {
	active, err := activeQuest(state, cmd.QuestID)
	if err != nil {
		return gamestate.Patch{}, err
	}
	done, err := quest.Complete(active, p.now)
	if err != nil {
		return gamestate.Patch{}, err
	}

	patch := gamestate.Patch{}
	if len(done.Reward.Items) > 0 {
		items := make([]inventory.Item, 0, len(done.Reward.Items))
		for _, name := range done.Reward.Items {
			itemID, err := p.newID()
			if err != nil {
				return gamestate.Patch{}, fmt.Errorf("generate item id: %w", err)
			}
			items = append(items, inventory.Item{
				ID:          itemID,
				Name:        name,
				Description: fmt.Sprintf("Reward for completing %s", done.Title),
				Type:        inventory.ItemTypeTreasure,
				AcquiredAt:  p.now.UTC(),
			})
		}
		var inv inventory.Inventory
		if p.overflow == RewardOverflowAllow {
			inv = state.Inventory.AddOverflow(items...)
		} else if inv, err = state.Inventory.Add(items...); err != nil {
			return gamestate.Patch{}, err
		}
		patch.Inventory = &inv
	}

	score := state.Player.Score + max(done.Reward.Score, 0)
	status := player.StatusCompletedQuest
	noQuest := ""
	patch.Player = &gamestate.PlayerPatch{Score: &score, Status: &status, CurrentQuest: &noQuest}
	patch.Quests = &gamestate.QuestsPatch{ClearActive: true, Completed: []quest.Quest{done}}
	return patch, nil
}

// failQuest abandons the active quest and returns it to the available pool.
func (p planner) failQuest(state gamestate.GameState, cmd action.FailQuest) (gamestate.Patch, error) {
	active, err := activeQuest(state, cmd.QuestID)
	if err != nil {
		return gamestate.Patch{}, err
	}
	failed, err := quest.Fail(active)
	if err != nil {
		return gamestate.Patch{}, err
	}
	// The runtime instance is dropped; available quests are rebuilt from
	// published templates. Reset only checks that the failed quest may
	// return to the pool.
	if _, err := quest.Reset(failed); err != nil {
		return gamestate.Patch{}, err
	}
	status := player.StatusIdle
	noQuest := ""
	return gamestate.Patch{
		Player: &gamestate.PlayerPatch{Status: &status, CurrentQuest: &noQuest},
		Quests: &gamestate.QuestsPatch{ClearActive: true},
		History: []session.Entry{{
			Role:    session.RoleSystem,
			Content: fmt.Sprintf("Quest failed: %s", failed.Title),
			At:      p.now.UTC(),
		}},
	}, nil
}

func (p planner) chat(state gamestate.GameState, cmd action.Chat) (gamestate.Patch, error) {
	patch := gamestate.Patch{History: []session.Entry{{Role: cmd.Role, Content: cmd.Message, At: p.now.UTC()}}}
	if state.Player.Status == player.StatusIdle {
		status := player.StatusChatting
		patch.Player = &gamestate.PlayerPatch{Status: &status}
	}
	return patch, nil
}

// useItem consumes tool and treasure items. Quest items stay in the
// inventory.
func (p planner) useItem(state gamestate.GameState, cmd action.UseItem) (gamestate.Patch, error) {
	item, ok := state.Inventory.Find(cmd.ItemID)
	if !ok {
		_, _, err := state.Inventory.Remove(cmd.ItemID)
		return gamestate.Patch{}, err
	}
	patch := gamestate.Patch{History: []session.Entry{{
		Role:    session.RoleSystem,
		Content: fmt.Sprintf("Used %s", item.Name),
		At:      p.now.UTC(),
	}}}
	if item.Type.Consumable() {
		inv, _, err := state.Inventory.Remove(item.ID)
		if err != nil {
			return gamestate.Patch{}, err
		}
		patch.Inventory = &inv
	}
	return patch, nil
}

// activeQuest returns the active quest, checking questID against it when
// set.
func activeQuest(state gamestate.GameState, questID string) (quest.Quest, error) {
	active := state.Quests.Active
	if active == nil {
		return quest.Quest{}, apperrors.WithMetadata(
			apperrors.CodeNotFound,
			fmt.Sprintf("player %s has no active quest", state.Player.ID),
			map[string]string{"PlayerID": state.Player.ID, "QuestID": questID},
		)
	}
	if questID != "" && questID != active.ID {
		return quest.Quest{}, apperrors.WithMetadata(
			apperrors.CodeNotFound,
			fmt.Sprintf("quest %s is not active for player %s", questID, state.Player.ID),
			map[string]string{"PlayerID": state.Player.ID, "QuestID": questID, "ActiveQuestID": active.ID},
		)
	}
	return active.Clone(), nil
}
