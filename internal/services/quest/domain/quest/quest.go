// Package quest holds the runtime quest instance and its lifecycle rules.
package quest

import (
	"fmt"
	"maps"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
)

// Step is one objective of a quest instance.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Completed   bool           `json:"completed"`
	Data        map[string]any `json:"data,omitempty"`
}

// Reward is granted when a quest completes.
type Reward struct {
	Score int      `json:"score"`
	Items []string `json:"items,omitempty"`
}

// Quest is a runtime quest instance owned by one player.
type Quest struct {
	ID          string     `json:"id"`
	TemplateID  string     `json:"templateId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Steps       []Step     `json:"steps"`
	Reward      Reward     `json:"reward"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (q Quest) Clone() Quest {
	out := q
	if q.Steps != nil {
		out.Steps = make([]Step, len(q.Steps))
		for i, step := range q.Steps {
			step.Data = maps.Clone(step.Data)
			out.Steps[i] = step
		}
	}
	out.Reward.Items = append([]string(nil), q.Reward.Items...)
	if q.StartedAt != nil {
		at := *q.StartedAt
		out.StartedAt = &at
	}
	if q.CompletedAt != nil {
		at := *q.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// AllStepsComplete reports whether every step is completed.
func (q Quest) AllStepsComplete() bool {
	for _, step := range q.Steps {
		if !step.Completed {
			return false
		}
	}
	return true
}

// PendingSteps lists the ids of steps not yet completed.
func (q Quest) PendingSteps() []string {
	var pending []string
	for _, step := range q.Steps {
		if !step.Completed {
			pending = append(pending, step.ID)
		}
	}
	return pending
}

// Transition moves the quest to target, rejecting illegal transitions.
func Transition(q Quest, target Status) (Quest, error) {
	if !isStatusTransitionAllowed(q.Status, target) {
		return Quest{}, apperrors.WithMetadata(
			apperrors.CodeQuestInvalidStatusTransition,
			fmt.Sprintf("quest %s cannot move from %s to %s", q.ID, q.Status, target),
			map[string]string{"QuestID": q.ID, "FromStatus": string(q.Status), "ToStatus": string(target)},
		)
	}
	out := q.Clone()
	out.Status = target
	return out, nil
}

// Start activates an available quest.
func Start(q Quest, now time.Time) (Quest, error) {
	out, err := Transition(q, StatusActive)
	if err != nil {
		return Quest{}, err
	}
	at := stamp(now)
	out.StartedAt = &at
	out.CompletedAt = nil
	return out, nil
}

// CompleteStep marks one step of an active quest complete. Completing an
// already completed step is a no-op.
func CompleteStep(q Quest, stepID string) (Quest, error) {
	if q.Status != StatusActive {
		return Quest{}, apperrors.WithMetadata(
			apperrors.CodeQuestInvalidStatusTransition,
			fmt.Sprintf("quest %s is %s, steps can only be completed while active", q.ID, q.Status),
			map[string]string{"QuestID": q.ID, "FromStatus": string(q.Status)},
		)
	}
	out := q.Clone()
	for i := range out.Steps {
		if out.Steps[i].ID == stepID {
			out.Steps[i].Completed = true
			return out, nil
		}
	}
	return Quest{}, apperrors.WithMetadata(
		apperrors.CodeNotFound,
		fmt.Sprintf("step %s not found in quest %s", stepID, q.ID),
		map[string]string{"QuestID": q.ID, "StepID": stepID},
	)
}

// Complete finishes an active quest whose steps are all completed.
func Complete(q Quest, now time.Time) (Quest, error) {
	if q.Status == StatusActive && !q.AllStepsComplete() {
		return Quest{}, apperrors.WithMetadata(
			apperrors.CodeQuestStepsIncomplete,
			fmt.Sprintf("quest %s has incomplete steps", q.ID),
			map[string]string{"QuestID": q.ID, "PendingSteps": fmt.Sprint(q.PendingSteps())},
		)
	}
	out, err := Transition(q, StatusCompleted)
	if err != nil {
		return Quest{}, err
	}
	at := stamp(now)
	out.CompletedAt = &at
	return out, nil
}

// Fail abandons an active quest.
func Fail(q Quest) (Quest, error) {
	return Transition(q, StatusFailed)
}

// Reset returns a failed quest to the available pool. Step completion is kept.
func Reset(q Quest) (Quest, error) {
	out, err := Transition(q, StatusAvailable)
	if err != nil {
		return Quest{}, err
	}
	out.StartedAt = nil
	out.CompletedAt = nil
	return out, nil
}

// stamp matches the millisecond precision of stored quest times.
func stamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}
