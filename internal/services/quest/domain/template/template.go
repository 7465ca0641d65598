// Package template defines authoring-time quest templates, their validation
// rules, and how a published template becomes a runtime quest.
package template

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
)

// InitialVersion is assigned to newly created templates.
const InitialVersion = "1.0.0"

// Difficulty grades a step.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// StepDefinition is the authoring form of a quest step.
type StepDefinition struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Difficulty         Difficulty `json:"difficulty,omitempty"`
	Points             int        `json:"points,omitempty"`
	ValidationCriteria []string   `json:"validationCriteria"`
	RealWorldSkill     string     `json:"realWorldSkill,omitempty"`
	FantasyTheme       string     `json:"fantasyTheme,omitempty"`
}

// Definition is the quest embedded in a template.
type Definition struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	RealWorldSkill string           `json:"realWorldSkill,omitempty"`
	FantasyTheme   string           `json:"fantasyTheme,omitempty"`
	Steps          []StepDefinition `json:"steps"`
	Reward         quest.Reward     `json:"reward"`
}

// Template is a versioned quest definition.
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version"`
	Status      Status     `json:"status"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags"`
	Author      string     `json:"author,omitempty"`
	Quest       Definition `json:"quest"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Clone deep-copies the template.
func (t Template) Clone() Template {
	out := t
	out.Tags = slices.Clone(t.Tags)
	out.Quest.Reward.Items = slices.Clone(t.Quest.Reward.Items)
	out.Quest.Steps = make([]StepDefinition, len(t.Quest.Steps))
	for i, step := range t.Quest.Steps {
		step.ValidationCriteria = slices.Clone(step.ValidationCriteria)
		out.Quest.Steps[i] = step
	}
	if t.PublishedAt != nil {
		at := *t.PublishedAt
		out.PublishedAt = &at
	}
	return out
}

// HasTag reports whether the template carries tag, ignoring case.
func (t Template) HasTag(tag string) bool {
	return slices.ContainsFunc(t.Tags, func(candidate string) bool {
		return strings.EqualFold(candidate, tag)
	})
}

// Transition moves the template to target, rejecting illegal transitions.
func Transition(t Template, target Status) (Template, error) {
	if !isStatusTransitionAllowed(t.Status, target) {
		return Template{}, apperrors.WithMetadata(
			apperrors.CodeTemplateInvalidStatusTransition,
			fmt.Sprintf("template %s cannot move from %s to %s", t.ID, t.Status, target),
			map[string]string{"TemplateID": t.ID, "FromStatus": string(t.Status), "ToStatus": string(target)},
		)
	}
	out := t.Clone()
	out.Status = target
	return out, nil
}

// BumpPatch increments the patch component of a semantic version.
func BumpPatch(version string) (string, error) {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid(v) || semver.Prerelease(v) != "" || semver.Build(v) != "" {
		return "", apperrors.WithMetadata(
			apperrors.CodeValidationFailed,
			fmt.Sprintf("invalid template version %q", version),
			map[string]string{"Version": version},
		)
	}
	parts := strings.Split(strings.TrimPrefix(semver.Canonical(v), "v"), ".")
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("parse patch of %q: %w", version, err)
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1), nil
}

// Instantiate builds an available runtime quest from the definition. Step
// authoring metadata is carried in the step data as JSON-native values, the
// same types a decoded quest blob holds.
func (d Definition) Instantiate(templateID string) quest.Quest {
	steps := make([]quest.Step, 0, len(d.Steps))
	for _, def := range d.Steps {
		data := map[string]any{}
		if def.Difficulty != "" {
			data["difficulty"] = string(def.Difficulty)
		}
		if def.Points != 0 {
			data["points"] = float64(def.Points)
		}
		if len(def.ValidationCriteria) > 0 {
			criteria := make([]any, 0, len(def.ValidationCriteria))
			for _, criterion := range def.ValidationCriteria {
				criteria = append(criteria, criterion)
			}
			data["validationCriteria"] = criteria
		}
		if len(data) == 0 {
			data = nil
		}
		description := def.Description
		if description == "" {
			description = def.Title
		}
		steps = append(steps, quest.Step{ID: def.ID, Description: description, Data: data})
	}
	return quest.Quest{
		ID:          d.ID,
		TemplateID:  templateID,
		Title:       d.Title,
		Description: d.Description,
		Status:      quest.StatusAvailable,
		Steps:       steps,
		Reward:      quest.Reward{Score: d.Reward.Score, Items: slices.Clone(d.Reward.Items)},
	}
}
