package template

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
)

const (
	ruleRequired = "required"
	ruleMinItems = "min_items"
)

// Validate checks the rules applied on create and update. Every violation
// is returned, not just the first.
func Validate(t Template) []apperrors.Violation {
	var out []apperrors.Violation
	if blank(t.Name) {
		out = append(out, required("name", "template name is required"))
	}
	if blank(t.Quest.Title) {
		out = append(out, required("quest.title", "quest title is required"))
	}
	if blank(t.Quest.Description) {
		out = append(out, required("quest.description", "quest description is required"))
	}
	if len(t.Quest.Steps) == 0 {
		out = append(out, apperrors.Violation{
			Path:    "quest.steps",
			Rule:    ruleMinItems,
			Message: "quest needs at least one step",
		})
	}
	for i, step := range t.Quest.Steps {
		path := stepPath(i)
		label := stepLabel(i, step)
		if blank(step.Title) {
			out = append(out, required(path+".title", label+" title is required"))
		}
		if blank(step.Description) {
			out = append(out, required(path+".description", label+" description is required"))
		}
		if countNonBlank(step.ValidationCriteria) == 0 {
			out = append(out, apperrors.Violation{
				Path:    path + ".validationCriteria",
				Rule:    ruleMinItems,
				Message: label + " needs at least one validation criterion",
			})
		}
	}
	return out
}

// ValidateForPublish adds the skill and theme mapping rules required before
// a template can be published.
func ValidateForPublish(t Template) []apperrors.Violation {
	out := Validate(t)
	if blank(t.Quest.RealWorldSkill) {
		out = append(out, required("quest.realWorldSkill", "quest real-world skill is required to publish"))
	}
	if blank(t.Quest.FantasyTheme) {
		out = append(out, required("quest.fantasyTheme", "quest fantasy theme is required to publish"))
	}
	for i, step := range t.Quest.Steps {
		path := stepPath(i)
		label := stepLabel(i, step)
		if blank(step.RealWorldSkill) {
			out = append(out, required(path+".realWorldSkill", label+" real-world skill is required to publish"))
		}
		if blank(step.FantasyTheme) {
			out = append(out, required(path+".fantasyTheme", label+" fantasy theme is required to publish"))
		}
	}
	return out
}

// Check wraps violations into a validation error, or returns nil.
func Check(violations []apperrors.Violation, message string) error {
	if len(violations) == 0 {
		return nil
	}
	return apperrors.Validation(message, violations)
}

func stepPath(i int) string {
	return fmt.Sprintf("quest.steps[%d]", i)
}

func stepLabel(i int, step StepDefinition) string {
	if id := strings.TrimSpace(step.ID); id != "" {
		return fmt.Sprintf("step %d (%s)", i+1, id)
	}
	return fmt.Sprintf("step %d", i+1)
}

func required(path, message string) apperrors.Violation {
	return apperrors.Violation{Path: path, Rule: ruleRequired, Message: message}
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func countNonBlank(values []string) int {
	n := 0
	for _, v := range values {
		if !blank(v) {
			n++
		}
	}
	return n
}
