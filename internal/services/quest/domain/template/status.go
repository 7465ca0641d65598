package template

import "strings"

// Status describes the authoring lifecycle of a template.
type Status string

const (
	StatusUnspecified Status = ""
	StatusDraft       Status = "draft"
	StatusPublished   Status = "published"
	StatusArchived    Status = "archived"
)

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "draft":
		return StatusDraft, true
	case "published":
		return StatusPublished, true
	case "archived":
		return StatusArchived, true
	default:
		return StatusUnspecified, false
	}
}

// isStatusTransitionAllowed enforces valid template lifecycle transitions.
// Unpublishing returns a published template to draft.
func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPublished
	case StatusPublished:
		return to == StatusArchived || to == StatusDraft
	default:
		return false
	}
}
