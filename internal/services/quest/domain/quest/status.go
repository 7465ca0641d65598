package quest

import "strings"

// Status describes where a quest sits in its lifecycle.
type Status string

const (
	StatusUnspecified Status = ""
	StatusAvailable   Status = "available"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// ParseStatus canonicalizes a persisted status label.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "available":
		return StatusAvailable, true
	case "active":
		return StatusActive, true
	case "completed":
		return StatusCompleted, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusUnspecified, false
	}
}

// isStatusTransitionAllowed enforces valid quest lifecycle transitions.
func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusAvailable:
		return to == StatusActive
	case StatusActive:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusAvailable
	default:
		return false
	}
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
func IsStatusTransitionAllowed(from, to Status) bool {
	return isStatusTransitionAllowed(from, to)
}
