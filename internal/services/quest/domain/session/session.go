// Package session models the time-limited play session and its chat history.
package session

import "time"

// DefaultHistoryMax bounds the retained history when no limit is configured.
const DefaultHistoryMax = 50

// Role identifies who produced a history entry.
type Role string

const (
	RolePlayer    Role = "player"
	RoleNarrator  Role = "narrator"
	RoleCharacter Role = "character"
	RoleSystem    Role = "system"
)

// ParseRole maps a label to a role, defaulting to player.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RolePlayer, "":
		return RolePlayer, true
	case RoleNarrator, RoleCharacter, RoleSystem:
		return Role(value), true
	default:
		return "", false
	}
}

// Entry is one line of conversation history.
type Entry struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the ephemeral per-player session record.
type Session struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	LastActionAt time.Time `json:"lastActionAt"`
	Turn         int64     `json:"turn"`
	History      []Entry   `json:"history"`
}

// New opens a session at now.
func New(id string, now time.Time) Session {
	now = now.UTC()
	return Session{ID: id, StartedAt: now, LastActionAt: now, History: []Entry{}}
}

// Touch records an action at now.
func (s Session) Touch(now time.Time) Session {
	s.Turn++
	s.LastActionAt = now.UTC()
	return s
}

// Append adds entries and keeps only the newest limit entries.
func (s Session) Append(limit int, entries ...Entry) Session {
	history := make([]Entry, 0, len(s.History)+len(entries))
	history = append(history, s.History...)
	history = append(history, entries...)
	s.History = Trim(history, limit)
	return s
}

// Trim keeps the newest limit entries. Non-positive limit uses DefaultHistoryMax.
func Trim(history []Entry, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultHistoryMax
	}
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
