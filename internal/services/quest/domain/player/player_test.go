package player

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
)

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelNovice},
		{99, LevelNovice},
		{100, LevelApprentice},
		{150, LevelApprentice},
		{499, LevelApprentice},
		{500, LevelExpert},
		{999, LevelExpert},
		{1000, LevelMaster},
		{50000, LevelMaster},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Fatalf("LevelForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New("p1", "  ", now)
	if p.Name != "Adventurer p1" {
		t.Fatalf("name = %q", p.Name)
	}
	if p.Score != 0 || p.Level != LevelNovice || p.Status != StatusIdle {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.Location != DefaultLocation {
		t.Fatalf("location = %q, want %q", p.Location, DefaultLocation)
	}
	if p.CurrentQuest != "" {
		t.Fatalf("expected no current quest, got %q", p.CurrentQuest)
	}
	if !p.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v", p.CreatedAt)
	}
}

func TestWithScore(t *testing.T) {
	p := New("p1", "Ada", time.Now())
	updated, err := p.WithScore(150)
	if err != nil {
		t.Fatalf("with score: %v", err)
	}
	if updated.Level != LevelApprentice {
		t.Fatalf("level = %s, want apprentice", updated.Level)
	}
	if p.Score != 0 {
		t.Fatal("expected original player untouched")
	}

	_, err = p.WithScore(-1)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidAction {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestStatusFromLabel(t *testing.T) {
	tests := map[string]Status{
		"in-quest":        StatusInQuest,
		" CHATTING ":      StatusChatting,
		"completed-quest": StatusCompletedQuest,
		"idle":            StatusIdle,
		"garbage":         StatusIdle,
		"":                StatusIdle,
	}
	for label, want := range tests {
		if got := StatusFromLabel(label); got != want {
			t.Fatalf("StatusFromLabel(%q) = %s, want %s", label, got, want)
		}
	}
}
