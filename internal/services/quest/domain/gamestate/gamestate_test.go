package gamestate

import (
	"slices"
	"testing"
	"time"

	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
)

var now = time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

func TestNewDefaults(t *testing.T) {
	s := New("p1", "Ada", 4, now)
	if s.Player.Location != player.DefaultLocation || s.Player.Level != player.LevelNovice {
		t.Fatalf("unexpected player %+v", s.Player)
	}
	if s.Inventory.Capacity != 4 || s.Inventory.Status() != inventory.StatusEmpty {
		t.Fatalf("unexpected inventory %+v", s.Inventory)
	}
	if s.Session == nil || s.Session.Turn != 0 {
		t.Fatalf("unexpected session %+v", s.Session)
	}
	if s.Metadata.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %d", s.Metadata.SchemaVersion)
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestApply(t *testing.T) {
	s := New("p1", "Ada", 4, now)
	score := 150
	status := player.StatusInQuest
	questID := "q1"
	location := "forest"
	active := quest.Quest{ID: questID, Status: quest.StatusActive}
	patch := Patch{
		Player:   &PlayerPatch{Score: &score, Status: &status, CurrentQuest: &questID},
		Location: &location,
		Quests:   &QuestsPatch{Active: &active},
		History:  []session.Entry{{Role: session.RolePlayer, Content: "hello"}},
	}

	got := s.Apply(patch, 10, now.Add(time.Minute))
	if got.Player.Score != 150 || got.Player.Level != player.LevelApprentice {
		t.Fatalf("unexpected player %+v", got.Player)
	}
	if got.Player.Location != "forest" {
		t.Fatalf("location = %q", got.Player.Location)
	}
	if got.Quests.Active == nil || got.Quests.Active.ID != "q1" {
		t.Fatalf("unexpected active quest %+v", got.Quests.Active)
	}
	if got.Session.Turn != 1 || len(got.Session.History) != 1 {
		t.Fatalf("unexpected session %+v", got.Session)
	}
	if err := got.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
	if s.Player.Score != 0 || s.Quests.Active != nil {
		t.Fatal("expected source state untouched")
	}

	want := []string{SectionPlayer, SectionLocation, SectionQuests, SectionSession}
	if !slices.Equal(patch.Sections(), want) {
		t.Fatalf("sections = %v, want %v", patch.Sections(), want)
	}
}

func TestApplyCompletesOnce(t *testing.T) {
	s := New("p1", "Ada", 4, now)
	done := quest.Quest{ID: "q1", Status: quest.StatusCompleted}
	patch := Patch{Quests: &QuestsPatch{ClearActive: true, Completed: []quest.Quest{done}}}
	s = s.Apply(patch, 10, now)
	s = s.Apply(patch, 10, now)
	if len(s.Quests.Completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(s.Quests.Completed))
	}
}

func TestCheckConsistency(t *testing.T) {
	s := New("p1", "Ada", 4, now)
	s.Player.CurrentQuest = "q1"
	if s.CheckConsistency() == nil {
		t.Fatal("expected dangling current quest to fail")
	}
	s.Quests.Active = &quest.Quest{ID: "q2", Status: quest.StatusActive}
	if s.CheckConsistency() == nil {
		t.Fatal("expected mismatched quest to fail")
	}
	s.Player.CurrentQuest = ""
	if s.CheckConsistency() == nil {
		t.Fatal("expected unreferenced active quest to fail")
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(Patch{}).Empty() {
		t.Fatal("expected zero patch to be empty")
	}
}
