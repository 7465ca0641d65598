package redis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/player"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *logRecorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.lines, func(line string) bool { return strings.Contains(line, substr) })
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis, *logRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logs := &logRecorder{}
	base := []Option{WithClock(func() time.Time { return testNow }), WithLogger(logs.logf)}
	return New(client, append(base, opts...)...), mr, logs
}

func ptr[T any](v T) *T { return &v }

func TestGetStateUnknownPlayer(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.GetState(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateStateDefaults(t *testing.T) {
	store, mr, _ := newTestStore(t, WithInventoryCapacity(5))
	ctx := context.Background()

	created, err := store.CreateState(ctx, "p1", "Ada")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Player.Name != "Ada" || got.Player.Location != player.DefaultLocation || got.Player.Level != player.LevelNovice {
		t.Fatalf("unexpected player %+v", got.Player)
	}
	if got.Inventory.Capacity != 5 || len(got.Inventory.Items) != 0 {
		t.Fatalf("unexpected inventory %+v", got.Inventory)
	}
	if got.Session == nil || got.Session.Turn != 0 || !got.Session.StartedAt.Equal(testNow) {
		t.Fatalf("unexpected session %+v", got.Session)
	}
	if got.Quests.Active != nil || len(got.Quests.Completed) != 0 {
		t.Fatalf("unexpected quests %+v", got.Quests)
	}
	if created.Player.ID != got.Player.ID || !got.Player.CreatedAt.Equal(testNow) {
		t.Fatalf("created %+v does not match stored %+v", created.Player, got.Player)
	}

	if ok, _ := mr.SIsMember(KeyPlayers, "p1"); !ok {
		t.Fatal("expected player registry membership")
	}
	if ok, _ := mr.SIsMember(locationKey(player.DefaultLocation), "p1"); !ok {
		t.Fatal("expected default location membership")
	}
	if score, err := mr.ZScore(KeyLeaderboard, "p1"); err != nil || score != 0 {
		t.Fatalf("leaderboard score = %v, %v", score, err)
	}
	if ttl := mr.TTL(sessionKey("p1")); ttl != 24*time.Hour {
		t.Fatalf("session ttl = %v", ttl)
	}
}

func TestSetScoreScenario(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateState(ctx, "p1", gamestate.Patch{Player: &gamestate.PlayerPatch{Score: ptr(150)}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.SetScore(ctx, "p1", 150); err != nil {
		t.Fatalf("set score: %v", err)
	}

	got, err := store.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Player.Score != 150 || got.Player.Level != player.LevelApprentice {
		t.Fatalf("unexpected player %+v", got.Player)
	}
	top, err := store.Top(ctx, 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].PlayerID != "p1" || top[0].Score != 150 || top[0].Rank != 1 {
		t.Fatalf("unexpected top %+v", top)
	}
}

func TestUpdateStateRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}

	started := testNow
	active := quest.Quest{
		ID:     "q1",
		Title:  "Find the Lost Cat",
		Status: quest.StatusActive,
		Steps: []quest.Step{
			{ID: "s1", Description: "Ask around", Completed: true},
			{ID: "s2", Description: "Search the barn"},
		},
		Reward:    quest.Reward{Score: 50},
		StartedAt: &started,
	}
	done := quest.Quest{ID: "q0", Title: "Tutorial", Status: quest.StatusCompleted, Steps: []quest.Step{}, CompletedAt: &started}
	inv := inventory.New(3).AddOverflow(
		inventory.Item{ID: "i1", Name: "Lantern", Type: inventory.ItemTypeTool, AcquiredAt: testNow},
		inventory.Item{ID: "i2", Name: "Map", Type: inventory.ItemTypeQuest, AcquiredAt: testNow.Add(time.Second)},
	)
	patch := gamestate.Patch{
		Player: &gamestate.PlayerPatch{
			Name:         ptr("Ada L."),
			Status:       ptr(player.StatusInQuest),
			CurrentQuest: ptr("q1"),
		},
		Location:  ptr("forest"),
		Inventory: &inv,
		Quests:    &gamestate.QuestsPatch{Active: &active, Completed: []quest.Quest{done}},
		History:   []session.Entry{{Role: session.RolePlayer, Content: "hello", At: testNow}},
	}
	if err := store.UpdateState(ctx, "p1", patch); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Player.Name != "Ada L." || got.Player.Status != player.StatusInQuest || got.Player.CurrentQuest != "q1" {
		t.Fatalf("unexpected player %+v", got.Player)
	}
	if got.Player.Location != "forest" {
		t.Fatalf("location = %q", got.Player.Location)
	}
	if got.Quests.Active == nil || got.Quests.Active.ID != "q1" || !got.Quests.Active.Steps[0].Completed {
		t.Fatalf("unexpected active quest %+v", got.Quests.Active)
	}
	if len(got.Quests.Completed) != 1 || got.Quests.Completed[0].ID != "q0" {
		t.Fatalf("unexpected completed quests %+v", got.Quests.Completed)
	}
	if len(got.Inventory.Items) != 2 || got.Inventory.Items[0].ID != "i1" || got.Inventory.Capacity != 3 {
		t.Fatalf("unexpected inventory %+v", got.Inventory)
	}
	if got.Session == nil || got.Session.Turn != 1 || len(got.Session.History) != 1 || got.Session.History[0].Content != "hello" {
		t.Fatalf("unexpected session %+v", got.Session)
	}
	if err := got.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}

	clear := gamestate.Patch{
		Player: &gamestate.PlayerPatch{CurrentQuest: ptr("")},
		Quests: &gamestate.QuestsPatch{ClearActive: true},
	}
	if err := store.UpdateState(ctx, "p1", clear); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = store.GetState(ctx, "p1")
	if got.Quests.Active != nil || got.Player.CurrentQuest != "" || got.Session.Turn != 2 {
		t.Fatalf("expected cleared quest, got %+v turn %d", got.Quests.Active, got.Session.Turn)
	}
}

func TestUpdateStateUnknownPlayer(t *testing.T) {
	store, _, _ := newTestStore(t)
	err := store.UpdateState(context.Background(), "ghost", gamestate.Patch{Location: ptr("forest")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetStateDropsCorruptActiveQuest(t *testing.T) {
	store, mr, logs := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.HSet(activeQuestKey("p1"), fieldData, "{not json")
	mr.HSet(playerKey("p1"), fieldCurrentQuest, "q1")

	got, err := store.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Quests.Active != nil || got.Player.CurrentQuest != "" {
		t.Fatalf("expected corrupt quest to be treated as absent, got %+v", got.Quests.Active)
	}
	if !logs.contains("undecodable active quest") {
		t.Fatalf("expected decode failure to be logged, got %v", logs.lines)
	}
}

func TestSessionExpiryIsTolerated(t *testing.T) {
	store, mr, _ := newTestStore(t, WithSessionTTL(time.Minute))
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := store.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got.Session != nil {
		t.Fatalf("expected expired session, got %+v", got.Session)
	}

	if err := store.UpdateState(ctx, "p1", gamestate.Patch{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.GetState(ctx, "p1")
	if got.Session == nil || got.Session.Turn != 1 || got.Session.ID != "p1" {
		t.Fatalf("expected recreated session, got %+v", got.Session)
	}
	if ttl := mr.TTL(sessionKey("p1")); ttl != time.Minute {
		t.Fatalf("session ttl = %v", ttl)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	store, _, _ := newTestStore(t, WithHistoryMax(3))
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := range 5 {
		entry := session.Entry{Role: session.RolePlayer, Content: fmt.Sprint(i), At: testNow}
		if err := store.UpdateState(ctx, "p1", gamestate.Patch{History: []session.Entry{entry}}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, _ := store.GetState(ctx, "p1")
	if len(got.Session.History) != 3 || got.Session.History[0].Content != "2" || got.Session.History[2].Content != "4" {
		t.Fatalf("unexpected history %+v", got.Session.History)
	}
	if got.Session.Turn != 5 {
		t.Fatalf("turn = %d, want 5", got.Session.Turn)
	}
}

func TestReplaceInventoryRemovesOldItems(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := inventory.New(10).AddOverflow(inventory.Item{ID: "old", Name: "Rusty Key", AcquiredAt: testNow})
	if err := store.UpdateState(ctx, "p1", gamestate.Patch{Inventory: &first}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	second := inventory.New(10).AddOverflow(inventory.Item{ID: "new", Name: "Golden Key", AcquiredAt: testNow})
	if err := store.UpdateState(ctx, "p1", gamestate.Patch{Inventory: &second}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if mr.Exists(itemKey("p1", "old")) {
		t.Fatal("expected old item record removed")
	}
	got, _ := store.GetState(ctx, "p1")
	if len(got.Inventory.Items) != 1 || got.Inventory.Items[0].Name != "Golden Key" {
		t.Fatalf("unexpected inventory %+v", got.Inventory)
	}
}

func TestTransactionalCommit(t *testing.T) {
	store, _, _ := newTestStore(t, WithTransactions(true))
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	uow := store.Begin("p1")
	uow.SetProfile(map[string]any{fieldName: "Grace"})
	uow.MoveLocation("castle")
	uow.Touch(testNow)
	if uow.Len() != 3 {
		t.Fatalf("len = %d, want 3", uow.Len())
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, _ := store.GetState(ctx, "p1")
	if got.Player.Name != "Grace" || got.Player.Location != "castle" {
		t.Fatalf("unexpected player %+v", got.Player)
	}
}

func TestTransportFailure(t *testing.T) {
	store, mr, _ := newTestStore(t)
	mr.Close()
	_, err := store.GetState(context.Background(), "p1")
	if apperrors.CodeOf(err) != apperrors.CodeTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := store.Ping(context.Background()); apperrors.CodeOf(err) != apperrors.CodeTransport {
		t.Fatalf("expected ping transport error, got %v", err)
	}
}

func TestCategoriesCoverEveryKey(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateState(ctx, "p1", "Ada"); err != nil {
		t.Fatalf("create: %v", err)
	}
	inv := inventory.New(10).AddOverflow(inventory.Item{ID: "i1", Name: "Lantern", AcquiredAt: testNow})
	active := quest.Quest{ID: "q1", Status: quest.StatusActive}
	done := quest.Quest{ID: "q0", Status: quest.StatusCompleted}
	patch := gamestate.Patch{
		Inventory: &inv,
		Quests:    &gamestate.QuestsPatch{Active: &active, Completed: []quest.Quest{done}},
		History:   []session.Entry{{Role: session.RolePlayer, Content: "hi"}},
	}
	if err := store.UpdateState(ctx, "p1", patch); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, key := range mr.Keys() {
		matched := slices.ContainsFunc(Categories(), func(c Category) bool {
			ok, _ := path.Match(c.Pattern, key)
			return ok
		})
		if !matched {
			t.Fatalf("key %q is not covered by any category", key)
		}
	}
}

func TestConcurrentCreateStateSettlesOnDefaults(t *testing.T) {
	tests := []struct {
		name         string
		transactions bool
	}{
		{name: "pipeline", transactions: false},
		{name: "transaction", transactions: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr, _ := newTestStore(t, WithTransactions(tt.transactions))
			ctx := context.Background()

			for round := range 20 {
				var wg sync.WaitGroup
				errs := make(chan error, 2)
				for _, name := range []string{"Ada", "Grace"} {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := store.CreateState(ctx, "p1", name)
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					if err != nil {
						t.Fatalf("round %d: create: %v", round, err)
					}
				}

				got, err := store.GetState(ctx, "p1")
				if err != nil {
					t.Fatalf("round %d: get: %v", round, err)
				}
				if got.Player.Name != "Ada" && got.Player.Name != "Grace" {
					t.Fatalf("round %d: name = %q", round, got.Player.Name)
				}
				if got.Player.Score != 0 || got.Player.Location != player.DefaultLocation || got.Player.Status != player.StatusIdle {
					t.Fatalf("round %d: unexpected player %+v", round, got.Player)
				}
				if got.Session == nil || got.Session.Turn != 0 || len(got.Inventory.Items) != 0 {
					t.Fatalf("round %d: unexpected session %+v inventory %+v", round, got.Session, got.Inventory)
				}
				if err := got.CheckConsistency(); err != nil {
					t.Fatalf("round %d: consistency: %v", round, err)
				}

				holders := 0
				for _, key := range mr.Keys() {
					if !strings.HasPrefix(key, PrefixLocation) {
						continue
					}
					if ok, _ := mr.SIsMember(key, "p1"); ok {
						holders++
					}
				}
				if holders != 1 {
					t.Fatalf("round %d: player held by %d location sets", round, holders)
				}
				members, err := mr.Members(KeyPlayers)
				if err != nil || len(members) != 1 {
					t.Fatalf("round %d: players = %v, %v", round, members, err)
				}
			}
		})
	}
}
