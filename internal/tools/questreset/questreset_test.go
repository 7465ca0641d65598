package questreset

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func seedKeys(t *testing.T, server *miniredis.Miniredis) {
	t.Helper()
	for _, key := range []string{"player:p1", "player:p2", "session:p1", "inventory:p1", "item:p1:i1"} {
		server.HSet(key, "id", "x")
	}
	server.HSet("quest:active:p1", "data", "{}")
	if _, err := server.SAdd("quests:completed:p1", "q1"); err != nil {
		t.Fatalf("seed set: %v", err)
	}
	if _, err := server.SAdd("location:town", "p1", "p2"); err != nil {
		t.Fatalf("seed set: %v", err)
	}
	if _, err := server.SAdd("players", "p1", "p2"); err != nil {
		t.Fatalf("seed set: %v", err)
	}
	if _, err := server.ZAdd("leaderboard", 10, "p1"); err != nil {
		t.Fatalf("seed zset: %v", err)
	}
	if err := server.Set("unrelated", "keep"); err != nil {
		t.Fatalf("seed string: %v", err)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("questreset", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.RedisAddr)
	}
	if cfg.Timeout != time.Minute {
		t.Fatalf("expected default timeout, got %v", cfg.Timeout)
	}
	if cfg.ScanCount != defaultScanCount || cfg.DryRun || cfg.JSONOutput {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("QUESTWORLD_REDIS_ADDR", "env-redis:6379")
	t.Setenv("QUESTWORLD_RESET_TIMEOUT", "30s")
	fs := flag.NewFlagSet("questreset", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-categories", "player,session", "-dry-run", "-json"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.RedisAddr != "env-redis:6379" || cfg.Timeout != 30*time.Second {
		t.Fatalf("expected env values, got %+v", cfg)
	}
	if cfg.Categories != "player,session" || !cfg.DryRun || !cfg.JSONOutput {
		t.Fatalf("expected flag values, got %+v", cfg)
	}
}

func TestSelectCategories(t *testing.T) {
	all, err := selectCategories("")
	if err != nil || len(all) != 9 {
		t.Fatalf("expected every category, got %d (%v)", len(all), err)
	}
	got, err := selectCategories(" Player , session,player ")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if names := categoryNames(got); !reflect.DeepEqual(names, []string{"player", "session"}) {
		t.Fatalf("names = %v", names)
	}
	if _, err := selectCategories("player,bogus"); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown category error, got %v", err)
	}
}

func TestRunDryRunKeepsKeys(t *testing.T) {
	server := miniredis.RunT(t)
	seedKeys(t, server)

	var out bytes.Buffer
	err := Run(context.Background(), Config{RedisAddr: server.Addr(), DryRun: true, JSONOutput: true}, &out, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.DryRun || report.Matched != 10 || report.Deleted != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !server.Exists("player:p1") || !server.Exists("leaderboard") {
		t.Fatal("dry run must not delete keys")
	}
}

func TestRunDeletesSelectedCategories(t *testing.T) {
	server := miniredis.RunT(t)
	seedKeys(t, server)

	var out bytes.Buffer
	err := Run(context.Background(), Config{RedisAddr: server.Addr(), Categories: "player,quest"}, &out, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if server.Exists("player:p1") || server.Exists("player:p2") || server.Exists("quest:active:p1") {
		t.Fatalf("expected player and quest keys deleted, keys=%v", server.Keys())
	}
	for _, key := range []string{"quests:completed:p1", "session:p1", "players", "unrelated"} {
		if !server.Exists(key) {
			t.Fatalf("expected %s kept", key)
		}
	}
	if !strings.Contains(out.String(), "Total: 3 keys deleted") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunDeletesEverything(t *testing.T) {
	server := miniredis.RunT(t)
	seedKeys(t, server)

	if err := Run(context.Background(), Config{RedisAddr: server.Addr()}, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if keys := server.Keys(); !reflect.DeepEqual(keys, []string{"unrelated"}) {
		t.Fatalf("expected only unrelated key left, got %v", keys)
	}
}

func TestRunRequiresRedisAddr(t *testing.T) {
	if err := Run(context.Background(), Config{}, nil, nil); err == nil {
		t.Fatal("expected error for missing redis address")
	}
}
