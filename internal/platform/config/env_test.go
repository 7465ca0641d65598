package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port       int           `env:"TEST_PORT" envDefault:"123"`
	SessionTTL time.Duration `env:"TEST_SESSION_TTL" envDefault:"24h"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected default ttl 24h, got %v", cfg.SessionTTL)
	}
}

func TestParseEnvReadsPrefixedVariables(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("QUESTWORLD_TEST_PORT", "9000")
	t.Setenv("TEST_PORT", "1")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected prefixed port 9000, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("QUESTWORLD_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
