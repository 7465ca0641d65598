package server

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T, redisAddr string) RuntimeConfig {
	t.Helper()
	return RuntimeConfig{
		HTTPAddr:        "127.0.0.1:0",
		HealthAddr:      "127.0.0.1:0",
		RedisAddr:       redisAddr,
		TemplatesDBPath: filepath.Join(t.TempDir(), "templates.db"),
		InstanceID:      "questd-test",
	}
}

func TestServer_ServesHTTPAndHealth(t *testing.T) {
	redis := miniredis.RunT(t)
	srv, err := New(context.Background(), testConfig(t, redis.Addr()))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})

	resp, err := http.Get("http://" + srv.Addr() + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("/up = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Post("http://"+srv.Addr()+"/v1/players/p1/state", "application/json", strings.NewReader(`{"name":"Ada"}`))
	if err != nil {
		t.Fatalf("create state: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create state status = %d", resp.StatusCode)
	}
	if !redis.Exists("player:p1") {
		t.Fatalf("expected player profile in redis, keys=%v", redis.Keys())
	}

	conn, err := grpc.NewClient(srv.HealthAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	check, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: healthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if check.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v", check.GetStatus())
	}
}

func TestNew_RequiresRedisAddr(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing redis address")
	}
}

func TestNew_RejectsUnknownOverflowPolicy(t *testing.T) {
	redis := miniredis.RunT(t)
	cfg := testConfig(t, redis.Addr())
	cfg.RewardOverflow = "drop"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown overflow policy")
	}
}

func TestNew_FailsWhenRedisUnreachable(t *testing.T) {
	redis := miniredis.RunT(t)
	addr := redis.Addr()
	redis.Close()
	if _, err := New(context.Background(), testConfig(t, addr)); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}
