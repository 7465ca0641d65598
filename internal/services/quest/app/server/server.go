// Package server wires the quest engine runtime: the shared Redis store, the
// SQLite template store, the HTTP API, gRPC health, and the change listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/questworld/internal/platform/id"
	"github.com/louisbranch/questworld/internal/platform/pubsub"
	"github.com/louisbranch/questworld/internal/platform/timeouts"
	"github.com/louisbranch/questworld/internal/services/quest/app"
	httpapi "github.com/louisbranch/questworld/internal/services/quest/api/http"
	questredis "github.com/louisbranch/questworld/internal/services/quest/storage/redis"
	questsqlite "github.com/louisbranch/questworld/internal/services/quest/storage/sqlite"
	"github.com/louisbranch/questworld/internal/services/quest/templates"
)

const (
	defaultHTTPAddr   = ":8095"
	defaultHealthAddr = ":8096"
	defaultTemplateDB = "data/templates.db"
	healthService     = "questworld.v1.QuestEngine"
)

// RuntimeConfig controls engine startup and dependencies.
type RuntimeConfig struct {
	HTTPAddr          string
	HealthAddr        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	TemplatesDBPath   string
	InstanceID        string
	SessionTTL        time.Duration
	HistoryMax        int
	InventoryCapacity int
	ChangeChannel     string
	RewardOverflow    string
	// UseTransactions wraps each state update in MULTI/EXEC.
	UseTransactions bool
}

// Server hosts the engine HTTP API and gRPC health endpoint.
type Server struct {
	instanceID     string
	httpListener   net.Listener
	httpServer     *http.Server
	healthListener net.Listener
	grpcServer     *grpc.Server
	health         *health.Server
	redis          *goredis.Client
	templates      *templates.Repository
	listener       *app.Listener
	engine         *app.Engine
}

// New connects dependencies and binds listeners. Nothing is served until
// Serve is called.
func New(ctx context.Context, cfg RuntimeConfig) (s *Server, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.HealthAddr) == "" {
		cfg.HealthAddr = defaultHealthAddr
	}
	if strings.TrimSpace(cfg.TemplatesDBPath) == "" {
		cfg.TemplatesDBPath = defaultTemplateDB
	}
	if strings.TrimSpace(cfg.InstanceID) == "" {
		instanceID, err := id.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate instance id: %w", err)
		}
		cfg.InstanceID = instanceID
	}
	overflow, err := app.ParseRewardOverflow(cfg.RewardOverflow)
	if err != nil {
		return nil, err
	}

	s = &Server{instanceID: cfg.InstanceID}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.redis = goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  timeouts.RedisDial,
		ReadTimeout:  timeouts.RedisRead,
		WriteTimeout: timeouts.RedisWrite,
	})
	store := questredis.New(s.redis,
		questredis.WithSessionTTL(cfg.SessionTTL),
		questredis.WithHistoryMax(cfg.HistoryMax),
		questredis.WithInventoryCapacity(cfg.InventoryCapacity),
		questredis.WithTransactions(cfg.UseTransactions),
	)
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	templateStore, err := questsqlite.Open(ctx, cfg.TemplatesDBPath)
	if err != nil {
		return nil, fmt.Errorf("open template store: %w", err)
	}
	s.templates, err = templates.Open(ctx, templateStore)
	if err != nil {
		_ = templateStore.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	broadcaster, err := app.NewBroadcaster(pubsub.NewRedisBroker(s.redis, 0), cfg.ChangeChannel, cfg.InstanceID)
	if err != nil {
		return nil, err
	}
	cache := app.NewStateCache(app.DefaultCacheTTL, nil)
	s.listener, err = app.StartListener(ctx, broadcaster, cache)
	if err != nil {
		return nil, err
	}
	s.engine, err = app.NewEngine(app.Deps{
		States:      store,
		Locations:   store,
		Leaderboard: store,
		Templates:   s.templates,
		Broadcaster: broadcaster,
		Cache:       cache,
	}, app.Config{
		HistoryMax:     cfg.HistoryMax,
		RewardOverflow: overflow,
	})
	if err != nil {
		return nil, err
	}

	handler, err := httpapi.NewHandler(s.engine, s.templates)
	if err != nil {
		return nil, err
	}
	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	s.httpServer = &http.Server{
		Handler:           handler.Instrumented("questd"),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	s.healthListener, err = net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
	}
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Run creates and serves an engine until the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Engine exposes the wired engine.
func (s *Server) Engine() *app.Engine {
	return s.engine
}

// Serve runs the HTTP and health servers until the context ends or either
// fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("questd %s listening at %v (health %v)", s.instanceID, s.httpListener.Addr(), s.healthListener.Addr())
	serveErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve HTTP: %w", err)
			return
		}
		serveErr <- nil
	}()
	go func() {
		if err := s.grpcServer.Serve(s.healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("serve gRPC health: %w", err)
			return
		}
		serveErr <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	case <-s.listener.Done():
		err = errors.New("change listener stopped")
	}
	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("shutdown HTTP: %v", shutdownErr)
	}
	s.grpcServer.GracefulStop()
	return err
}

// Close releases every resource. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
		s.grpcServer = nil
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
		s.httpServer = nil
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.healthListener != nil {
		_ = s.healthListener.Close()
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			log.Printf("close change listener: %v", err)
		}
		s.listener = nil
	}
	if s.templates != nil {
		if err := s.templates.Close(); err != nil {
			log.Printf("close template repository: %v", err)
		}
		s.templates = nil
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
		s.redis = nil
	}
}
