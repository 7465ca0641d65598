// Package questd parses engine instance flags and launches the service.
package questd

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/questworld/internal/platform/cmd"
	server "github.com/louisbranch/questworld/internal/services/quest/app/server"
)

// Config holds questd command configuration.
type Config struct {
	HTTPAddr          string        `env:"HTTP_ADDR"          envDefault:":8095"`
	HealthAddr        string        `env:"HEALTH_ADDR"        envDefault:":8096"`
	RedisAddr         string        `env:"REDIS_ADDR"         envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB"           envDefault:"0"`
	TemplatesDBPath   string        `env:"TEMPLATES_DB_PATH"  envDefault:"data/templates.db"`
	InstanceID        string        `env:"INSTANCE_ID"`
	SessionTTL        time.Duration `env:"SESSION_TTL"        envDefault:"24h"`
	HistoryMax        int           `env:"HISTORY_MAX"        envDefault:"50"`
	InventoryCapacity int           `env:"INVENTORY_CAPACITY" envDefault:"10"`
	ChangeChannel     string        `env:"CHANGE_CHANNEL"     envDefault:"questworld:changes"`
	RewardOverflow    string        `env:"REWARD_OVERFLOW"    envDefault:"reject"`
	UseTransactions   bool          `env:"USE_TRANSACTIONS"   envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP API listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "shared Redis address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "shared Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "shared Redis database index")
	fs.StringVar(&cfg.TemplatesDBPath, "templates-db", cfg.TemplatesDBPath, "quest template SQLite path")
	fs.StringVar(&cfg.InstanceID, "instance-id", cfg.InstanceID, "engine instance id (generated when empty)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "idle session expiry")
	fs.IntVar(&cfg.HistoryMax, "history-max", cfg.HistoryMax, "conversation history entries kept per player")
	fs.IntVar(&cfg.InventoryCapacity, "inventory-capacity", cfg.InventoryCapacity, "default inventory capacity")
	fs.StringVar(&cfg.ChangeChannel, "change-channel", cfg.ChangeChannel, "change event channel")
	fs.StringVar(&cfg.RewardOverflow, "reward-overflow", cfg.RewardOverflow, "reward items past capacity: reject or allow")
	fs.BoolVar(&cfg.UseTransactions, "use-transactions", cfg.UseTransactions, "commit multi-record writes in MULTI/EXEC")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts one engine instance.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceQuestd, func(context.Context) error {
		if err := server.Run(ctx, server.RuntimeConfig{
			HTTPAddr:          cfg.HTTPAddr,
			HealthAddr:        cfg.HealthAddr,
			RedisAddr:         cfg.RedisAddr,
			RedisPassword:     cfg.RedisPassword,
			RedisDB:           cfg.RedisDB,
			TemplatesDBPath:   cfg.TemplatesDBPath,
			InstanceID:        cfg.InstanceID,
			SessionTTL:        cfg.SessionTTL,
			HistoryMax:        cfg.HistoryMax,
			InventoryCapacity: cfg.InventoryCapacity,
			ChangeChannel:     cfg.ChangeChannel,
			RewardOverflow:    cfg.RewardOverflow,
			UseTransactions:   cfg.UseTransactions,
		}); err != nil {
			return fmt.Errorf("serve questd: %w", err)
		}
		return nil
	})
}
