package redis

import (
	"context"
	"errors"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/inventory"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

const (
	defaultSessionTTL = 24 * time.Hour
	tracerName        = "github.com/louisbranch/questworld/internal/services/quest/storage/redis"
)

var tracer = otel.Tracer(tracerName)

// Store implements the quest record store and indices on a single Redis
// node. The location script derives set keys from its arguments, so the
// store cannot run against a cluster.
type Store struct {
	client            *goredis.Client
	sessionTTL        time.Duration
	historyMax        int
	inventoryCapacity int
	transactional     bool
	now               func() time.Time
	logf              func(format string, args ...any)
}

var (
	_ storage.StateStore    = (*Store)(nil)
	_ storage.LocationIndex = (*Store)(nil)
	_ storage.Leaderboard   = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithHistoryMax bounds the retained conversation history.
func WithHistoryMax(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyMax = n
		}
	}
}

// WithInventoryCapacity sets the capacity given to new players.
func WithInventoryCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.inventoryCapacity = n
		}
	}
}

// WithTransactions wraps every commit in MULTI/EXEC.
func WithTransactions(enabled bool) Option {
	return func(s *Store) { s.transactional = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides where defensive decode failures are reported.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// New builds a Store over client.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{
		client:            client,
		sessionTTL:        defaultSessionTTL,
		historyMax:        session.DefaultHistoryMax,
		inventoryCapacity: inventory.DefaultCapacity,
		now:               nowMillis,
		logf:              log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nowMillis matches the precision of stored timestamps.
func nowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return transportError("ping", err)
	}
	return nil
}

func (s *Store) pipeline() goredis.Pipeliner {
	if s.transactional {
		return s.client.TxPipeline()
	}
	return s.client.Pipeline()
}

func startSpan(ctx context.Context, name, playerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "redis."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("questworld.player_id", playerID),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func transportError(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeTransport, "redis "+op+": "+err.Error(), err)
}
