package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/plancache/observe"
)

// RedisConfig configures the distributed tier.
type RedisConfig struct {
	// Addrs are the endpoints. More than one address selects cluster mode.
	Addrs []string

	// Username and Password authenticate the connection. Both support
	// ${VAR} environment expansion so credentials stay out of config files.
	Username string
	Password string

	// DB selects the logical database (ignored in cluster mode).
	DB int

	// FailOpen downgrades every operation to a miss while the store is
	// unreachable. When false, errors propagate and NewRedis fails fast
	// if the store cannot be reached at startup.
	FailOpen bool

	// ReadFromReplicas routes reads to the closest replica; writes always
	// go to the slot primary.
	ReadFromReplicas bool

	// PoolSize overrides the client connection pool size.
	PoolSize int

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration

	// ProbeInterval is the liveness probe period.
	// Default: 5s
	ProbeInterval time.Duration
}

// RedisStore is the distributed tier, backed by a single node or a
// cluster. Batched reads are grouped by owning hash slot so a request
// spanning partitions becomes one MGET per partition, reassembled in the
// caller's order.
//
// A background probe watches liveness; after a failure the store marks
// itself unavailable and reconnects with jittered exponential backoff,
// retrying forever so transient outages self-heal.
type RedisStore struct {
	cfg    RedisConfig
	client redis.UniversalClient
	logger observe.Logger

	healthy atomic.Bool
	closed  atomic.Bool

	stopProbe context.CancelFunc
	probeDone chan struct{}

	reconnects   atomic.Int64
	unresponsive atomic.Int64
	degradedOps  atomic.Int64
}

// RedisStats is a point-in-time snapshot of connection health counters.
type RedisStats struct {
	Healthy      bool
	Reconnects   int64
	Unresponsive int64
	DegradedOps  int64
}

// NewRedis connects the distributed tier and starts its liveness probe.
// With FailOpen disabled, an unreachable store is a startup error.
func NewRedis(ctx context.Context, cfg RedisConfig, logger observe.Logger) (*RedisStore, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("store: redis requires at least one address")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if logger == nil {
		logger = observe.NewNopLogger()
	}

	username, err := expandCredential(cfg.Username)
	if err != nil {
		return nil, fmt.Errorf("store: redis username: %w", err)
	}
	password, err := expandCredential(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("store: redis password: %w", err)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:          cfg.Addrs,
		Username:       username,
		Password:       password,
		DB:             cfg.DB,
		PoolSize:       cfg.PoolSize,
		DialTimeout:    cfg.DialTimeout,
		RouteByLatency: cfg.ReadFromReplicas,
	})

	s := &RedisStore{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		probeDone: make(chan struct{}),
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	err = client.Ping(pingCtx).Err()
	cancel()
	switch {
	case err == nil:
		s.healthy.Store(true)
	case cfg.FailOpen:
		s.logger.Warn(ctx, "redis unreachable at startup, continuing degraded",
			observe.Field{Key: "error", Value: err.Error()})
	default:
		_ = client.Close()
		return nil, fmt.Errorf("%w: startup ping: %s", ErrUnavailable, err)
	}

	probeCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stopProbe = stop
	go s.monitor(probeCtx)

	return s, nil
}

// Get retrieves one payload. Returns (nil, nil) on miss and, in fail-open
// mode, on any store error.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.healthy.Load() {
		return nil, s.degrade(ctx, "get", nil)
	}

	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, s.degrade(ctx, "get", err)
	}

	// Redis owns expiry for this tier, so the entry carries no TTL.
	return &Entry{
		Payload:      payload,
		CreatedAt:    time.Now(),
		SizeEstimate: int64(len(payload)) + entryOverhead,
	}, nil
}

// Set writes one payload to the slot primary, with the entry's TTL as
// the redis expiration (no expiration when TTL <= 0).
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.healthy.Load() {
		return s.degrade(ctx, "set", nil)
	}

	ttl := entry.TTL
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, entry.Payload, ttl).Err(); err != nil {
		return s.degrade(ctx, "set", err)
	}
	return nil
}

// MGet retrieves many payloads: keys are grouped by owning hash slot,
// one MGET is issued per group, and results are scattered back into the
// caller's original order. In fail-open mode a failed group contributes
// misses instead of failing the batch.
func (s *RedisStore) MGet(ctx context.Context, keys []string) ([]*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	entries := make([]*Entry, len(keys))
	if len(keys) == 0 {
		return entries, nil
	}
	if !s.healthy.Load() {
		if err := s.degrade(ctx, "mget", nil); err != nil {
			return nil, err
		}
		return entries, nil
	}

	now := time.Now()
	for _, group := range groupBySlot(keys) {
		values, err := s.client.MGet(ctx, group.keys...).Result()
		if err != nil {
			if derr := s.degrade(ctx, "mget", err); derr != nil {
				return nil, derr
			}
			continue
		}
		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				continue
			}
			entries[group.indexes[i]] = &Entry{
				Payload:      []byte(raw),
				CreatedAt:    now,
				SizeEstimate: int64(len(raw)) + entryOverhead,
			}
		}
	}
	return entries, nil
}

// degrade records a failed or skipped operation and applies the
// fail-open policy: a nil error in fail-open mode, ErrUnavailable
// otherwise.
func (s *RedisStore) degrade(ctx context.Context, op string, cause error) error {
	s.degradedOps.Add(1)
	if cause != nil {
		s.logger.Debug(ctx, "redis operation degraded",
			observe.Field{Key: "op", Value: op},
			observe.Field{Key: "error", Value: cause.Error()})
	}
	if s.cfg.FailOpen {
		return nil
	}
	if cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, cause)
}

// Stats returns connection health counters.
func (s *RedisStore) Stats() RedisStats {
	return RedisStats{
		Healthy:      s.healthy.Load(),
		Reconnects:   s.reconnects.Load(),
		Unresponsive: s.unresponsive.Load(),
		DegradedOps:  s.degradedOps.Load(),
	}
}

// Healthy reports whether the store currently considers itself reachable.
func (s *RedisStore) Healthy() bool { return s.healthy.Load() }

// Close stops the liveness probe and releases the client.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopProbe()
	<-s.probeDone
	return s.client.Close()
}

func (s *RedisStore) Name() string { return "redis" }

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
