package plancache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/plancache/keys"
	"github.com/jonwraymond/plancache/observe"
	"github.com/jonwraymond/plancache/pool"
	"github.com/jonwraymond/plancache/store"
)

// ComputeFunc produces the serialized plan for one key. Invoked at most
// once per cache miss per key, on the compute pool.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Planner is the external planning collaborator: pure, deterministic,
// side-effect free. This cache calls it exactly once per miss per key.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) ([]byte, error)
}

// PlanRequest carries one operation to the planner.
type PlanRequest struct {
	QueryHash     string
	QueryText     string
	OperationName string
	Options       map[string]any
}

// Config configures the cache. Consumed, not owned: the surrounding
// router loads and validates it.
type Config struct {
	// Memory bounds the in-process tier.
	Memory store.MemoryConfig

	// DefaultTTL applies to successfully computed plans in both tiers.
	// 0 means plans never expire by time; they age out by eviction or
	// become unreachable when the schema hash or router version changes.
	// Default: 720h (30 days)
	DefaultTTL time.Duration

	// ErrorTTL, when positive, caches terminal planning errors so a
	// broken operation cannot stampede the planner. 0 disables error
	// caching; every caller then recomputes.
	ErrorTTL time.Duration

	// SweepInterval is the period of the memory tier's expired-entry
	// sweep. Lazy expiry on read keeps correctness without it; the sweep
	// reclaims space held by entries nothing reads anymore.
	// Default: 1m
	SweepInterval time.Duration

	// Pool configures the compute pool when the cache owns it.
	Pool pool.Config
}

// Options are the injected collaborators.
type Options struct {
	// Remote is the distributed tier. Nil runs memory-only.
	Remote store.Store

	// Pool is a shared compute pool. Nil makes the cache own one sized
	// from Config.Pool.
	Pool *pool.Pool

	Logger observe.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Cache is the plan cache facade. Construct with New; pass by reference;
// Close on router shutdown. Not a singleton: lifecycle belongs to the
// router that built it.
type Cache struct {
	cfg      Config
	local    *store.MemoryStore
	remote   store.Store
	pool     *pool.Pool
	ownsPool bool
	flight   singleflight.Group
	logger   observe.Logger
	tracer   trace.Tracer
	metrics  *cacheMetrics

	stopSweep chan struct{}
	closed    atomic.Bool
}

// New builds the facade. Fails only on invalid configuration or metric
// registration; remote-store reachability was already settled by the
// store's own constructor.
func New(cfg Config, opts Options) (*Cache, error) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 720 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observe.NewNopLogger()
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter("noop")
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	local, err := store.NewMemory(cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("plancache: memory tier: %w", err)
	}

	c := &Cache{
		cfg:       cfg,
		local:     local,
		remote:    opts.Remote,
		pool:      opts.Pool,
		logger:    opts.Logger.WithComponent("plancache"),
		tracer:    opts.Tracer,
		stopSweep: make(chan struct{}),
	}
	if c.pool == nil {
		c.pool = pool.New(cfg.Pool)
		c.ownsPool = true
	}

	c.metrics, err = newMetrics(opts.Meter, c)
	if err != nil {
		return nil, fmt.Errorf("plancache: metrics: %w", err)
	}

	go c.sweepLoop()
	return c, nil
}

// sweepLoop evicts expired memory-tier entries periodically until Close.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			if removed := c.local.Sweep(); removed > 0 {
				c.logger.Debug(context.Background(), "swept expired plan entries",
					observe.Field{Key: "removed", Value: removed})
			}
		}
	}
}

// Resolve returns the plan for key, computing it at live priority on a
// miss. Concurrent callers for the same key share one computation and
// observe the identical settlement value.
func (c *Cache) Resolve(ctx context.Context, key keys.Key, compute ComputeFunc) ([]byte, error) {
	return c.resolve(ctx, key, compute, pool.PriorityLive)
}

// Prefetch warms key at low priority. Returns true when a computation
// ran, false when the key was already cached.
func (c *Cache) Prefetch(ctx context.Context, key keys.Key, compute ComputeFunc) (bool, error) {
	k := key.String()
	if entry, _ := c.local.Get(ctx, k); entry != nil {
		return false, nil
	}
	if c.remote != nil {
		if entry, err := c.remote.Get(ctx, k); err == nil && entry != nil {
			c.backfillLocal(ctx, k, entry.Payload)
			return false, nil
		}
	}
	_, err := c.resolve(ctx, key, compute, pool.PriorityWarmup)
	return true, err
}

func (c *Cache) resolve(ctx context.Context, key keys.Key, compute ComputeFunc, pri pool.Priority) (payload []byte, err error) {
	if compute == nil {
		return nil, ErrNilCompute
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "plan_cache.resolve")
	defer func() { observe.EndSpan(span, err) }()

	k := key.String()

	// Memory tier: never suspends.
	if entry, _ := c.local.Get(ctx, k); entry != nil {
		c.metrics.recordHit(ctx, "memory", time.Since(start))
		return decodePayload(entry.Payload)
	}

	// Distributed tier: best-effort in fail-open mode; the store maps
	// outages to misses there, so an error here is a hard refusal.
	if c.remote != nil {
		entry, rerr := c.remote.Get(ctx, k)
		if rerr != nil {
			return nil, rerr
		}
		if entry != nil {
			c.backfillLocal(ctx, k, entry.Payload)
			c.metrics.recordHit(ctx, c.remote.Name(), time.Since(start))
			return decodePayload(entry.Payload)
		}
	}

	c.metrics.recordMiss(ctx, time.Since(start))

	// The computation must outlive this caller: a leader whose client
	// disconnects still settles the flight for every follower.
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(k, func() (any, error) {
		return c.computeAndStore(detached, k, compute, pri)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		// Follower abandonment: this waiter leaves, the flight continues.
		return nil, ctx.Err()
	}
}

// computeAndStore runs as the single leader for key: submits the
// computation to the pool, then writes the result back remote-first so
// the fleet sees it before the next local miss.
func (c *Cache) computeAndStore(ctx context.Context, k string, compute ComputeFunc, pri pool.Priority) ([]byte, error) {
	start := time.Now()

	handle, err := c.pool.Submit(ctx, pri, pool.Job(compute))
	if err != nil {
		if errors.Is(err, pool.ErrPoolSaturated) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		return nil, err
	}

	payload, err := handle.Wait(ctx)
	c.metrics.recordCompute(ctx, time.Since(start), err)
	if err != nil {
		if c.cfg.ErrorTTL > 0 {
			c.store(ctx, k, encodeError(err), c.cfg.ErrorTTL)
		}
		return nil, err
	}

	c.store(ctx, k, encodePlan(payload), c.cfg.DefaultTTL)
	return payload, nil
}

// store writes an encoded payload to both tiers, remote first. Remote
// write failures are logged, never fatal: the local tier and the next
// recomputation cover for a lost write-back.
func (c *Cache) store(ctx context.Context, k string, encoded []byte, ttl time.Duration) {
	if c.remote != nil {
		if err := c.remote.Set(ctx, k, store.NewEntry(encoded, ttl)); err != nil {
			c.logger.Warn(ctx, "plan write-back failed",
				observe.Field{Key: "tier", Value: c.remote.Name()},
				observe.Field{Key: "error", Value: err.Error()})
		} else {
			c.metrics.recordRemoteWrite(ctx, int64(len(encoded)))
		}
	}
	_ = c.local.Set(ctx, k, store.NewEntry(encoded, ttl))
}

// backfillLocal copies a remote hit into the memory tier. An error entry
// keeps its short error lifetime locally; with error caching disabled it
// is not cached at all, so a fleet-written error can never outlive its
// TTL on this node.
func (c *Cache) backfillLocal(ctx context.Context, k string, encoded []byte) {
	ttl := c.cfg.DefaultTTL
	if len(encoded) > 0 && encoded[0] == markerError {
		if c.cfg.ErrorTTL <= 0 {
			return
		}
		ttl = c.cfg.ErrorTTL
	}
	_ = c.local.Set(ctx, k, store.NewEntry(encoded, ttl))
}

// LocalStats exposes the memory tier's counters.
func (c *Cache) LocalStats() store.MemoryStats { return c.local.Stats() }

// PoolStats exposes the compute pool's counters.
func (c *Cache) PoolStats() pool.Metrics { return c.pool.Stats() }

// Close stops the sweep and releases the compute pool when the cache
// owns it. The stores are closed by whoever constructed them. Idempotent.
func (c *Cache) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stopSweep)
	if c.ownsPool {
		c.pool.Close()
	}
}
