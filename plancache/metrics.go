package plancache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/plancache/store"
)

// cacheMetrics holds the instruments emitted by the facade. Consumed by
// an external telemetry collector; nothing here is read back by the
// cache itself.
type cacheMetrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	resolveDur    metric.Float64Histogram
	computeDur    metric.Float64Histogram
	remoteWritten metric.Int64Counter
}

func newMetrics(meter metric.Meter, c *Cache) (*cacheMetrics, error) {
	m := &cacheMetrics{}
	var err error

	if m.hits, err = meter.Int64Counter(
		"cache.plan.hits",
		metric.WithDescription("Plan cache hits by storage tier"),
		metric.WithUnit("{hit}"),
	); err != nil {
		return nil, err
	}

	if m.misses, err = meter.Int64Counter(
		"cache.plan.misses",
		metric.WithDescription("Plan cache misses"),
		metric.WithUnit("{miss}"),
	); err != nil {
		return nil, err
	}

	if m.resolveDur, err = meter.Float64Histogram(
		"cache.plan.resolve.duration_ms",
		metric.WithDescription("Time to settle a cache lookup, before any computation"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.computeDur, err = meter.Float64Histogram(
		"cache.plan.compute.duration_ms",
		metric.WithDescription("Planning computation duration, including pool admission"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.remoteWritten, err = meter.Int64Counter(
		"cache.plan.remote.written_bytes",
		metric.WithDescription("Payload bytes written back to the remote tier"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Only the memory tier reports a resident size; the remote tier's
	// memory is owned and reported by redis itself, so the client side
	// tracks written bytes instead.
	if _, err = meter.Int64ObservableGauge(
		"cache.plan.storage.size_bytes",
		metric.WithDescription("Estimated plan cache size by storage tier"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(c.local.EstimatedSize(),
				metric.WithAttributes(attribute.String("tier", "memory")))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"compute.pool.queue_depth",
		metric.WithDescription("Queued planning jobs not yet running"),
		metric.WithUnit("{job}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(c.pool.QueueDepth()))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	// Remote connection health, when a remote tier with counters exists.
	if redis, ok := c.remote.(*store.RedisStore); ok {
		if _, err = meter.Int64ObservableCounter(
			"cache.plan.redis.reconnects",
			metric.WithDescription("Times the redis connection was re-established"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(redis.Stats().Reconnects)
				return nil
			}),
		); err != nil {
			return nil, err
		}
		if _, err = meter.Int64ObservableCounter(
			"cache.plan.redis.unresponsive",
			metric.WithDescription("Liveness probes that found redis unresponsive"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(redis.Stats().Unresponsive)
				return nil
			}),
		); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *cacheMetrics) recordHit(ctx context.Context, tier string, elapsed time.Duration) {
	opt := metric.WithAttributes(attribute.String("tier", tier))
	m.hits.Add(ctx, 1, opt)
	m.resolveDur.Record(ctx, float64(elapsed)/float64(time.Millisecond), opt)
}

func (m *cacheMetrics) recordMiss(ctx context.Context, elapsed time.Duration) {
	m.misses.Add(ctx, 1)
	m.resolveDur.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("tier", "none")))
}

func (m *cacheMetrics) recordRemoteWrite(ctx context.Context, bytes int64) {
	m.remoteWritten.Add(ctx, bytes)
}

func (m *cacheMetrics) recordCompute(ctx context.Context, elapsed time.Duration, err error) {
	m.computeDur.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attribute.Bool("error", err != nil)))
}
