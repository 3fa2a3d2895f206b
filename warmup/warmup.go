package warmup

import (
	"context"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/plancache/keys"
	"github.com/jonwraymond/plancache/observe"
	"github.com/jonwraymond/plancache/plancache"
)

// Operation is one corpus entry to warm.
type Operation struct {
	// QueryHash is the pre-hashed operation document (hex).
	QueryHash string

	// QueryText is the raw document, forwarded to the planner only.
	QueryText string

	// OperationName selects an operation within the document.
	OperationName string

	// Options are the planning options the live traffic will use.
	Options map[string]any
}

// Config configures the coordinator.
type Config struct {
	// Concurrency bounds in-flight warm-up resolutions.
	// Default: 4
	Concurrency int
}

// Coordinator drives cache warm-up through the facade.
//
// Call Warm only after the swapped schema is fully active; warming
// against a not-yet-active schema would populate keys nothing will read.
type Coordinator struct {
	cache   *plancache.Cache
	builder keys.Builder
	planner plancache.Planner
	logger  observe.Logger
	cfg     Config
}

// Report summarizes one warm-up pass.
type Report struct {
	// Warmed entries were computed and stored.
	Warmed int64
	// Skipped entries were already cached (here or by another node).
	Skipped int64
	// Failed entries errored and were passed over.
	Failed int64
}

// New creates a coordinator for the given facade and planner.
func New(cache *plancache.Cache, builder keys.Builder, planner plancache.Planner, logger observe.Logger, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	return &Coordinator{
		cache:   cache,
		builder: builder,
		planner: planner,
		logger:  logger.WithComponent("warmup"),
		cfg:     cfg,
	}
}

// Warm resolves every operation in ops at low priority, in randomized
// order. Individual failures are logged and skipped. Returns early only
// when ctx is cancelled.
func (c *Coordinator) Warm(ctx context.Context, ops []Operation) Report {
	shuffled := append([]Operation(nil), ops...)
	// #nosec G404 -- shuffle only de-correlates fleet nodes.
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var warmed, skipped, failed atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(c.cfg.Concurrency)

	for _, op := range shuffled {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			key := c.builder.Build(keys.Params{
				QueryHash:     op.QueryHash,
				OperationName: op.OperationName,
				Options:       op.Options,
			})

			computed, err := c.cache.Prefetch(ctx, key, func(ctx context.Context) ([]byte, error) {
				return c.planner.Plan(ctx, plancache.PlanRequest{
					QueryHash:     op.QueryHash,
					QueryText:     op.QueryText,
					OperationName: op.OperationName,
					Options:       op.Options,
				})
			})
			switch {
			case err != nil:
				failed.Add(1)
				c.logger.Warn(ctx, "warm-up entry failed",
					observe.Field{Key: "query_hash", Value: op.QueryHash},
					observe.Field{Key: "operation", Value: op.OperationName},
					observe.Field{Key: "error", Value: err.Error()})
			case computed:
				warmed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Warmed:  warmed.Load(),
		Skipped: skipped.Load(),
		Failed:  failed.Load(),
	}
	c.logger.Info(ctx, "plan cache warm-up finished",
		observe.Field{Key: "warmed", Value: report.Warmed},
		observe.Field{Key: "skipped", Value: report.Skipped},
		observe.Field{Key: "failed", Value: report.Failed})
	return report
}
