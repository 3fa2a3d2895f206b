// Package warmup pre-populates the plan cache after a schema or config
// swap. The corpus (recently-seen operations plus an optional persisted
// operation manifest) is walked in randomized order so fleet nodes warm
// disjoint subsets and fill the shared distributed tier faster in
// aggregate. Warm-up runs at low compute priority and one entry's
// failure never aborts the rest.
package warmup
