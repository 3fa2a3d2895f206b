// Package store provides the two storage tiers of the plan cache.
//
// The memory store is a bounded in-process LRU and is the hot path; the
// redis store is an optional distributed tier shared by a fleet, with
// cluster-slot-aware batched reads, liveness probing, and a configurable
// fail-open degradation mode. Both implement the Store interface so the
// tier mix is a configuration decision, not a call-site branch.
package store
