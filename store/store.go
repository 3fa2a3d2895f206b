package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrUnavailable is returned when the remote tier cannot be reached
	// and fail-open is disabled.
	ErrUnavailable = errors.New("store: remote store unavailable")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: store is closed")
)

// Entry is one cached payload plus its expiry metadata. The payload is
// an opaque serialized plan or serialized terminal planning error; the
// store never interprets it.
type Entry struct {
	Payload      []byte
	CreatedAt    time.Time
	TTL          time.Duration
	SizeEstimate int64
}

// NewEntry builds an entry for payload created now. ttl <= 0 means the
// entry never expires by time, only by eviction.
func NewEntry(payload []byte, ttl time.Duration) *Entry {
	return &Entry{
		Payload:      payload,
		CreatedAt:    time.Now(),
		TTL:          ttl,
		SizeEstimate: int64(len(payload)) + entryOverhead,
	}
}

// entryOverhead approximates the bookkeeping cost of one entry beyond
// its payload (struct, map slot, key string).
const entryOverhead = 128

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.CreatedAt.Add(e.TTL))
}

// Store is the capability interface implemented by both cache tiers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Misses: Get returns (nil, nil); MGet returns a nil element per miss.
// - Ordering: MGet results are positionally aligned with the input keys.
// - Errors: only the remote tier may error; the memory tier never does.
type Store interface {
	// Get retrieves an entry. Returns (nil, nil) on miss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry under key, honoring the entry's TTL.
	Set(ctx context.Context, key string, entry *Entry) error

	// MGet retrieves many entries at once. The result slice has exactly
	// len(keys) elements in the same order, nil for each miss.
	MGet(ctx context.Context, keys []string) ([]*Entry, error)

	// Name identifies the tier in logs and metrics ("memory", "redis").
	Name() string
}
