package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryConfig bounds the in-process tier.
type MemoryConfig struct {
	// MaxEntries caps the number of cached plans.
	// Default: 512
	MaxEntries int

	// MaxBytes caps the estimated total size. 0 disables the byte budget.
	MaxBytes int64
}

// MemoryStore is the in-process tier: a TTL-aware LRU bounded by entry
// count and byte budget. Reads and writes never touch the network; this
// store exists precisely to keep the hot path off the wire.
//
// The store starts empty on process start; there is no durability.
type MemoryStore struct {
	cfg MemoryConfig

	mu  sync.Mutex // guards cache mutation + byte accounting as one unit
	lru *lru.Cache[string, *Entry]

	bytes     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// MemoryStats is a point-in-time counter snapshot.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

// NewMemory creates the in-process tier.
func NewMemory(cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 512
	}

	s := &MemoryStore{cfg: cfg}
	cache, err := lru.NewWithEvict(cfg.MaxEntries, func(_ string, e *Entry) {
		s.bytes.Add(-e.SizeEstimate)
		s.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	s.lru = cache
	return s, nil
}

// Get returns the entry for key, or (nil, nil) on miss. An entry whose
// TTL has elapsed is removed and treated as a miss.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	entry, ok := s.lru.Get(key)
	if ok && entry.Expired(time.Now()) {
		s.lru.Remove(key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.misses.Add(1)
		return nil, nil
	}
	s.hits.Add(1)
	return entry, nil
}

// Set stores entry under key, evicting least-recently-used entries until
// the byte budget holds again.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	if prev, ok := s.lru.Peek(key); ok {
		s.bytes.Add(-prev.SizeEstimate)
		// Peek+Add below replaces in place without firing the evict
		// callback for the old value, so the decrement happens here.
	}
	s.lru.Add(key, entry)
	s.bytes.Add(entry.SizeEstimate)

	if s.cfg.MaxBytes > 0 {
		for s.bytes.Load() > s.cfg.MaxBytes && s.lru.Len() > 1 {
			s.lru.RemoveOldest()
		}
	}
	s.mu.Unlock()
	return nil
}

// MGet looks each key up in order. Purely local, so this is just a loop.
func (s *MemoryStore) MGet(ctx context.Context, keys []string) ([]*Entry, error) {
	entries := make([]*Entry, len(keys))
	for i, key := range keys {
		entries[i], _ = s.Get(ctx, key)
	}
	return entries, nil
}

// Sweep removes every expired entry eagerly. Called opportunistically by
// the owner; lazy expiry on Get keeps correctness without it.
func (s *MemoryStore) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for _, key := range s.lru.Keys() {
		if entry, ok := s.lru.Peek(key); ok && entry.Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.lru.Remove(key)
	}
	s.mu.Unlock()

	return len(expired)
}

// EstimatedSize returns the estimated resident size in bytes.
func (s *MemoryStore) EstimatedSize() int64 {
	return s.bytes.Load()
}

// Stats returns a counter snapshot.
func (s *MemoryStore) Stats() MemoryStats {
	s.mu.Lock()
	entries := s.lru.Len()
	s.mu.Unlock()

	return MemoryStats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Entries:   entries,
		Bytes:     s.bytes.Load(),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
