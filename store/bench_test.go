package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkMemoryStore_Get_Hit measures hot-path hit latency.
func BenchmarkMemoryStore_Get_Hit(b *testing.B) {
	s, _ := NewMemory(MemoryConfig{MaxEntries: 1024})
	ctx := context.Background()
	_ = s.Set(ctx, "key", NewEntry([]byte("payload"), time.Hour))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(ctx, "key")
	}
}

// BenchmarkMemoryStore_Get_Miss measures miss latency.
func BenchmarkMemoryStore_Get_Miss(b *testing.B) {
	s, _ := NewMemory(MemoryConfig{MaxEntries: 1024})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(ctx, "missing")
	}
}

// BenchmarkMemoryStore_Set measures write and eviction churn.
func BenchmarkMemoryStore_Set(b *testing.B) {
	s, _ := NewMemory(MemoryConfig{MaxEntries: 256})
	ctx := context.Background()
	payload := make([]byte, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Set(ctx, fmt.Sprintf("key-%d", i), NewEntry(payload, time.Hour))
	}
}

// BenchmarkHashSlot measures the slot calculation done per clustered key.
func BenchmarkHashSlot(b *testing.B) {
	key := "2.1.0:3f2a9c8b:plan:9d4e1a20f7b3c6d8:0011223344556677"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hashSlot(key)
	}
}
