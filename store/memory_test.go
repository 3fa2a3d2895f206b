package store

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s, err := NewMemory(MemoryConfig{MaxEntries: 8})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	entry, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get errored: %v", err)
	}
	if entry != nil {
		t.Error("Get on empty store should miss")
	}

	want := []byte("serialized-plan")
	if err := s.Set(ctx, "k", NewEntry(want, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get errored: %v", err)
	}
	if entry == nil {
		t.Fatal("Get after Set should hit")
	}
	if !bytes.Equal(entry.Payload, want) {
		t.Errorf("payload = %q, want %q", entry.Payload, want)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s, err := NewMemory(MemoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Set(ctx, "k", NewEntry([]byte("v"), 50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	// Repeated reads before expiry must all hit; read volume must not
	// affect the outcome.
	for i := range 5 {
		if entry, _ := s.Get(ctx, "k"); entry == nil {
			t.Fatalf("read %d before expiry missed", i)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if entry, _ := s.Get(ctx, "k"); entry != nil {
		t.Error("read after expiry should miss")
	}
	if got := s.Stats().Entries; got != 0 {
		t.Errorf("expired entry not removed, %d entries left", got)
	}
}

func TestMemoryStore_NoTTLNeverExpires(t *testing.T) {
	e := NewEntry([]byte("v"), 0)
	if e.Expired(time.Now().Add(1000 * time.Hour)) {
		t.Error("entry without TTL must never expire by time")
	}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	s, err := NewMemory(MemoryConfig{MaxEntries: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "a", NewEntry([]byte("1"), 0))
	s.Set(ctx, "b", NewEntry([]byte("2"), 0))

	// Touch "a" so "b" is the eviction candidate.
	s.Get(ctx, "a")
	s.Set(ctx, "c", NewEntry([]byte("3"), 0))

	if entry, _ := s.Get(ctx, "b"); entry != nil {
		t.Error("least-recently-used entry should have been evicted")
	}
	if entry, _ := s.Get(ctx, "a"); entry == nil {
		t.Error("recently-used entry should have survived")
	}
	if got := s.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestMemoryStore_ByteBudget(t *testing.T) {
	budget := int64(4 * 1024)
	s, err := NewMemory(MemoryConfig{MaxEntries: 1024, MaxBytes: budget})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	payload := make([]byte, 1024)
	for i := range 16 {
		s.Set(ctx, fmt.Sprintf("k%d", i), NewEntry(payload, 0))
	}

	if got := s.EstimatedSize(); got > budget {
		t.Errorf("estimated size %d exceeds budget %d", got, budget)
	}
	if got := s.Stats().Entries; got >= 16 {
		t.Error("byte budget never evicted anything")
	}
}

func TestMemoryStore_ReplaceAccounting(t *testing.T) {
	s, err := NewMemory(MemoryConfig{MaxEntries: 8})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "k", NewEntry(make([]byte, 1000), 0))
	s.Set(ctx, "k", NewEntry(make([]byte, 10), 0))

	want := NewEntry(make([]byte, 10), 0).SizeEstimate
	if got := s.EstimatedSize(); got != want {
		t.Errorf("estimated size after replace = %d, want %d", got, want)
	}
}

func TestMemoryStore_MGetOrder(t *testing.T) {
	s, err := NewMemory(MemoryConfig{MaxEntries: 8})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "a", NewEntry([]byte("1"), 0))
	s.Set(ctx, "c", NewEntry([]byte("3"), 0))

	entries, err := s.MGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0] == nil || string(entries[0].Payload) != "1" {
		t.Error("entries[0] should be a's payload")
	}
	if entries[1] != nil {
		t.Error("entries[1] should be a miss")
	}
	if entries[2] == nil || string(entries[2].Payload) != "3" {
		t.Error("entries[2] should be c's payload")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	s, err := NewMemory(MemoryConfig{MaxEntries: 8})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "short", NewEntry([]byte("1"), 10*time.Millisecond))
	s.Set(ctx, "long", NewEntry([]byte("2"), time.Hour))
	time.Sleep(30 * time.Millisecond)

	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if entry, _ := s.Get(ctx, "long"); entry == nil {
		t.Error("Sweep removed an unexpired entry")
	}
}
