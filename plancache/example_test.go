package plancache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/plancache/keys"
	"github.com/jonwraymond/plancache/plancache"
)

func ExampleNew() {
	cache, err := plancache.New(plancache.Config{
		DefaultTTL: 30 * 24 * time.Hour,
	}, plancache.Options{})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer cache.Close()

	builder := keys.Builder{RouterVersion: "2.1.0", SchemaHash: "3f2a9c"}
	key := builder.Build(keys.Params{
		QueryHash:     "9d4e1a20",
		OperationName: "TopProducts",
	})

	ctx := context.Background()

	// First resolve misses and runs the computation.
	plan, _ := cache.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		return []byte(`{"fetch":"products"}`), nil
	})
	fmt.Println("plan:", string(plan))

	// Second resolve is served from memory; the compute func never runs.
	plan, _ = cache.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		return nil, fmt.Errorf("should not replan")
	})
	fmt.Println("cached:", string(plan))
	// Output:
	// plan: {"fetch":"products"}
	// cached: {"fetch":"products"}
}

func ExampleCache_Prefetch() {
	cache, _ := plancache.New(plancache.Config{}, plancache.Options{})
	defer cache.Close()

	builder := keys.Builder{RouterVersion: "2.1.0", SchemaHash: "3f2a9c"}
	key := builder.Build(keys.Params{QueryHash: "9d4e1a20"})

	ctx := context.Background()
	compute := func(ctx context.Context) ([]byte, error) {
		return []byte("plan"), nil
	}

	computed, _ := cache.Prefetch(ctx, key, compute)
	fmt.Println("first prefetch computed:", computed)

	computed, _ = cache.Prefetch(ctx, key, compute)
	fmt.Println("second prefetch computed:", computed)
	// Output:
	// first prefetch computed: true
	// second prefetch computed: false
}
