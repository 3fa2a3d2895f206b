package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPool_RunsJobs(t *testing.T) {
	p := New(Config{Workers: 2})
	defer p.Close()

	h, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		return []byte("plan"), nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	payload, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(payload) != "plan" {
		t.Errorf("payload = %q, want plan", payload)
	}
}

func TestPool_SaturationRejectsImmediately(t *testing.T) {
	p := New(Config{Workers: 1, QueueDepth: 1})
	defer p.Close()

	started := make(chan struct{})
	block := make(chan struct{})
	job := func(ctx context.Context) ([]byte, error) {
		<-block
		return nil, nil
	}

	// Occupy the worker, then fill the live queue.
	if _, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		close(started)
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started
	if _, err := p.Submit(context.Background(), PriorityLive, job); err != nil {
		t.Fatalf("queue-filling submit: %v", err)
	}

	start := time.Now()
	_, err := p.Submit(context.Background(), PriorityLive, job)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrPoolSaturated) {
		t.Fatalf("expected ErrPoolSaturated, got %v", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("rejection took %v, should be immediate", elapsed)
	}

	close(block)
}

func TestPool_PanicSettlesHandle(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Close()

	h, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		panic("planner bug")
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := h.Wait(context.Background()); err == nil {
		t.Fatal("expected error from panicking job")
	}

	// The worker must survive the panic.
	h2, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	payload, err := h2.Wait(context.Background())
	if err != nil || string(payload) != "ok" {
		t.Errorf("worker did not survive panic: %q, %v", payload, err)
	}
}

func TestPool_WaitHonorsContext(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	h, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		<-block
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

func TestPool_LivePreferredOverWarmup(t *testing.T) {
	p := New(Config{Workers: 1, QueueDepth: 8})
	defer p.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	record := func(tag string) Job {
		return func(ctx context.Context) ([]byte, error) {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
			return nil, nil
		}
	}

	// Hold the single worker so subsequent submissions queue up.
	blocker, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		<-gate
		return nil, nil
	})
	if err != nil {
		t.Fatalf("blocker submit: %v", err)
	}

	warm, err := p.Submit(context.Background(), PriorityWarmup, record("warm"))
	if err != nil {
		t.Fatalf("warm submit: %v", err)
	}
	live, err := p.Submit(context.Background(), PriorityLive, record("live"))
	if err != nil {
		t.Fatalf("live submit: %v", err)
	}

	close(gate)
	if _, err := blocker.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := live.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := warm.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "live" {
		t.Errorf("execution order = %v, want live before warm", order)
	}
}

func TestPool_CloseSettlesQueued(t *testing.T) {
	p := New(Config{Workers: 1, QueueDepth: 4})

	block := make(chan struct{})
	if _, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("blocker submit: %v", err)
	}

	var handles []*Handle
	for range 3 {
		h, err := p.Submit(context.Background(), PriorityWarmup, func(ctx context.Context) ([]byte, error) {
			return nil, nil
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		handles = append(handles, h)
	}

	close(block)
	p.Close()

	for i, h := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := h.Wait(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("handle %d left hanging after Close", i)
		}
	}

	if _, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
		return nil, nil
	}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestPool_SubmitDuringCloseNeverStrandsHandle(t *testing.T) {
	// Race Submit against Close repeatedly: whatever interleaving occurs,
	// every handle handed out must settle.
	for range 50 {
		p := New(Config{Workers: 1, QueueDepth: 4})

		handles := make(chan *Handle, 8)
		submitted := make(chan struct{})
		go func() {
			defer close(handles)
			for i := range 8 {
				h, err := p.Submit(context.Background(), PriorityLive, func(ctx context.Context) ([]byte, error) {
					return nil, nil
				})
				if err == nil {
					handles <- h
				}
				if i == 0 {
					close(submitted)
				}
			}
		}()

		<-submitted
		p.Close()

		for h := range handles {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, err := h.Wait(ctx)
			cancel()
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatal("handle left unsettled by a Submit/Close interleaving")
			}
		}
	}
}

func TestWorkersForCPUs(t *testing.T) {
	tests := []struct {
		cpus, want int
	}{
		{1, 1}, {2, 1}, {4, 3}, {8, 7}, {16, 14}, {32, 28},
		{3, 2}, {6, 5}, {64, 56},
	}
	for _, tt := range tests {
		if got := WorkersForCPUs(tt.cpus); got != tt.want {
			t.Errorf("WorkersForCPUs(%d) = %d, want %d", tt.cpus, got, tt.want)
		}
	}

	// Monotonic and sub-linear across the whole range.
	prev := 0
	for cpus := 1; cpus <= 128; cpus++ {
		w := WorkersForCPUs(cpus)
		if w < prev {
			t.Fatalf("WorkersForCPUs not monotonic at %d: %d < %d", cpus, w, prev)
		}
		if w > cpus {
			t.Fatalf("WorkersForCPUs(%d) = %d exceeds CPU count", cpus, w)
		}
		prev = w
	}
}
