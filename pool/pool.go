package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Sentinel errors for pool operations.
var (
	// ErrPoolSaturated is returned when the submission queue is full.
	// Callers should surface a retryable "unavailable" condition rather
	// than waiting for a slot.
	ErrPoolSaturated = errors.New("pool: compute queue is full")

	// ErrClosed is returned for submissions to a closed pool.
	ErrClosed = errors.New("pool: pool is closed")
)

// Priority orders admission when workers are contended.
type Priority int

const (
	// PriorityLive is for computations a client is waiting on.
	PriorityLive Priority = iota
	// PriorityWarmup is for proactive cache population; live work always
	// wins a contended worker.
	PriorityWarmup
)

// Job is one CPU-bound computation.
type Job func(ctx context.Context) ([]byte, error)

// Config configures the pool.
type Config struct {
	// Workers is the number of worker slots.
	// Default: WorkersForCPUs(runtime.NumCPU())
	Workers int

	// QueueDepth is the per-priority submission queue length.
	// Default: 8 * Workers
	QueueDepth int
}

// Pool is a fixed-size worker pool with two-priority admission.
type Pool struct {
	cfg  Config
	live chan *task
	warm chan *task
	stop chan struct{}
	wg   sync.WaitGroup

	closed   atomic.Bool
	active   atomic.Int64
	rejected atomic.Int64
}

// Handle is the caller's side of one submitted job.
type Handle struct {
	once    sync.Once
	done    chan struct{}
	payload []byte
	err     error
}

// Wait blocks until the job settles or ctx is done. Abandoning a handle
// never leaks the worker slot; the job still runs to completion.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
		return h.payload, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle records the result exactly once. A handle can be settled from a
// worker, from Close's queue drain, or from Submit's closed re-check;
// whichever arrives first wins.
func (h *Handle) settle(payload []byte, err error) {
	h.once.Do(func() {
		h.payload = payload
		h.err = err
		close(h.done)
	})
}

type task struct {
	ctx    context.Context
	job    Job
	handle *Handle
}

// New creates the pool and starts its workers.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = WorkersForCPUs(runtime.NumCPU())
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 8 * cfg.Workers
	}

	p := &Pool{
		cfg:  cfg,
		live: make(chan *task, cfg.QueueDepth),
		warm: make(chan *task, cfg.QueueDepth),
		stop: make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go p.worker()
	}
	return p
}

// Submit enqueues job at the given priority. It never blocks: when the
// priority's queue is full it returns ErrPoolSaturated immediately.
func (p *Pool) Submit(ctx context.Context, pri Priority, job Job) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	t := &task{
		ctx:    ctx,
		job:    job,
		handle: &Handle{done: make(chan struct{})},
	}

	queue := p.live
	if pri == PriorityWarmup {
		queue = p.warm
	}

	select {
	case queue <- t:
		// Close may have swept the queues between the closed check above
		// and the enqueue; settle here so the handle cannot be stranded.
		if p.closed.Load() {
			t.handle.settle(nil, ErrClosed)
			return nil, ErrClosed
		}
		return t.handle, nil
	default:
		p.rejected.Add(1)
		return nil, ErrPoolSaturated
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		// Drain live work before considering warm-up.
		select {
		case t := <-p.live:
			p.run(t)
			continue
		default:
		}

		select {
		case t := <-p.live:
			p.run(t)
		case t := <-p.warm:
			p.run(t)
		case <-p.stop:
			return
		}
	}
}

// run executes one task. The worker slot is released on every exit path;
// a panicking job settles its handle with an error instead of killing
// the worker.
func (p *Pool) run(t *task) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		if r := recover(); r != nil {
			t.handle.settle(nil, fmt.Errorf("pool: job panicked: %v", r))
		}
	}()

	// A job whose submitter is already gone is not worth running.
	if err := t.ctx.Err(); err != nil {
		t.handle.settle(nil, err)
		return
	}

	payload, err := t.job(t.ctx)
	t.handle.settle(payload, err)
}

// QueueDepth returns the number of queued, not-yet-running jobs.
func (p *Pool) QueueDepth() int {
	return len(p.live) + len(p.warm)
}

// Metrics is a point-in-time snapshot.
type Metrics struct {
	Workers    int
	Active     int64
	QueueDepth int
	Rejected   int64
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Metrics {
	return Metrics{
		Workers:    p.cfg.Workers,
		Active:     p.active.Load(),
		QueueDepth: p.QueueDepth(),
		Rejected:   p.rejected.Load(),
	}
}

// Close stops the workers and settles every still-queued handle with
// ErrClosed. Running jobs finish first.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.stop)
	p.wg.Wait()

	for {
		select {
		case t := <-p.live:
			t.handle.settle(nil, ErrClosed)
		case t := <-p.warm:
			t.handle.settle(nil, ErrClosed)
		default:
			return
		}
	}
}

// cpuTable maps CPU counts to worker counts, reserving headroom for I/O
// goroutines instead of one worker per core. Monotonic and sub-linear;
// counts between anchors interpolate linearly.
var cpuTable = [][2]int{
	{1, 1}, {2, 1}, {4, 3}, {8, 7}, {16, 14}, {32, 28},
}

// WorkersForCPUs returns the default worker count for a machine with the
// given CPU count.
func WorkersForCPUs(cpus int) int {
	if cpus <= cpuTable[0][0] {
		return cpuTable[0][1]
	}
	last := cpuTable[len(cpuTable)-1]
	if cpus >= last[0] {
		// Same 7/8 ratio as the top anchor.
		return cpus * last[1] / last[0]
	}
	for i := 1; i < len(cpuTable); i++ {
		lo, hi := cpuTable[i-1], cpuTable[i]
		if cpus <= hi[0] {
			return lo[1] + (cpus-lo[0])*(hi[1]-lo[1])/(hi[0]-lo[0])
		}
	}
	return last[1]
}
