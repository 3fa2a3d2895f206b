// Package pool runs CPU-bound planning computations on a fixed set of
// workers, separate from the I/O goroutines, with immediate backpressure:
// a submission against a full queue is rejected, never queued blocking.
//
// Worker count defaults to a sub-linear function of available CPUs so
// planning load leaves headroom for request handling. Warm-up work is
// admitted at a lower priority than live-request work.
package pool
