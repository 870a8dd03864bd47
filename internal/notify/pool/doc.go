// Package pool provides the worker pools that run asynchronous listener
// invocations.
//
// Three pools are used by the notification manager, one per Affinity:
//
//   - Lite: short, latency-sensitive callbacks
//   - Blocking: callbacks that wait on I/O
//   - Compute: CPU-heavy callbacks
//
// Each Pool is a bounded queue drained by a fixed number of goroutines.
// Submit never blocks: when the queue is full the task is rejected with
// ErrQueueFull. Stop closes the queue and waits for queued and running
// tasks until the context expires.
//
// A panicking task is recovered and reported to the pool's PanicHandler;
// it never takes down a worker.
package pool
