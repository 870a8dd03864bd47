package pool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work run by a pool.
type Task func()

// PanicHandler is called when a task panics.
// It receives the pool name, the panic value and the stack trace.
type PanicHandler func(pool string, panicValue any, stack []byte)

// defaultPanicHandler is a no-op panic handler.
func defaultPanicHandler(string, any, []byte) {}

// Pool runs tasks on a fixed set of worker goroutines fed by a bounded queue.
type Pool struct {
	name        string
	queueSize   int
	workerCount int

	// mu guards the queue against send-after-close.
	mu      sync.RWMutex
	queue   chan Task
	running atomic.Bool
	wg      sync.WaitGroup

	panicHandler PanicHandler

	submitted   atomic.Uint64
	completed   atomic.Uint64
	panicked    atomic.Uint64
	rejected    atomic.Uint64
	totalTimeNs atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithPanicHandler sets the handler called when a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		if h != nil {
			p.panicHandler = h
		}
	}
}

// New creates a stopped pool.
func New(name string, opts ...Option) *Pool {
	p := &Pool{
		name:         name,
		queueSize:    1024,
		workerCount:  4,
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Start starts the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan Task, p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}
	return nil
}

// Submit queues a task. It never blocks.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return ErrNotRunning
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued and running tasks to finish
// or for ctx to expire, whichever comes first. Workers still running when
// ctx expires are left to finish on their own.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the pool accepts tasks.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// QueueDepth returns the number of tasks waiting in the queue.
func (p *Pool) QueueDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

func (p *Pool) worker(queue <-chan Task) {
	defer p.wg.Done()
	for task := range queue {
		p.run(task)
	}
}

// run executes one task, recovering panics.
func (p *Pool) run(task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			stack := debug.Stack()
			// A panicking panic handler must not kill the worker.
			func() {
				defer func() { _ = recover() }()
				p.panicHandler(p.name, r, stack)
			}()
		} else {
			p.completed.Add(1)
		}
		p.totalTimeNs.Add(time.Since(start).Nanoseconds())
	}()

	task()
}

// Stats contains statistics for a pool.
type Stats struct {
	// Submitted is the number of tasks accepted by Submit.
	Submitted uint64

	// Completed is the number of tasks that returned normally.
	Completed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Rejected is the number of tasks refused because the queue was full.
	Rejected uint64

	// QueueDepth is the current number of queued tasks.
	QueueDepth int

	// AvgDuration is the average task run time.
	AvgDuration time.Duration
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	done := p.completed.Load() + p.panicked.Load()
	var avg time.Duration
	if done > 0 {
		avg = time.Duration(p.totalTimeNs.Load() / int64(done))
	}
	return Stats{
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Panicked:    p.panicked.Load(),
		Rejected:    p.rejected.Load(),
		QueueDepth:  p.QueueDepth(),
		AvgDuration: avg,
	}
}
