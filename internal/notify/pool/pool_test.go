package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_StartStop(t *testing.T) {
	p := New("test")

	if err := p.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !p.IsRunning() {
		t.Error("expected pool to be running after Start()")
	}
	if err := p.Start(); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if p.IsRunning() {
		t.Error("expected pool to be stopped")
	}
	if err := p.Stop(ctx); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestPool_Submit_NotRunning(t *testing.T) {
	p := New("test")
	if err := p.Submit(func() {}); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestPool_Submit_Nil(t *testing.T) {
	p := New("test")
	if err := p.Submit(nil); err != ErrNilTask {
		t.Errorf("expected ErrNilTask, got %v", err)
	}
}

func TestPool_Submit_Runs(t *testing.T) {
	p := New("test", WithWorkerCount(2), WithQueueSize(10))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(context.Background())

	executed := make(chan struct{})
	if err := p.Submit(func() { close(executed) }); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("task was not executed within timeout")
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := New("test", WithWorkerCount(1), WithQueueSize(1))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	blocker := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() {
		close(started)
		<-blocker
	}); err != nil {
		t.Fatalf("first Submit() failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up first task")
	}

	// Fills the single queue slot.
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("second Submit() failed: %v", err)
	}
	if err := p.Submit(func() {}); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if p.Stats().Rejected != 1 {
		t.Errorf("expected 1 rejected, got %d", p.Stats().Rejected)
	}

	close(blocker)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestPool_Stop_DrainsQueue(t *testing.T) {
	p := New("test", WithWorkerCount(1), WithQueueSize(100))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	var count atomic.Int32
	for i := 0; i < 50; i++ {
		if err := p.Submit(func() { count.Add(1) }); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if count.Load() != 50 {
		t.Errorf("expected 50 tasks to run before Stop returned, got %d", count.Load())
	}
}

func TestPool_Stop_Timeout(t *testing.T) {
	p := New("test", WithWorkerCount(1))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	blocker := make(chan struct{})
	defer close(blocker)
	started := make(chan struct{})
	_ = p.Submit(func() {
		close(started)
		<-blocker
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if err := p.Submit(func() {}); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning after Stop, got %v", err)
	}
}

func TestPool_PanicRecovery(t *testing.T) {
	var (
		mu        sync.Mutex
		recovered any
		poolName  string
	)
	p := New("panicky", WithWorkerCount(1), WithPanicHandler(func(name string, v any, _ []byte) {
		mu.Lock()
		defer mu.Unlock()
		recovered = v
		poolName = name
	}))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	_ = p.Submit(func() { panic("boom") })

	done := make(chan struct{})
	_ = p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
	if poolName != "panicky" {
		t.Errorf("pool name = %q", poolName)
	}
	stats := p.Stats()
	if stats.Panicked != 1 || stats.Completed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPool_ConcurrentSubmitAndStop(t *testing.T) {
	p := New("test", WithWorkerCount(4), WithQueueSize(16))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := p.Submit(func() {})
				if err != nil && err != ErrQueueFull && err != ErrNotRunning {
					t.Errorf("unexpected Submit error: %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	_ = p.Stop(context.Background())
	wg.Wait()
}

func TestParseAffinity(t *testing.T) {
	tests := []struct {
		in      string
		want    Affinity
		wantErr bool
	}{
		{"", Lite, false},
		{"lite", Lite, false},
		{"CPU-LITE", Lite, false},
		{"blocking", Blocking, false},
		{"io", Blocking, false},
		{"compute", Compute, false},
		{"cpu-intensive", Compute, false},
		{"gpu", Lite, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAffinity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAffinity(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAffinity(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestService_SchedulerAndStopAll(t *testing.T) {
	svc := NewService(WithSettings(Compute, Settings{Workers: 1, QueueSize: 2}))

	pools := make([]*Pool, 0, len(Affinities))
	for _, a := range Affinities {
		p, err := svc.Scheduler(a)
		if err != nil {
			t.Fatalf("Scheduler(%s) failed: %v", a, err)
		}
		if !p.IsRunning() {
			t.Errorf("pool for %s not running", a)
		}
		pools = append(pools, p)
	}
	if pools[0] == pools[1] {
		t.Error("expected distinct pools per affinity")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() failed: %v", err)
	}
	for _, p := range pools {
		if p.IsRunning() {
			t.Errorf("pool %s still running", p.Name())
		}
	}

	// Second StopAll has nothing left to stop.
	if err := svc.StopAll(ctx); err != nil {
		t.Errorf("second StopAll() = %v", err)
	}
}

func TestService_StopAll_AggregatesErrors(t *testing.T) {
	svc := NewService(
		WithSettings(Lite, Settings{Workers: 1, QueueSize: 1}),
		WithSettings(Blocking, Settings{Workers: 1, QueueSize: 1}),
	)

	blocker := make(chan struct{})
	defer close(blocker)
	for _, a := range []Affinity{Lite, Blocking} {
		p, err := svc.Scheduler(a)
		if err != nil {
			t.Fatal(err)
		}
		started := make(chan struct{})
		_ = p.Submit(func() {
			close(started)
			<-blocker
		})
		<-started
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.StopAll(ctx)
	if err == nil {
		t.Fatal("expected StopAll to report blocked pools")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in %v", err)
	}
}
