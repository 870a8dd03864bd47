package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Settings sizes one pool.
type Settings struct {
	Workers   int
	QueueSize int
}

// DefaultSettings returns the default sizing for an affinity.
func DefaultSettings(a Affinity) Settings {
	switch a {
	case Blocking:
		return Settings{Workers: 16, QueueSize: 4096}
	case Compute:
		return Settings{Workers: runtime.NumCPU(), QueueSize: 1024}
	default:
		return Settings{Workers: 2 * runtime.NumCPU(), QueueSize: 4096}
	}
}

// Service creates pools on demand, one kind per affinity, and keeps track
// of every pool it handed out.
type Service struct {
	mu       sync.Mutex
	settings map[Affinity]Settings
	pools    []*Pool
	seq      int
	logger   *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSettings overrides the sizing of one affinity.
func WithSettings(a Affinity, s Settings) ServiceOption {
	return func(svc *Service) {
		svc.settings[a] = s
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService creates a scheduler service.
func NewService(opts ...ServiceOption) *Service {
	svc := &Service{
		settings: make(map[Affinity]Settings, len(Affinities)),
		logger:   zap.NewNop(),
	}
	for _, a := range Affinities {
		svc.settings[a] = DefaultSettings(a)
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Scheduler creates and starts a new pool for the affinity.
func (s *Service) Scheduler(a Affinity) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[a]
	if !ok {
		return nil, fmt.Errorf("no pool settings for affinity %s", a)
	}

	s.seq++
	name := fmt.Sprintf("herald-%s-%d", a, s.seq)
	p := New(name,
		WithWorkerCount(settings.Workers),
		WithQueueSize(settings.QueueSize),
		WithPanicHandler(s.logPanic),
	)
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("starting pool %s: %w", name, err)
	}
	s.pools = append(s.pools, p)
	return p, nil
}

// StopAll stops every pool still running. Pools are stopped concurrently
// and share ctx's deadline.
func (s *Service) StopAll(ctx context.Context) error {
	s.mu.Lock()
	pools := s.pools
	s.pools = nil
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, p := range pools {
		wg.Add(1)
		go func(p *Pool) {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("pool %s: %w", p.Name(), err))
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errs
}

func (s *Service) logPanic(pool string, value any, stack []byte) {
	s.logger.Error("task panicked",
		zap.String("pool", pool),
		zap.Any("panic", value),
		zap.ByteString("stack", stack),
	)
}
