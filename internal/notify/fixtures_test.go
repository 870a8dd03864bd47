package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify/pool"
)

// A small order hierarchy used alongside the built-in families:
//
//	server <- order <- order-paid
//	order-listener <- order-audit-listener
var (
	orderType     = notification.NewType("test-order", notification.WithParents(notification.ServerType))
	orderPaidType = notification.NewType("test-order-paid", notification.WithParents(orderType))

	orderListener      = notification.NewInterface("test-order")
	orderAuditListener = notification.NewInterface("test-order-audit", orderListener)
	paidListener       = notification.NewInterface("test-paid")
)

func newTestRegistry(t *testing.T) *notification.Registry {
	t.Helper()
	reg := notification.NewRegistry()
	require.NoError(t, notification.RegisterBuiltins(reg))
	require.NoError(t, reg.RegisterType(orderType))
	require.NoError(t, reg.RegisterType(orderPaidType))
	require.NoError(t, reg.RegisterInterface(orderListener))
	require.NoError(t, reg.RegisterInterface(orderAuditListener))
	require.NoError(t, reg.RegisterInterface(paidListener))
	return reg
}

func newOrderConfiguration(t *testing.T, logger *zap.Logger) *Configuration {
	t.Helper()
	c := NewConfiguration(newTestRegistry(t), logger)
	require.NoError(t, c.AddInterfaceToType(orderListener, orderType))
	require.NoError(t, c.AddInterfaceToType(paidListener, orderPaidType))
	return c
}

func newOrder(t *notification.Type, resourceID string) *notification.Base {
	return notification.NewBase(t, 0, nil, resourceID)
}

func observedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// recorder is a listener that records what it receives.
type recorder struct {
	ifaces   []*notification.Interface
	affinity pool.Affinity
	err      error
	panicV   any

	mu  sync.Mutex
	got []notification.Notification
}

func newRecorder(ifaces ...*notification.Interface) *recorder {
	return &recorder{ifaces: ifaces}
}

func (r *recorder) OnNotification(n notification.Notification) error {
	if r.panicV != nil {
		panic(r.panicV)
	}
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Interfaces() []*notification.Interface { return r.ifaces }

func (r *recorder) Affinity() pool.Affinity { return r.affinity }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) received() []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Notification(nil), r.got...)
}

// recordingSchedulers hands out real pools and remembers them.
type recordingSchedulers struct {
	svc *pool.Service

	mu    sync.Mutex
	pools map[pool.Affinity]*pool.Pool
	fail  map[pool.Affinity]error
}

func newRecordingSchedulers() *recordingSchedulers {
	return &recordingSchedulers{
		svc: pool.NewService(
			pool.WithSettings(pool.Lite, pool.Settings{Workers: 2, QueueSize: 64}),
			pool.WithSettings(pool.Blocking, pool.Settings{Workers: 2, QueueSize: 64}),
			pool.WithSettings(pool.Compute, pool.Settings{Workers: 1, QueueSize: 64}),
		),
		pools: make(map[pool.Affinity]*pool.Pool),
		fail:  make(map[pool.Affinity]error),
	}
}

func (s *recordingSchedulers) Scheduler(a pool.Affinity) (*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[a]; err != nil {
		return nil, err
	}
	p, err := s.svc.Scheduler(a)
	if err != nil {
		return nil, err
	}
	s.pools[a] = p
	return p, nil
}

func (s *recordingSchedulers) pool(a pool.Affinity) *pool.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[a]
}
