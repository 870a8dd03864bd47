package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify/pool"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(newTestRegistry(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Dispose() })
	return m
}

func newStartedManager(t *testing.T, opts ...ManagerOption) (*Manager, *recordingSchedulers) {
	t.Helper()
	schedulers := newRecordingSchedulers()
	m := newTestManager(t, append(opts, WithSchedulerService(schedulers))...)
	require.NoError(t, m.Start())
	return m, schedulers
}

func TestManager_Lifecycle(t *testing.T) {
	m, schedulers := newStartedManager(t)
	assert.Equal(t, StateStarted, m.State())
	for _, a := range pool.Affinities {
		require.NotNil(t, schedulers.pool(a))
		assert.True(t, schedulers.pool(a).IsRunning())
	}

	assert.ErrorIs(t, m.Start(), ErrInvalidState)

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, StateStopped, m.State())
	for _, a := range pool.Affinities {
		assert.False(t, schedulers.pool(a).IsRunning())
	}
	require.NoError(t, m.Stop(context.Background()), "second Stop is a no-op")
	assert.ErrorIs(t, m.Start(), ErrInvalidState)

	require.NoError(t, m.Dispose())
	require.NoError(t, m.Dispose())
	assert.Equal(t, StateDisposed, m.State())
	assert.ErrorIs(t, m.Start(), ErrDisposed)
}

func TestManager_Start_WithoutScheduler(t *testing.T) {
	m := newTestManager(t)

	err := m.Start()
	var ie *InitialisationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, ErrSchedulerUnavailable)
	assert.Equal(t, StateCreated, m.State())
}

func TestManager_Start_SchedulerFailureReleasesPools(t *testing.T) {
	schedulers := newRecordingSchedulers()
	schedulers.fail[pool.Compute] = errors.New("no capacity")
	m := newTestManager(t, WithSchedulerService(schedulers))

	err := m.Start()
	var ie *InitialisationError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "no capacity")
	assert.Equal(t, StateCreated, m.State())

	for _, a := range []pool.Affinity{pool.Lite, pool.Blocking} {
		require.NotNil(t, schedulers.pool(a))
		assert.False(t, schedulers.pool(a).IsRunning(), "%s pool should be stopped", a)
	}
}

func TestManager_FaultIsolation(t *testing.T) {
	for _, started := range []bool{false, true} {
		t.Run(fmt.Sprintf("started=%v", started), func(t *testing.T) {
			var m *Manager
			if started {
				m, _ = newStartedManager(t)
			} else {
				m = newTestManager(t)
			}

			failing := &recorder{ifaces: []*notification.Interface{notification.TransactionListener}, err: errors.New("listener error")}
			panicking := &recorder{ifaces: []*notification.Interface{notification.TransactionListener}, panicV: "listener panic"}
			ok := newRecorder(notification.TransactionListener)
			require.NoError(t, m.AddListener(failing))
			require.NoError(t, m.AddListener(panicking))
			require.NoError(t, m.AddListener(ok))

			assert.NotPanics(t, func() {
				m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-1", ""))
			})

			require.Eventually(t, func() bool { return ok.count() == 1 }, time.Second, 5*time.Millisecond)
			require.Eventually(t, func() bool { return m.Stats().Failed == 2 }, time.Second, 5*time.Millisecond)
			assert.Equal(t, uint64(1), m.Stats().Delivered)

			require.NoError(t, m.Stop(context.Background()))
			assert.Equal(t, 1, ok.count())
		})
	}
}

func TestManager_BlockingNotificationIsSynchronous(t *testing.T) {
	m, schedulers := newStartedManager(t)
	l := newRecorder(notification.ContextListener)
	require.NoError(t, m.AddListener(l))

	m.FireNotification(notification.NewContextNotification(notification.ContextStarted, "app"))
	assert.Equal(t, 1, l.count(), "blocking notification must be delivered before Fire returns")

	for _, a := range pool.Affinities {
		assert.Zero(t, schedulers.pool(a).Stats().Submitted)
	}
}

func TestManager_NonBlockingNotificationIsAsynchronous(t *testing.T) {
	m, schedulers := newStartedManager(t)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	l := ListenerFunc(func(notification.Notification) error {
		<-release
		wg.Done()
		return nil
	}, notification.TransactionListener)
	require.NoError(t, m.AddListener(l))

	m.FireNotification(notification.NewTransactionNotification(notification.TransactionCommitted, "tx-1", ""))
	// Fire returned while the listener is still parked.
	close(release)
	wg.Wait()

	assert.Equal(t, uint64(1), schedulers.pool(pool.Lite).Stats().Submitted)
}

func TestManager_AffinitySelectsPool(t *testing.T) {
	m, schedulers := newStartedManager(t)

	tests := []pool.Affinity{pool.Lite, pool.Blocking, pool.Compute}
	recorders := make([]*recorder, len(tests))
	for i, a := range tests {
		recorders[i] = &recorder{ifaces: []*notification.Interface{notification.ConnectionListener}, affinity: a}
		require.NoError(t, m.AddListener(recorders[i]))
	}

	m.FireNotification(notification.NewConnectionNotification(notification.ConnectionConnected, "http"))
	for _, r := range recorders {
		require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	}
	for _, a := range tests {
		assert.Equal(t, uint64(1), schedulers.pool(a).Stats().Submitted, "pool %s", a)
	}
}

func TestManager_FireBeforeStartDeliversInline(t *testing.T) {
	m := newTestManager(t)
	l := newRecorder(notification.TransactionListener)
	require.NoError(t, m.AddListener(l))

	m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-1", ""))
	assert.Equal(t, 1, l.count())
}

func TestManager_FireAfterStopDeliversInline(t *testing.T) {
	m, _ := newStartedManager(t)
	l := newRecorder(notification.TransactionListener)
	require.NoError(t, m.AddListener(l))
	require.NoError(t, m.Stop(context.Background()))

	m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-1", ""))
	assert.Equal(t, 1, l.count())
}

func TestManager_DropsAfterDispose(t *testing.T) {
	logger, logs := observedLogger(zapcore.WarnLevel)
	m, _ := newStartedManager(t, WithLogger(logger))
	l := newRecorder(notification.ContextListener)
	require.NoError(t, m.AddListener(l))

	m.FireNotification(notification.NewContextNotification(notification.ContextStarted, "app"))
	require.Equal(t, 1, l.count())

	require.NoError(t, m.Dispose())
	for i := 0; i < 10; i++ {
		assert.NotPanics(t, func() {
			m.FireNotification(notification.NewContextNotification(notification.ContextStopped, "app"))
		})
	}
	assert.Equal(t, 1, l.count())
	assert.Equal(t, uint64(10), m.Stats().Dropped)
	assert.Equal(t, 10, logs.FilterMessage("notification fired after dispose; dropped").Len())

	assert.False(t, m.IsNotificationEnabled(notification.ContextType))
	assert.False(t, m.AnyNotificationEnabled())
	assert.False(t, m.IsListenerRegistered(l))
	assert.ErrorIs(t, m.AddListener(newRecorder()), ErrDisposed)
	assert.ErrorIs(t, m.Reconfigure(nil), ErrDisposed)
	assert.Nil(t, m.Configuration())
}

func TestManager_DuplicateRegistrationDeliversOnce(t *testing.T) {
	m := newTestManager(t)
	l := newRecorder(notification.SecurityListener)
	require.NoError(t, m.AddListenerSubscription(l, "realm.*"))
	require.NoError(t, m.AddListenerSubscription(l, "realm.*"))

	m.FireNotification(notification.NewSecurityNotification(notification.SecurityAuthenticationFailed, "bob", "realm.admin"))
	assert.Equal(t, 1, l.count())
	assert.Equal(t, 1, m.Stats().Listeners)
}

func TestManager_SubscriptionFiltering(t *testing.T) {
	m := newTestManager(t)
	orders := newRecorder(notification.TransactionListener)
	all := newRecorder(notification.TransactionListener)
	require.NoError(t, m.AddListenerSubscription(orders, "order.*"))
	require.NoError(t, m.AddListener(all))

	m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-1", "order.created"))
	m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-2", "invoice.created"))
	m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx-3", ""))

	assert.Equal(t, 1, orders.count())
	assert.Equal(t, 3, all.count())
}

func TestManager_StampsContextID(t *testing.T) {
	m := newTestManager(t, WithContextID("runtime-1"))
	assert.Equal(t, "runtime-1", m.ID())

	n := notification.NewTransactionNotification(notification.TransactionBegan, "tx-1", "")
	m.FireNotification(n)
	assert.Equal(t, "runtime-1", n.ContextID())

	other := newTestManager(t)
	assert.NotEmpty(t, other.ID())
	assert.NotEqual(t, m.ID(), other.ID())
}

func TestManager_Enablement(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.AnyNotificationEnabled())

	l := newRecorder(notification.PipelineMessageListener)
	require.NoError(t, m.AddListener(l))
	assert.True(t, m.AnyNotificationEnabled())
	assert.True(t, m.IsNotificationEnabled(notification.PipelineMessageType))
	assert.True(t, m.IsNotificationEnabled(notification.EnrichedType))
	assert.False(t, m.IsNotificationEnabled(notification.ExceptionType))
	assert.True(t, m.IsListenerRegistered(l))

	require.NoError(t, m.DisableType(notification.EnrichedType))
	assert.False(t, m.IsNotificationEnabled(notification.PipelineMessageType))

	require.NoError(t, m.RemoveListener(l))
	assert.False(t, m.IsListenerRegistered(l))
}

func TestManager_DisableThroughManager(t *testing.T) {
	m := newTestManager(t)
	l := newRecorder(notification.ConnectionListener, notification.ExceptionListener)
	require.NoError(t, m.AddListener(l))

	require.NoError(t, m.DisableInterfacesByName([]string{"connection"}))
	assert.False(t, m.IsNotificationEnabled(notification.ConnectionType))
	assert.True(t, m.IsNotificationEnabled(notification.ExceptionType))

	require.NoError(t, m.DisableTypesByName([]string{"exception"}))
	assert.False(t, m.AnyNotificationEnabled())

	var te *TypeError
	assert.ErrorAs(t, m.DisableType(notification.NewType("stray")), &te)
	assert.ErrorAs(t, m.DisableInterface(notification.NewInterface("stray")), &te)
}

func TestManager_Reconfigure(t *testing.T) {
	m := newTestManager(t)
	l := newRecorder(notification.ConnectionListener)
	require.NoError(t, m.AddListener(l))
	require.NoError(t, m.DisableType(notification.ConnectionType))
	require.False(t, m.IsNotificationEnabled(notification.ConnectionType))

	// A failing apply leaves the live configuration alone.
	err := m.Reconfigure(func(c *Configuration) error {
		return c.DisableTypesByName([]string{"missing"})
	})
	var ne *NameError
	require.ErrorAs(t, err, &ne)
	assert.False(t, m.IsNotificationEnabled(notification.ConnectionType))

	// A successful apply replaces the disables but keeps listeners.
	require.NoError(t, m.Reconfigure(func(c *Configuration) error {
		return c.DisableInterfacesByName([]string{"exception"})
	}))
	assert.True(t, m.IsListenerRegistered(l))
	assert.True(t, m.IsNotificationEnabled(notification.ConnectionType))

	m.FireNotification(notification.NewConnectionNotification(notification.ConnectionConnected, "http"))
	assert.Equal(t, 1, l.count())
}

func TestManager_ConcurrentMutationAndFire(t *testing.T) {
	m, _ := newStartedManager(t)
	stable := newRecorder(notification.ContextListener)
	require.NoError(t, m.AddListener(stable))

	const (
		mutators = 4
		firers   = 4
		rounds   = 200
	)
	var wg sync.WaitGroup
	for i := 0; i < mutators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				l := newRecorder(notification.ContextListener, notification.TransactionListener)
				if err := m.AddListenerSubscription(l, "app*"); err != nil {
					t.Errorf("AddListenerSubscription: %v", err)
					return
				}
				if err := m.RemoveListener(l); err != nil {
					t.Errorf("RemoveListener: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < firers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				conf := m.Configuration()
				p := conf.Policy()
				if p.Version() > conf.Version() {
					t.Errorf("policy version %d ahead of configuration %d", p.Version(), conf.Version())
					return
				}
				m.FireNotification(notification.NewContextNotification(notification.ContextStarted, "app"))
				m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx", "app"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, firers*rounds, stable.count())
	assert.True(t, m.IsListenerRegistered(stable))
	assert.Equal(t, 1, m.Stats().Listeners)
}

func TestManager_Stats(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddListener(newRecorder(notification.CustomListener)))

	for i := 0; i < 3; i++ {
		m.FireNotification(notification.NewCustomNotification(notification.CustomRangeStart+1, nil, ""))
	}
	m.FireNotification(nil)

	s := m.Stats()
	assert.Equal(t, uint64(3), s.Fired)
	assert.Equal(t, uint64(3), s.Delivered)
	assert.Equal(t, uint64(1), s.PolicyBuilds)
	assert.Equal(t, 1, s.Listeners)
	assert.NotZero(t, s.ConfigVersion)
}

func TestManager_WithConfiguration(t *testing.T) {
	reg := newTestRegistry(t)
	c := NewConfiguration(reg, nil)
	require.NoError(t, c.AddInterfaceToType(orderListener, orderType))

	m, err := NewManager(reg, WithConfiguration(c))
	require.NoError(t, err)
	defer m.Dispose()
	assert.Same(t, c, m.Configuration())

	l := newRecorder(orderListener)
	require.NoError(t, m.AddListener(l))
	m.FireNotification(newOrder(orderPaidType, ""))
	assert.Equal(t, 1, l.count())

	// Built-in bindings were not loaded.
	assert.False(t, m.IsNotificationEnabled(notification.ContextType))
}

func TestManager_FireRacingStopLosesNothing(t *testing.T) {
	const (
		firers   = 4
		perFirer = 5000
	)
	for round := 0; round < 5; round++ {
		svc := pool.NewService(pool.WithSettings(pool.Lite, pool.Settings{Workers: 2, QueueSize: firers * perFirer}))
		m := newTestManager(t, WithSchedulerService(svc))
		require.NoError(t, m.Start())

		var delivered atomic.Int64
		require.NoError(t, m.AddListener(ListenerFunc(func(notification.Notification) error {
			delivered.Add(1)
			return nil
		}, notification.TransactionListener)))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for f := 0; f < firers; f++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < perFirer; i++ {
					m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx", ""))
				}
			}()
		}
		close(start)
		require.NoError(t, m.Stop(context.Background()))
		wg.Wait()

		assert.Equal(t, int64(firers*perFirer), delivered.Load(), "round %d", round)
		assert.Zero(t, m.Stats().Rejected, "round %d", round)
		assert.Equal(t, uint64(firers*perFirer), m.Stats().Delivered, "round %d", round)
	}
}

func TestManager_QueueFullIsReportedAsRejection(t *testing.T) {
	logger, logs := observedLogger(zapcore.WarnLevel)
	svc := pool.NewService(pool.WithSettings(pool.Lite, pool.Settings{Workers: 1, QueueSize: 1}))
	m := newTestManager(t, WithSchedulerService(svc), WithLogger(logger))
	require.NoError(t, m.Start())

	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	var delivered atomic.Int64
	require.NoError(t, m.AddListener(ListenerFunc(func(notification.Notification) error {
		entered <- struct{}{}
		<-release
		delivered.Add(1)
		return nil
	}, notification.TransactionListener)))

	fire := func() {
		m.FireNotification(notification.NewTransactionNotification(notification.TransactionBegan, "tx", ""))
	}
	fire()
	<-entered // the only worker is busy
	fire()    // queued
	fire()    // queue full
	close(release)
	require.Eventually(t, func() bool { return delivered.Load() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), m.Stats().Rejected)
	assert.Zero(t, m.Stats().Failed)
	assert.Zero(t, logs.FilterMessage("notification listener failed").Len())

	rejected := logs.FilterMessage("notification delivery rejected").All()
	require.Len(t, rejected, 1)
	fields := rejected[0].ContextMap()
	assert.Equal(t, "lite", fields["affinity"])
	assert.Contains(t, fields["pool"], "lite")
	assert.Equal(t, pool.ErrQueueFull.Error(), fields["error"])
}
