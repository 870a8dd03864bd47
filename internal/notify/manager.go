package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify/pool"
)

// State is the lifecycle state of a Manager.
type State int32

// Lifecycle states. Transitions only move forward.
const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats contains manager counters.
type Stats struct {
	// Fired is the number of notifications accepted by FireNotification.
	Fired uint64 `json:"fired"`

	// Dropped is the number of notifications ignored after disposal.
	Dropped uint64 `json:"dropped"`

	// Delivered is the number of successful listener callbacks.
	Delivered uint64 `json:"delivered"`

	// Failed is the number of listener callbacks that returned an error or
	// panicked.
	Failed uint64 `json:"failed"`

	// Rejected is the number of deliveries a pool refused.
	Rejected uint64 `json:"rejected"`

	// PolicyBuilds is the number of policy rebuilds of the current
	// configuration.
	PolicyBuilds uint64 `json:"policy_builds"`

	// ConfigVersion is the current configuration version.
	ConfigVersion uint64 `json:"config_version"`

	// Listeners is the number of registered listener/subscription pairs.
	Listeners int `json:"listeners"`
}

// pools holds one pool per affinity for a started manager.
type pools map[pool.Affinity]*pool.Pool

// Manager is the notification bus. Producers fire notifications; the
// manager routes each one to the listeners registered for its type.
//
// Notifications that implement notification.Blocking are delivered on the
// caller's goroutine. Others are delivered on the pool matching each
// listener's affinity while the manager is started, and inline otherwise.
//
// Manager is safe for concurrent use.
type Manager struct {
	registry *notification.Registry
	config   managerConfig
	logger   *zap.Logger

	// regMu orders registrations against Reconfigure swaps.
	regMu sync.RWMutex
	conf  atomic.Pointer[Configuration]

	lifeMu   sync.Mutex
	state    atomic.Int32
	disposed atomic.Bool
	pools    atomic.Pointer[pools]

	fired     atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// NewManager creates a manager whose configuration starts with every
// binding declared in reg.
func NewManager(reg *notification.Registry, opts ...ManagerOption) (*Manager, error) {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.contextID == "" {
		cfg.contextID = uuid.NewString()
	}

	m := &Manager{
		registry: reg,
		config:   cfg,
		logger:   cfg.logger.With(zap.String("context", cfg.contextID)),
	}

	conf := cfg.configuration
	if conf == nil {
		var err error
		conf, err = NewDefaultConfiguration(reg, m.logger)
		if err != nil {
			return nil, err
		}
	}
	m.conf.Store(conf)
	m.state.Store(int32(StateCreated))
	return m, nil
}

// ID returns the context identifier stamped on fired notifications.
func (m *Manager) ID() string {
	return m.config.contextID
}

// NotificationHandler returns the manager itself.
func (m *Manager) NotificationHandler() Handler {
	return m
}

// Registry returns the type registry.
func (m *Manager) Registry() *notification.Registry {
	return m.registry
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsDisposed reports whether Dispose has been called.
func (m *Manager) IsDisposed() bool {
	return m.disposed.Load()
}

// Configuration returns the live configuration, or nil once disposed.
func (m *Manager) Configuration() *Configuration {
	return m.conf.Load()
}

// Start obtains one pool per affinity from the scheduler service. It fails
// with an *InitialisationError if the service is missing or refuses a pool.
func (m *Manager) Start() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	switch m.State() {
	case StateCreated:
	case StateDisposed:
		return ErrDisposed
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidState, m.State())
	}

	if m.config.schedulers == nil {
		return &InitialisationError{Err: ErrSchedulerUnavailable}
	}

	acquired := make(pools, len(pool.Affinities))
	for _, a := range pool.Affinities {
		p, err := m.config.schedulers.Scheduler(a)
		if err == nil && p == nil {
			err = ErrSchedulerUnavailable
		}
		if err != nil {
			_ = m.stopPools(acquired)
			return &InitialisationError{Err: fmt.Errorf("%s scheduler: %w", a, err)}
		}
		acquired[a] = p
	}

	m.pools.Store(&acquired)
	m.state.Store(int32(StateStarted))
	m.logger.Info("notification manager started")
	return nil
}

// Stop shuts down the pools, waiting for queued deliveries until ctx is done
// or the shutdown timeout elapses. Stop on a manager that is not started is
// a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.State() != StateStarted {
		return nil
	}
	err := m.shutdown(ctx)
	m.state.Store(int32(StateStopped))
	m.logger.Info("notification manager stopped")
	return err
}

// Dispose stops the manager if needed and releases the configuration.
// Later notifications are dropped. Dispose is idempotent.
func (m *Manager) Dispose() error {
	if m.disposed.Swap(true) {
		return nil
	}

	m.regMu.Lock()
	m.conf.Store(nil)
	m.regMu.Unlock()

	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	var err error
	if m.State() == StateStarted {
		err = m.shutdown(context.Background())
	}
	m.state.Store(int32(StateDisposed))
	m.logger.Info("notification manager disposed")
	return err
}

// shutdown stops the pools. The caller holds lifeMu.
func (m *Manager) shutdown(ctx context.Context) error {
	ps := m.pools.Swap(nil)
	if ps == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.shutdownTimeout)
		defer cancel()
	}
	err := m.stopPoolsContext(ctx, *ps)
	if err != nil {
		m.logger.Warn("notification pools did not stop cleanly", zap.Error(err))
	}
	return err
}

func (m *Manager) stopPools(ps pools) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.shutdownTimeout)
	defer cancel()
	return m.stopPoolsContext(ctx, ps)
}

func (m *Manager) stopPoolsContext(ctx context.Context, ps pools) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for a, p := range ps {
		wg.Add(1)
		go func(a pool.Affinity, p *pool.Pool) {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s pool: %w", a, err))
				mu.Unlock()
			}
		}(a, p)
	}
	wg.Wait()
	return errs
}

// FireNotification routes n to every enabled listener registered for its
// type. It never returns listener failures to the caller.
func (m *Manager) FireNotification(n notification.Notification) {
	if n == nil {
		return
	}
	conf := m.conf.Load()
	if conf == nil {
		m.dropped.Add(1)
		m.logger.Warn("notification fired after dispose; dropped",
			zap.Stringer("type", n.Type()),
			zap.Int("action", int(n.Action())))
		return
	}

	m.fired.Add(1)
	n.StampContext(m.config.contextID)
	policy := conf.Policy()

	if notification.IsBlocking(n) {
		policy.Dispatch(n, m.notifyInline)
		return
	}
	ps := m.pools.Load()
	if ps == nil {
		policy.Dispatch(n, m.notifyInline)
		return
	}
	policy.Dispatch(n, func(l Listener, n notification.Notification) error {
		return m.schedule(*ps, l, n)
	})
}

func (m *Manager) notifyInline(l Listener, n notification.Notification) error {
	err := invoke(l, n)
	if err != nil {
		m.failed.Add(1)
		return err
	}
	m.delivered.Add(1)
	return nil
}

// schedule submits the delivery to the listener's pool. A pool that Stop
// has already shut down makes the delivery inline; a full queue rejects it.
func (m *Manager) schedule(ps pools, l Listener, n notification.Notification) error {
	a := affinityOf(l)
	p, ok := ps[a]
	if !ok {
		p = ps[pool.Lite]
	}
	err := p.Submit(func() {
		if err := invoke(l, n); err != nil {
			m.failed.Add(1)
			logListenerFailure(m.logger, l, n, err)
			return
		}
		m.delivered.Add(1)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pool.ErrNotRunning):
		return m.notifyInline(l, n)
	default:
		m.rejected.Add(1)
		m.logger.Warn("notification delivery rejected",
			zap.String("pool", p.Name()),
			zap.Stringer("affinity", a),
			zap.String("listener", fmt.Sprintf("%T", l)),
			zap.Stringer("type", n.Type()),
			zap.String("notification", n.ID()),
			zap.Error(err))
		return nil
	}
}

// IsNotificationEnabled reports whether firing a notification of type t
// would reach any listener. A disposed manager reports false.
func (m *Manager) IsNotificationEnabled(t *notification.Type) bool {
	conf := m.conf.Load()
	if conf == nil {
		return false
	}
	return conf.Policy().IsNotificationEnabled(t)
}

// AnyNotificationEnabled reports whether any listener is reachable.
func (m *Manager) AnyNotificationEnabled() bool {
	conf := m.conf.Load()
	if conf == nil {
		return false
	}
	return conf.Policy().AnyEnabled()
}

// IsListenerRegistered reports whether l has at least one registration.
func (m *Manager) IsListenerRegistered(l Listener) bool {
	conf := m.conf.Load()
	return conf != nil && conf.IsListenerRegistered(l)
}

// mutate runs fn against the live configuration.
func (m *Manager) mutate(fn func(*Configuration) error) error {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	conf := m.conf.Load()
	if conf == nil {
		return ErrDisposed
	}
	return fn(conf)
}

// AddInterfaceToType binds a listener interface to a notification type.
func (m *Manager) AddInterfaceToType(i *notification.Interface, t *notification.Type) error {
	return m.mutate(func(c *Configuration) error { return c.AddInterfaceToType(i, t) })
}

// AddInterfaceToTypeByName binds an interface to a type by name.
func (m *Manager) AddInterfaceToTypeByName(interfaceName, typeName string) error {
	return m.mutate(func(c *Configuration) error { return c.AddInterfaceToTypeByName(interfaceName, typeName) })
}

// AddBindings adds several interface-to-type bindings.
func (m *Manager) AddBindings(bindings []notification.Binding) error {
	return m.mutate(func(c *Configuration) error { return c.AddBindings(bindings) })
}

// AddListener registers l without a subscription.
func (m *Manager) AddListener(l Listener) error {
	return m.AddListenerSubscription(l, "")
}

// AddListenerSubscription registers l with a resource identifier
// subscription.
func (m *Manager) AddListenerSubscription(l Listener, subscription string) error {
	return m.AddListenerSubscriptionPair(NewPair(l, subscription))
}

// AddListenerSubscriptionPair registers a pair.
func (m *Manager) AddListenerSubscriptionPair(p Pair) error {
	return m.mutate(func(c *Configuration) error { return c.AddListenerSubscriptionPair(p) })
}

// AddAllListenerSubscriptionPairs registers several pairs.
func (m *Manager) AddAllListenerSubscriptionPairs(ps []Pair) error {
	return m.mutate(func(c *Configuration) error { return c.AddAllListenerSubscriptionPairs(ps) })
}

// RemoveListener removes every registration of l.
func (m *Manager) RemoveListener(l Listener) error {
	return m.mutate(func(c *Configuration) error {
		c.RemoveListener(l)
		return nil
	})
}

// RemoveAllListeners removes every registration of each listener.
func (m *Manager) RemoveAllListeners(ls []Listener) error {
	return m.mutate(func(c *Configuration) error {
		c.RemoveAllListeners(ls)
		return nil
	})
}

// DisableInterface disables a listener interface and its extensions.
func (m *Manager) DisableInterface(i *notification.Interface) error {
	return m.mutate(func(c *Configuration) error { return c.DisableInterface(i) })
}

// DisableInterfacesByName disables interfaces by name.
func (m *Manager) DisableInterfacesByName(names []string) error {
	return m.mutate(func(c *Configuration) error { return c.DisableInterfacesByName(names) })
}

// DisableType disables a notification type and its descendants.
func (m *Manager) DisableType(t *notification.Type) error {
	return m.mutate(func(c *Configuration) error { return c.DisableType(t) })
}

// DisableTypesByName disables types by name.
func (m *Manager) DisableTypesByName(names []string) error {
	return m.mutate(func(c *Configuration) error { return c.DisableTypesByName(names) })
}

// Reconfigure replaces the disabled interfaces and types. A fresh
// configuration carrying the current bindings and listeners is passed to
// apply; if apply succeeds it becomes live atomically. On error the live
// configuration is untouched.
//
// Bindings are carried over as they are. To drop bindings, apply calls
// Configuration.ResetBindings before adding the wanted ones.
func (m *Manager) Reconfigure(apply func(*Configuration) error) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	current := m.conf.Load()
	if current == nil {
		return ErrDisposed
	}
	next := current.cloneRegistrations()
	if apply != nil {
		if err := apply(next); err != nil {
			return err
		}
	}
	m.conf.Store(next)
	m.logger.Info("notification configuration replaced",
		zap.Int("disabled_interfaces", len(next.DisabledInterfaces())),
		zap.Int("disabled_types", len(next.DisabledTypes())))
	return nil
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Fired:     m.fired.Load(),
		Dropped:   m.dropped.Load(),
		Delivered: m.delivered.Load(),
		Failed:    m.failed.Load(),
		Rejected:  m.rejected.Load(),
	}
	if conf := m.conf.Load(); conf != nil {
		s.PolicyBuilds = conf.PolicyBuilds()
		s.ConfigVersion = conf.Version()
		s.Listeners = len(conf.Pairs())
	}
	return s
}
