package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notify/pool"
)

// SchedulerService hands out started pools. *pool.Service implements it.
type SchedulerService interface {
	Scheduler(a pool.Affinity) (*pool.Pool, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig contains configuration for the manager.
type managerConfig struct {
	// logger receives listener failures and lifecycle events.
	logger *zap.Logger

	// schedulers supplies the three affinity pools at Start.
	schedulers SchedulerService

	// shutdownTimeout bounds Stop when the caller's context has no deadline.
	shutdownTimeout time.Duration

	// contextID is stamped on every fired notification.
	contextID string

	// configuration replaces the default registry-bound configuration.
	configuration *Configuration
}

// defaultManagerConfig returns the default manager configuration.
func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:          zap.NewNop(),
		shutdownTimeout: 5 * time.Second,
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(c *managerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSchedulerService sets where Start obtains its pools. Without one,
// Start fails with ErrSchedulerUnavailable.
func WithSchedulerService(s SchedulerService) ManagerOption {
	return func(c *managerConfig) {
		c.schedulers = s
	}
}

// WithShutdownTimeout bounds how long Stop waits for pools to drain.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(c *managerConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithContextID sets the identifier stamped on fired notifications.
// A random UUID is used by default.
func WithContextID(id string) ManagerOption {
	return func(c *managerConfig) {
		c.contextID = id
	}
}

// WithConfiguration uses cfg instead of a fresh configuration loaded with
// the registry's bindings.
func WithConfiguration(cfg *Configuration) ManagerOption {
	return func(c *managerConfig) {
		c.configuration = cfg
	}
}
