package notify

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/herald/internal/notification"
)

// Handler is the producer-facing side of the bus.
type Handler interface {
	FireNotification(n notification.Notification)
	IsNotificationEnabled(t *notification.Type) bool
}

// Owner is a runtime context that owns a notification handler.
// *Manager implements it.
type Owner interface {
	ID() string
	NotificationHandler() Handler
}

// optimisedHandler answers enablement for one fixed type from a value
// computed on first use. Other types are passed through.
type optimisedHandler struct {
	delegate Handler
	typ      *notification.Type

	once    sync.Once
	enabled bool
}

func (h *optimisedHandler) IsNotificationEnabled(t *notification.Type) bool {
	if t != h.typ {
		return h.delegate.IsNotificationEnabled(t)
	}
	h.once.Do(func() {
		h.enabled = h.delegate.IsNotificationEnabled(h.typ)
	})
	return h.enabled
}

func (h *optimisedHandler) FireNotification(n notification.Notification) {
	if h.IsNotificationEnabled(n.Type()) {
		h.delegate.FireNotification(n)
	}
}

// Helper lets a producer fire notifications of one type cheaply. Unless the
// helper is dynamic, whether the type is enabled is computed once per
// owner and cached; later configuration changes are not observed.
type Helper struct {
	typ     *notification.Type
	dynamic bool

	defaultHandler Handler

	mu       sync.RWMutex
	handlers map[string]Handler
	group    singleflight.Group
}

// NewHelper creates a helper for notifications of type t. defaultHandler
// serves calls that name no owner and may be nil.
func NewHelper(defaultHandler Handler, t *notification.Type, dynamic bool) *Helper {
	h := &Helper{
		typ:      t,
		dynamic:  dynamic,
		handlers: make(map[string]Handler),
	}
	if defaultHandler != nil {
		h.defaultHandler = h.adapt(defaultHandler)
	}
	return h
}

func (h *Helper) adapt(handler Handler) Handler {
	if h.dynamic {
		return handler
	}
	return &optimisedHandler{delegate: handler, typ: h.typ}
}

// HandlerFor returns the cached handler for owner, adapting it on first
// use. Concurrent first calls for the same owner share one handler.
func (h *Helper) HandlerFor(owner Owner) Handler {
	if owner == nil {
		return h.defaultHandler
	}
	id := owner.ID()

	h.mu.RLock()
	handler, ok := h.handlers[id]
	h.mu.RUnlock()
	if ok {
		return handler
	}

	v, _, _ := h.group.Do(id, func() (any, error) {
		h.mu.RLock()
		existing, ok := h.handlers[id]
		h.mu.RUnlock()
		if ok {
			return existing, nil
		}
		adapted := h.adapt(owner.NotificationHandler())
		h.mu.Lock()
		h.handlers[id] = adapted
		h.mu.Unlock()
		return adapted, nil
	})
	return v.(Handler)
}

// Forget drops the cached handler for owner. The next call recomputes it.
func (h *Helper) Forget(owner Owner) {
	if owner == nil {
		return
	}
	h.mu.Lock()
	delete(h.handlers, owner.ID())
	h.mu.Unlock()
}

// IsNotificationEnabled reports enablement through the default handler.
func (h *Helper) IsNotificationEnabled() bool {
	return h.defaultHandler != nil && h.defaultHandler.IsNotificationEnabled(h.typ)
}

// IsNotificationEnabledFor reports enablement through owner's handler.
func (h *Helper) IsNotificationEnabledFor(owner Owner) bool {
	handler := h.HandlerFor(owner)
	return handler != nil && handler.IsNotificationEnabled(h.typ)
}

// FireNotification fires n through the default handler if enabled.
func (h *Helper) FireNotification(n notification.Notification) {
	if h.IsNotificationEnabled() {
		h.defaultHandler.FireNotification(n)
	}
}

// FireNotificationFor fires n through owner's handler if enabled.
func (h *Helper) FireNotificationFor(owner Owner, n notification.Notification) {
	handler := h.HandlerFor(owner)
	if handler != nil && handler.IsNotificationEnabled(h.typ) {
		handler.FireNotification(n)
	}
}
