package notification

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Notification is the capability every value fired on the bus implements.
type Notification interface {
	// ID is a unique identifier for this notification instance.
	ID() string

	// Type is the concrete notification type.
	Type() *Type

	// Action is the action code within the type's range.
	Action() Action

	// Source is the object the notification is about. May be nil.
	Source() any

	// ResourceIdentifier is matched against listener subscriptions.
	// An empty string means the notification carries no identifier.
	ResourceIdentifier() string

	// Timestamp is when the notification was created.
	Timestamp() time.Time

	// ContextID identifies the runtime that fired the notification.
	// Empty until the notification has been fired.
	ContextID() string

	// StampContext records the firing runtime. Only the first stamp sticks.
	StampContext(id string)
}

// Blocking is implemented by notifications that must be delivered on the
// firing goroutine before FireNotification returns.
type Blocking interface {
	Notification
	BlockingNotification()
}

// IsBlocking reports whether n must be delivered synchronously.
func IsBlocking(n Notification) bool {
	_, ok := n.(Blocking)
	return ok
}

// Base implements Notification and is embedded by the concrete families.
type Base struct {
	id         string
	typ        *Type
	action     Action
	source     any
	resourceID string
	timestamp  time.Time
	contextID  atomic.Pointer[string]
}

// NewBase creates the common part of a notification.
func NewBase(t *Type, action Action, source any, resourceID string) *Base {
	return &Base{
		id:         uuid.NewString(),
		typ:        t,
		action:     action,
		source:     source,
		resourceID: resourceID,
		timestamp:  time.Now(),
	}
}

// ID returns the notification ID.
func (b *Base) ID() string { return b.id }

// Type returns the concrete notification type.
func (b *Base) Type() *Type { return b.typ }

// Action returns the action code.
func (b *Base) Action() Action { return b.action }

// Source returns the notification source.
func (b *Base) Source() any { return b.source }

// ResourceIdentifier returns the resource identifier, or "".
func (b *Base) ResourceIdentifier() string { return b.resourceID }

// Timestamp returns the creation time.
func (b *Base) Timestamp() time.Time { return b.timestamp }

// ContextID returns the stamped context ID, or "".
func (b *Base) ContextID() string {
	if p := b.contextID.Load(); p != nil {
		return *p
	}
	return ""
}

// StampContext records the firing context once.
func (b *Base) StampContext(id string) {
	b.contextID.CompareAndSwap(nil, &id)
}
