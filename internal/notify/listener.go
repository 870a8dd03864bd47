package notify

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify/pool"
)

// Listener receives notifications.
type Listener interface {
	// OnNotification handles one notification. A returned error or a panic
	// is logged by the bus and never reaches the producer.
	OnNotification(n notification.Notification) error

	// Interfaces returns the listener interfaces this listener implements.
	Interfaces() []*notification.Interface
}

// AffinityDeclarer is implemented by listeners that want their callbacks
// run on a specific pool. Listeners without it run on the Lite pool.
type AffinityDeclarer interface {
	Affinity() pool.Affinity
}

// affinityOf returns the declared affinity of l, or Lite.
func affinityOf(l Listener) pool.Affinity {
	if d, ok := l.(AffinityDeclarer); ok {
		return d.Affinity()
	}
	return pool.Lite
}

// FuncListener adapts a function to the Listener interface.
type FuncListener struct {
	fn       func(notification.Notification) error
	ifaces   []*notification.Interface
	affinity pool.Affinity
}

// ListenerFunc creates a listener from a function. The returned pointer is
// the listener's identity for registration and removal.
func ListenerFunc(fn func(notification.Notification) error, ifaces ...*notification.Interface) *FuncListener {
	return &FuncListener{fn: fn, ifaces: ifaces, affinity: pool.Lite}
}

// WithAffinity sets the listener's affinity and returns the listener.
func (l *FuncListener) WithAffinity(a pool.Affinity) *FuncListener {
	l.affinity = a
	return l
}

// OnNotification implements Listener.
func (l *FuncListener) OnNotification(n notification.Notification) error {
	return l.fn(n)
}

// Interfaces implements Listener.
func (l *FuncListener) Interfaces() []*notification.Interface {
	return l.ifaces
}

// Affinity implements AffinityDeclarer.
func (l *FuncListener) Affinity() pool.Affinity {
	return l.affinity
}

// implements reports whether l declares iface or an extension of it.
func implements(l Listener, iface *notification.Interface) bool {
	for _, declared := range l.Interfaces() {
		if declared.Is(iface) {
			return true
		}
	}
	return false
}

// Pair binds a listener to an optional subscription. An empty
// subscription matches every notification.
type Pair struct {
	Listener     Listener
	Subscription string
}

// NewPair creates a listener/subscription pair.
func NewPair(l Listener, subscription string) Pair {
	return Pair{Listener: l, Subscription: strings.TrimSpace(subscription)}
}

// IsNullSubscription reports whether the pair matches every notification.
func (p Pair) IsNullSubscription() bool {
	return strings.TrimSpace(p.Subscription) == ""
}

// String implements fmt.Stringer.
func (p Pair) String() string {
	if p.IsNullSubscription() {
		return fmt.Sprintf("%T", p.Listener)
	}
	return fmt.Sprintf("%T[%s]", p.Listener, p.Subscription)
}

// pairKey is the value identity of a pair.
type pairKey struct {
	listener     any
	subscription string
}

func (p Pair) key() (pairKey, bool) {
	id, ok := listenerIdentity(p.Listener)
	if !ok {
		return pairKey{}, false
	}
	return pairKey{listener: id, subscription: strings.TrimSpace(p.Subscription)}, true
}

// refKey identifies reference-kind listeners that are not comparable.
type refKey struct {
	typ reflect.Type
	ptr uintptr
}

// listenerIdentity returns a comparable identity for l. Pointers and other
// comparable values identify themselves; funcs, maps and slices are
// identified by address. Other non-comparable values have no identity,
// including structs whose interface fields hold non-comparable values.
func listenerIdentity(l Listener) (any, bool) {
	if l == nil {
		return nil, false
	}
	v := reflect.ValueOf(l)
	if v.Comparable() {
		return l, true
	}
	switch v.Kind() {
	case reflect.Func, reflect.Map, reflect.Slice:
		return refKey{typ: v.Type(), ptr: v.Pointer()}, true
	default:
		return nil, false
	}
}

// sameListener reports whether a and b are the same listener.
func sameListener(a, b Listener) bool {
	ia, ok := listenerIdentity(a)
	if !ok {
		return false
	}
	ib, ok := listenerIdentity(b)
	return ok && ia == ib
}

// invoke calls the listener, turning a panic into a *ListenerPanicError.
func invoke(l Listener, n notification.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ListenerPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return l.OnNotification(n)
}
