package notify

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notification"
)

// Policy is an immutable snapshot of the configuration, optimised for
// dispatch. It maps each registered notification type to the senders that
// receive it. Lookups by concrete type are memoised.
type Policy struct {
	version uint64
	logger  *zap.Logger

	types   []*notification.Type
	senders map[*notification.Type][]*Sender

	resolved sync.Map // *notification.Type -> []*Sender
	enabled  sync.Map // *notification.Type -> bool
}

// buildPolicyLocked compiles the current state. The caller holds c.mu.
//
// For every registered pair, each bound interface that the listener
// implements and that is not disabled contributes its bound types, minus
// disabled types. A pair appears at most once per type.
func (c *Configuration) buildPolicyLocked() *Policy {
	p := &Policy{
		version: c.version,
		logger:  c.logger,
		senders: make(map[*notification.Type][]*Sender),
	}

	for idx, pair := range c.pairs {
		var sender *Sender
		seen := make(map[*notification.Type]struct{})
		for _, iface := range c.ifaceOrder {
			if c.interfaceDisabledLocked(iface) || !implements(pair.Listener, iface) {
				continue
			}
			for _, t := range c.interfaceToTypes[iface] {
				if c.typeDisabledLocked(t) {
					continue
				}
				if _, dup := seen[t]; dup {
					continue
				}
				seen[t] = struct{}{}
				if sender == nil {
					sender = newSender(pair, idx, c.logger)
				}
				if _, ok := p.senders[t]; !ok {
					p.types = append(p.types, t)
				}
				p.senders[t] = append(p.senders[t], sender)
			}
		}
	}
	return p
}

// Version returns the configuration version the policy was built from.
func (p *Policy) Version() uint64 {
	return p.version
}

// AnyEnabled reports whether any listener would receive any notification.
func (p *Policy) AnyEnabled() bool {
	return len(p.types) > 0
}

// IsNotificationEnabled reports whether a notification of type t, or of any
// type derived from t, would reach at least one listener.
func (p *Policy) IsNotificationEnabled(t *notification.Type) bool {
	if t == nil {
		return false
	}
	if v, ok := p.enabled.Load(t); ok {
		return v.(bool)
	}
	enabled := false
	for _, registered := range p.types {
		if registered.Is(t) {
			enabled = true
			break
		}
	}
	p.enabled.Store(t, enabled)
	return enabled
}

// Dispatch hands n to every sender registered for a type n's type derives
// from. Senders run in registration order, each at most once.
func (p *Policy) Dispatch(n notification.Notification, notify Notifier) {
	for _, s := range p.sendersFor(n.Type()) {
		s.Dispatch(n, notify)
	}
}

// Senders returns the senders that would receive a notification of type t.
func (p *Policy) Senders(t *notification.Type) []*Sender {
	return append([]*Sender(nil), p.sendersFor(t)...)
}

func (p *Policy) sendersFor(t *notification.Type) []*Sender {
	if t == nil {
		return nil
	}
	if v, ok := p.resolved.Load(t); ok {
		return v.([]*Sender)
	}

	var out []*Sender
	seen := make(map[*Sender]struct{})
	for _, registered := range p.types {
		if !t.Is(registered) {
			continue
		}
		for _, s := range p.senders[registered] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].index < out[j].index
	})

	v, _ := p.resolved.LoadOrStore(t, out)
	return v.([]*Sender)
}
