package notify

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notification"
)

// Configuration is the mutable registration state of the bus: which listener
// interfaces are bound to which notification types, which listeners are
// registered, and which interfaces and types are disabled.
//
// Every mutation bumps the version. Policy rebuilds the dispatch policy only
// when the cached one is older than the current version, so the steady-state
// read path takes a read lock and compares two integers.
//
// Configuration is safe for concurrent use.
type Configuration struct {
	registry *notification.Registry
	logger   *zap.Logger

	mu                 sync.RWMutex
	ifaceOrder         []*notification.Interface
	interfaceToTypes   map[*notification.Interface][]*notification.Type
	pairs              []Pair
	pairIndex          map[pairKey]struct{}
	disabledInterfaces []*notification.Interface
	disabledTypes      []*notification.Type
	version            uint64
	policy             *Policy

	builds atomic.Uint64
}

// NewConfiguration creates an empty configuration backed by reg. Interfaces
// and types passed to the configuration must be registered in reg.
func NewConfiguration(reg *notification.Registry, logger *zap.Logger) *Configuration {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Configuration{
		registry:         reg,
		logger:           logger,
		interfaceToTypes: make(map[*notification.Interface][]*notification.Type),
		pairIndex:        make(map[pairKey]struct{}),
	}
}

// NewDefaultConfiguration creates a configuration pre-loaded with every
// interface-to-type binding declared in reg.
func NewDefaultConfiguration(reg *notification.Registry, logger *zap.Logger) (*Configuration, error) {
	c := NewConfiguration(reg, logger)
	if err := c.AddBindings(reg.Bindings()); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry returns the registry backing the configuration.
func (c *Configuration) Registry() *notification.Registry {
	return c.registry
}

func (c *Configuration) checkInterface(i *notification.Interface) error {
	if i == nil || !c.registry.HasInterface(i) {
		return &TypeError{Kind: "interface", Value: i}
	}
	return nil
}

func (c *Configuration) checkType(t *notification.Type) error {
	if t == nil || !c.registry.HasType(t) {
		return &TypeError{Kind: "type", Value: t}
	}
	return nil
}

// AddInterfaceToType binds a listener interface to a notification type.
// Binding the same pair twice has no effect.
func (c *Configuration) AddInterfaceToType(i *notification.Interface, t *notification.Type) error {
	return c.AddBindings([]notification.Binding{{Interface: i, Type: t}})
}

// AddInterfaceToTypeByName binds an interface to a type, both looked up by
// name in the registry.
func (c *Configuration) AddInterfaceToTypeByName(interfaceName, typeName string) error {
	i, ok := c.registry.LookupInterface(interfaceName)
	if !ok {
		return &NameError{Kind: "interface", Name: interfaceName}
	}
	t, ok := c.registry.LookupType(typeName)
	if !ok {
		return &NameError{Kind: "type", Name: typeName}
	}
	return c.AddInterfaceToType(i, t)
}

// AddBindings adds several bindings. Either every binding is valid and all
// are applied, or none are.
func (c *Configuration) AddBindings(bindings []notification.Binding) error {
	for _, b := range bindings {
		if err := c.checkInterface(b.Interface); err != nil {
			return err
		}
		if err := c.checkType(b.Type); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := false
	for _, b := range bindings {
		if c.bindLocked(b.Interface, b.Type) {
			changed = true
		}
	}
	if changed {
		c.version++
	}
	return nil
}

// AddAllInterfaceToTypes binds each interface to each of its types.
// Interfaces are processed in name order.
func (c *Configuration) AddAllInterfaceToTypes(bindings map[*notification.Interface][]*notification.Type) error {
	ifaces := make([]*notification.Interface, 0, len(bindings))
	for i := range bindings {
		ifaces = append(ifaces, i)
	}
	sort.Slice(ifaces, func(a, b int) bool {
		return ifaces[a].String() < ifaces[b].String()
	})

	var flat []notification.Binding
	for _, i := range ifaces {
		for _, t := range bindings[i] {
			flat = append(flat, notification.Binding{Interface: i, Type: t})
		}
	}
	return c.AddBindings(flat)
}

// AddBindingsByName binds each interface name to the listed type names.
// Interfaces are processed in name order.
func (c *Configuration) AddBindingsByName(bindings map[string][]string) error {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make([]notification.Binding, 0, len(bindings))
	for _, iname := range names {
		i, ok := c.registry.LookupInterface(iname)
		if !ok {
			return &NameError{Kind: "interface", Name: iname}
		}
		for _, tname := range bindings[iname] {
			t, ok := c.registry.LookupType(tname)
			if !ok {
				return &NameError{Kind: "type", Name: tname}
			}
			resolved = append(resolved, notification.Binding{Interface: i, Type: t})
		}
	}
	return c.AddBindings(resolved)
}

func (c *Configuration) bindLocked(i *notification.Interface, t *notification.Type) bool {
	types, seen := c.interfaceToTypes[i]
	for _, existing := range types {
		if existing == t {
			return false
		}
	}
	if !seen {
		c.ifaceOrder = append(c.ifaceOrder, i)
	}
	c.interfaceToTypes[i] = append(types, t)
	return true
}

// ResetBindings replaces every binding with bindings. Either every binding
// is valid and the replacement happens, or nothing changes.
func (c *Configuration) ResetBindings(bindings []notification.Binding) error {
	for _, b := range bindings {
		if err := c.checkInterface(b.Interface); err != nil {
			return err
		}
		if err := c.checkType(b.Type); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ifaceOrder = nil
	c.interfaceToTypes = make(map[*notification.Interface][]*notification.Type, len(bindings))
	for _, b := range bindings {
		c.bindLocked(b.Interface, b.Type)
	}
	c.version++
	return nil
}

// Bindings returns the current bindings in registration order.
func (c *Configuration) Bindings() []notification.Binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []notification.Binding
	for _, i := range c.ifaceOrder {
		for _, t := range c.interfaceToTypes[i] {
			out = append(out, notification.Binding{Interface: i, Type: t})
		}
	}
	return out
}

// AddListenerSubscriptionPair registers a listener with an optional
// subscription. Registering an equal pair again logs a warning and leaves
// the configuration unchanged.
func (c *Configuration) AddListenerSubscriptionPair(p Pair) error {
	return c.AddAllListenerSubscriptionPairs([]Pair{p})
}

// AddAllListenerSubscriptionPairs registers several pairs in order.
func (c *Configuration) AddAllListenerSubscriptionPairs(pairs []Pair) error {
	keys := make([]pairKey, len(pairs))
	for idx, p := range pairs {
		if p.Listener == nil {
			return ErrNilListener
		}
		k, ok := p.key()
		if !ok {
			return ErrUncomparableListener
		}
		keys[idx] = k
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := false
	for idx, p := range pairs {
		if _, dup := c.pairIndex[keys[idx]]; dup {
			c.logger.Warn("listener already registered",
				zap.Stringer("pair", p))
			continue
		}
		c.pairIndex[keys[idx]] = struct{}{}
		c.pairs = append(c.pairs, NewPair(p.Listener, p.Subscription))
		changed = true
	}
	if changed {
		c.version++
	}
	return nil
}

// RemoveListener removes every pair registered for l.
func (c *Configuration) RemoveListener(l Listener) {
	c.RemoveAllListeners([]Listener{l})
}

// RemoveAllListeners removes every pair registered for any of ls.
func (c *Configuration) RemoveAllListeners(ls []Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.pairs[:0:0]
	for _, p := range c.pairs {
		remove := false
		for _, l := range ls {
			if sameListener(p.Listener, l) {
				remove = true
				break
			}
		}
		if remove {
			if k, ok := p.key(); ok {
				delete(c.pairIndex, k)
			}
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) != len(c.pairs) {
		c.pairs = kept
		c.version++
	}
}

// IsListenerRegistered reports whether l has at least one registered pair.
func (c *Configuration) IsListenerRegistered(l Listener) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.pairs {
		if sameListener(p.Listener, l) {
			return true
		}
	}
	return false
}

// Pairs returns the registered pairs in registration order.
func (c *Configuration) Pairs() []Pair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Pair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// DisableInterface disables a listener interface and every interface that
// extends it.
func (c *Configuration) DisableInterface(i *notification.Interface) error {
	return c.DisableInterfaces([]*notification.Interface{i})
}

// DisableInterfaces disables several interfaces.
func (c *Configuration) DisableInterfaces(is []*notification.Interface) error {
	for _, i := range is {
		if err := c.checkInterface(i); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabledInterfaces = appendUnique(c.disabledInterfaces, is...)
	c.version++
	return nil
}

// DisableInterfacesByName disables interfaces looked up by name.
func (c *Configuration) DisableInterfacesByName(names []string) error {
	is := make([]*notification.Interface, 0, len(names))
	for _, name := range names {
		i, ok := c.registry.LookupInterface(name)
		if !ok {
			return &NameError{Kind: "interface", Name: name}
		}
		is = append(is, i)
	}
	return c.DisableInterfaces(is)
}

// DisableType disables a notification type and every type derived from it.
func (c *Configuration) DisableType(t *notification.Type) error {
	return c.DisableTypes([]*notification.Type{t})
}

// DisableTypes disables several types.
func (c *Configuration) DisableTypes(ts []*notification.Type) error {
	for _, t := range ts {
		if err := c.checkType(t); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabledTypes = appendUnique(c.disabledTypes, ts...)
	c.version++
	return nil
}

// DisableTypesByName disables types looked up by name.
func (c *Configuration) DisableTypesByName(names []string) error {
	ts := make([]*notification.Type, 0, len(names))
	for _, name := range names {
		t, ok := c.registry.LookupType(name)
		if !ok {
			return &NameError{Kind: "type", Name: name}
		}
		ts = append(ts, t)
	}
	return c.DisableTypes(ts)
}

// DisabledInterfaces returns the explicitly disabled interfaces.
func (c *Configuration) DisabledInterfaces() []*notification.Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*notification.Interface(nil), c.disabledInterfaces...)
}

// DisabledTypes returns the explicitly disabled types.
func (c *Configuration) DisabledTypes() []*notification.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*notification.Type(nil), c.disabledTypes...)
}

// Version returns the mutation counter.
func (c *Configuration) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// PolicyBuilds returns how many times a policy has been built.
func (c *Configuration) PolicyBuilds() uint64 {
	return c.builds.Load()
}

// Policy returns a policy reflecting every mutation made so far. A new
// policy is built only if the configuration changed since the last call.
func (c *Configuration) Policy() *Policy {
	c.mu.RLock()
	p := c.policy
	current := p != nil && p.version == c.version
	c.mu.RUnlock()
	if current {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy != nil && c.policy.version == c.version {
		return c.policy
	}
	c.policy = c.buildPolicyLocked()
	c.builds.Add(1)
	c.logger.Debug("notification policy rebuilt",
		zap.Uint64("version", c.version),
		zap.Int("listeners", len(c.pairs)))
	return c.policy
}

// cloneRegistrations returns a new configuration carrying the bindings and
// listener pairs of c, without any disabled interfaces or types.
func (c *Configuration) cloneRegistrations() *Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewConfiguration(c.registry, c.logger)
	for _, i := range c.ifaceOrder {
		for _, t := range c.interfaceToTypes[i] {
			out.bindLocked(i, t)
		}
	}
	for _, p := range c.pairs {
		if k, ok := p.key(); ok {
			out.pairIndex[k] = struct{}{}
			out.pairs = append(out.pairs, p)
		}
	}
	out.version = 1
	return out
}

func (c *Configuration) interfaceDisabledLocked(i *notification.Interface) bool {
	for _, d := range c.disabledInterfaces {
		if i.Is(d) {
			return true
		}
	}
	return false
}

func (c *Configuration) typeDisabledLocked(t *notification.Type) bool {
	for _, d := range c.disabledTypes {
		if t.Is(d) {
			return true
		}
	}
	return false
}

func appendUnique[T comparable](dst []T, items ...T) []T {
outer:
	for _, item := range items {
		for _, existing := range dst {
			if existing == item {
				continue outer
			}
		}
		dst = append(dst, item)
	}
	return dst
}
