package notification

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the central table of notification types, listener
// interfaces, action-code names and default interface bindings.
//
// A Registry is created once per process and passed to the components
// that need it. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	types      map[string]*Type
	typeOrder  []*Type
	ifaces     map[string]*Interface
	ifaceOrder []*Interface

	actionNames map[Action]actionEntry
	actionCodes map[string]Action

	bindings []Binding
}

type actionEntry struct {
	typ  *Type
	name string
}

// Binding binds a listener interface to a notification type.
type Binding struct {
	Interface *Interface
	Type      *Type
}

// ActionInfo describes one registered action code.
type ActionInfo struct {
	Code Action
	Name string
	Type *Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:       make(map[string]*Type),
		ifaces:      make(map[string]*Interface),
		actionNames: make(map[Action]actionEntry),
		actionCodes: make(map[string]Action),
	}
}

// RegisterType adds a type. Registering the same type twice is a no-op;
// registering a different type under a taken name is ErrDuplicateName.
func (r *Registry) RegisterType(t *Type) error {
	if t == nil || t.name == "" {
		return ErrInvalidType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[t.name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type %q: %w", t.name, ErrDuplicateName)
	}
	for _, p := range t.parents {
		if r.types[p.name] != p {
			return fmt.Errorf("type %q: parent %q is not registered: %w", t.name, p.name, ErrInvalidType)
		}
	}
	r.types[t.name] = t
	r.typeOrder = append(r.typeOrder, t)
	return nil
}

// RegisterInterface adds a listener interface.
func (r *Registry) RegisterInterface(i *Interface) error {
	if i == nil || i.name == "" {
		return ErrInvalidInterface
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ifaces[i.name]; ok {
		if existing == i {
			return nil
		}
		return fmt.Errorf("interface %q: %w", i.name, ErrDuplicateName)
	}
	r.ifaces[i.name] = i
	r.ifaceOrder = append(r.ifaceOrder, i)
	return nil
}

// RegisterAction records the name of an action code for a type.
//
// Re-registering an identical (type, code, name) triple is a no-op. A code
// outside the type's range is ErrActionRange; a code or name already bound
// differently is ErrActionConflict.
func (r *Registry) RegisterAction(t *Type, code Action, name string) error {
	if t == nil {
		return ErrInvalidType
	}
	if name == "" {
		return fmt.Errorf("action %d: %w", code, ErrInvalidName)
	}
	if !t.InRange(code) {
		base, span := t.ActionRange()
		return fmt.Errorf("action %d (%s) outside %s range [%d,%d): %w",
			code, name, t.name, base, int(base)+span, ErrActionRange)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.types[t.name] != t {
		return fmt.Errorf("type %q is not registered: %w", t.name, ErrInvalidType)
	}
	if existing, ok := r.actionNames[code]; ok {
		if existing.typ == t && existing.name == name {
			return nil
		}
		return fmt.Errorf("action %d already registered as %q: %w", code, existing.name, ErrActionConflict)
	}
	if existing, ok := r.actionCodes[name]; ok {
		return fmt.Errorf("action name %q already registered as %d: %w", name, existing, ErrActionConflict)
	}

	r.actionNames[code] = actionEntry{typ: t, name: name}
	r.actionCodes[name] = code
	return nil
}

// Bind records a default interface-to-type binding.
func (r *Registry) Bind(i *Interface, t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i == nil || r.ifaces[i.name] != i {
		return ErrInvalidInterface
	}
	if t == nil || r.types[t.name] != t {
		return ErrInvalidType
	}
	for _, b := range r.bindings {
		if b.Interface == i && b.Type == t {
			return nil
		}
	}
	r.bindings = append(r.bindings, Binding{Interface: i, Type: t})
	return nil
}

// Bindings returns the default bindings in registration order.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// HasType reports whether t is registered.
func (r *Registry) HasType(t *Type) bool {
	if t == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[t.name] == t
}

// HasInterface reports whether i is registered.
func (r *Registry) HasInterface(i *Interface) bool {
	if i == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ifaces[i.name] == i
}

// LookupType returns the type registered under name.
func (r *Registry) LookupType(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// LookupInterface returns the interface registered under name.
func (r *Registry) LookupInterface(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.ifaces[name]
	return i, ok
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Type, len(r.typeOrder))
	copy(out, r.typeOrder)
	return out
}

// Interfaces returns all registered interfaces in registration order.
func (r *Registry) Interfaces() []*Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Interface, len(r.ifaceOrder))
	copy(out, r.ifaceOrder)
	return out
}

// ActionName returns the name registered for code, or "" if unknown.
func (r *Registry) ActionName(code Action) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actionNames[code].name
}

// ActionCode returns the code registered under name.
func (r *Registry) ActionCode(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.actionCodes[name]
	return code, ok
}

// Actions returns every registered action sorted by code.
func (r *Registry) Actions() []ActionInfo {
	r.mu.RLock()
	out := make([]ActionInfo, 0, len(r.actionNames))
	for code, e := range r.actionNames {
		out = append(out, ActionInfo{Code: code, Name: e.name, Type: e.typ})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
