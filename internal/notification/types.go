package notification

import "strings"

// Action is a notification action code.
type Action int

// NullAction is the action of a notification that carries no action.
const NullAction Action = 0

// Type is an immutable tag identifying a concrete notification kind.
// Types are compared by identity.
type Type struct {
	name       string
	parents    []*Type
	actionBase Action
	actionSpan int
}

// TypeOption configures a Type at construction.
type TypeOption func(*Type)

// WithActionRange reserves the action codes [base, base+span) for the type.
func WithActionRange(base Action, span int) TypeOption {
	return func(t *Type) {
		t.actionBase = base
		t.actionSpan = span
	}
}

// WithParents declares the types this type is a subtype of.
func WithParents(parents ...*Type) TypeOption {
	return func(t *Type) {
		for _, p := range parents {
			if p != nil {
				t.parents = append(t.parents, p)
			}
		}
	}
}

// NewType creates a notification type.
func NewType(name string, opts ...TypeOption) *Type {
	t := &Type{name: strings.TrimSpace(name)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the type's registered name.
func (t *Type) Name() string {
	return t.name
}

// String implements fmt.Stringer.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// Parents returns a copy of the type's declared parents.
func (t *Type) Parents() []*Type {
	out := make([]*Type, len(t.parents))
	copy(out, t.parents)
	return out
}

// ActionRange returns the first action code and the number of codes
// reserved for the type. A zero span means the type has no actions.
func (t *Type) ActionRange() (Action, int) {
	return t.actionBase, t.actionSpan
}

// InRange reports whether the action code belongs to the type's range.
func (t *Type) InRange(a Action) bool {
	return t.actionSpan > 0 && a >= t.actionBase && int(a-t.actionBase) < t.actionSpan
}

// Is reports whether t is other or a descendant of other.
func (t *Type) Is(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	for _, p := range t.parents {
		if p.Is(other) {
			return true
		}
	}
	return false
}

// Interface is an immutable capability tag grouping listeners able to
// handle one or more notification types.
type Interface struct {
	name    string
	parents []*Interface
}

// NewInterface creates a listener interface tag.
func NewInterface(name string, parents ...*Interface) *Interface {
	i := &Interface{name: strings.TrimSpace(name)}
	for _, p := range parents {
		if p != nil {
			i.parents = append(i.parents, p)
		}
	}
	return i
}

// Name returns the interface's registered name.
func (i *Interface) Name() string {
	return i.name
}

// String implements fmt.Stringer.
func (i *Interface) String() string {
	if i == nil {
		return "<nil>"
	}
	return i.name
}

// Is reports whether i is other or extends other.
func (i *Interface) Is(other *Interface) bool {
	if i == nil || other == nil {
		return false
	}
	if i == other {
		return true
	}
	for _, p := range i.parents {
		if p.Is(other) {
			return true
		}
	}
	return false
}
