package notify

import (
	"errors"
	"fmt"
)

// Sentinel errors for the notify package.
var (
	// ErrDisposed is returned by operations on a disposed manager.
	ErrDisposed = errors.New("notification manager is disposed")

	// ErrInvalidState is returned for a lifecycle transition that is not allowed.
	ErrInvalidState = errors.New("invalid lifecycle transition")

	// ErrSchedulerUnavailable is returned by Start when no scheduler service
	// can be located.
	ErrSchedulerUnavailable = errors.New("scheduler service unavailable")

	// ErrNilListener is returned when a nil listener is registered.
	ErrNilListener = errors.New("listener cannot be nil")

	// ErrUncomparableListener is returned for listeners that have no
	// identity, such as struct values holding slices. Register a pointer.
	ErrUncomparableListener = errors.New("listener has no identity; register a pointer")
)

// TypeError reports an argument that is not a registered notification
// type or listener interface.
type TypeError struct {
	// Kind is "type" or "interface".
	Kind string

	// Value is the offending argument.
	Value any
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("illegal argument: %v is not a registered notification %s", e.Value, e.Kind)
}

// NameError reports a name that does not resolve in the registry.
type NameError struct {
	// Kind is "type" or "interface".
	Kind string

	// Name is the unresolved name.
	Name string
}

// Error implements the error interface.
func (e *NameError) Error() string {
	return fmt.Sprintf("unknown notification %s name %q", e.Kind, e.Name)
}

// InitialisationError reports a fatal failure while starting the manager.
type InitialisationError struct {
	Err error
}

// Error implements the error interface.
func (e *InitialisationError) Error() string {
	return "notification manager initialisation failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InitialisationError) Unwrap() error {
	return e.Err
}

// ListenerPanicError wraps a panic raised by a listener.
type ListenerPanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("listener panicked: %v", e.Value)
}
