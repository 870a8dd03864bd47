package notification

import "errors"

// Sentinel errors for the notification registry.
var (
	// ErrInvalidType is returned for a nil, unnamed or unregistered type.
	ErrInvalidType = errors.New("invalid notification type")

	// ErrInvalidInterface is returned for a nil, unnamed or unregistered interface.
	ErrInvalidInterface = errors.New("invalid listener interface")

	// ErrInvalidName is returned for an empty action name.
	ErrInvalidName = errors.New("invalid name")

	// ErrDuplicateName is returned when a name is taken by a different tag.
	ErrDuplicateName = errors.New("name already registered")

	// ErrActionRange is returned when an action code is outside its type's range.
	ErrActionRange = errors.New("action code outside type range")

	// ErrActionConflict is returned when an action code or name is already
	// registered with a different meaning.
	ErrActionConflict = errors.New("action code conflict")
)
