package spawn

import "errors"

var (
	// ErrUnknownClass is returned by Factory.Create for an unregistered class type.
	ErrUnknownClass = errors.New("unknown entity class")

	// ErrDuplicateClass is returned when a class type is registered twice.
	ErrDuplicateClass = errors.New("duplicate entity class")

	// ErrInvalidClass is returned for a class without a type name.
	ErrInvalidClass = errors.New("invalid entity class")
)
