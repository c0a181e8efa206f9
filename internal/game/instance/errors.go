package instance

import (
	"errors"
	"fmt"
)

// ErrNotFound is the parent of every "does not exist" error of the package.
var ErrNotFound = errors.New("not found")

// Sentinel errors for the instance system.
var (
	ErrInstanceNotFound = fmt.Errorf("instance %w", ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("instance template %w", ErrNotFound)
	ErrRegionNotFound   = fmt.Errorf("source region %w", ErrNotFound)
	ErrZoneNotFound     = fmt.Errorf("zone %w", ErrNotFound)

	ErrAlreadyInInstance = errors.New("occupant already in an instance")
	ErrNotInInstance     = errors.New("occupant not in any instance")
	ErrNilOccupant       = errors.New("nil occupant")
)
