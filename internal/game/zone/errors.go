package zone

import "errors"

// Sentinel errors for the zone package.
var (
	ErrInvalidGeometry    = errors.New("invalid area geometry")
	ErrUnknownPartition   = errors.New("unknown partition")
	ErrDuplicatePartition = errors.New("duplicate partition")
	ErrDuplicateArea      = errors.New("duplicate area")
	ErrIndexReleased      = errors.New("spatial index released")
)
