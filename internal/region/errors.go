package region

import "errors"

var (
	// ErrTemplateNotFound is returned when no spawn template has the requested name.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRegionNotFound is returned when no region has the requested id.
	ErrRegionNotFound = errors.New("region not found")

	// ErrInvalidTemplate is returned when a template or region fails validation on load.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrDuplicate is returned when a template name or region id is registered twice.
	ErrDuplicate = errors.New("duplicate template")
)
