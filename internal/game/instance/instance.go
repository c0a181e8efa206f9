// Package instance implements dynamic instances: private, ephemeral copies
// of a world template populated either from a named spawn list (templated)
// or by cloning a whole region with its spatial areas (cloned).
//
// Every instance is built from a shared Lifecycle (occupancy, timers,
// teardown) plus the capabilities its kind needs: SpawnLoader, Cloner and
// OwnershipTracker. The Manager is the registry and the public entry point.
package instance

import (
	"time"
)

// Kind is the way an instance was populated.
type Kind uint8

const (
	KindTemplated Kind = iota
	KindCloned
)

func (k Kind) String() string {
	switch k {
	case KindTemplated:
		return "templated"
	case KindCloned:
		return "cloned"
	default:
		return "unknown"
	}
}

// Instance is one live instance: a Lifecycle plus kind-specific capabilities.
// Thread-safe for concurrent access.
type Instance struct {
	*Lifecycle

	name           string
	templateName   string // templated only
	sourceRegionID int32  // cloned only
	createdAt      time.Time

	loader *spawnLoader
	cloner *worldCloner
	owner  *ownershipTracker
}

// Kind returns how the instance was populated.
func (i *Instance) Kind() Kind { return i.kind }

// Name returns the description shown to players, e.g. "Keep of Ashes (Instance)".
func (i *Instance) Name() string { return i.name }

// TemplateName returns the spawn template of a templated instance.
func (i *Instance) TemplateName() string { return i.templateName }

// SourceRegionID returns the region a cloned instance was copied from.
func (i *Instance) SourceRegionID() int32 { return i.sourceRegionID }

// CreatedAt returns when the instance was created.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// SpawnLoader returns the templated-instance capability.
func (i *Instance) SpawnLoader() (SpawnLoader, bool) {
	if i.loader == nil {
		return nil, false
	}
	return i.loader, true
}

// Cloner returns the cloned-instance capability.
func (i *Instance) Cloner() (Cloner, bool) {
	if i.cloner == nil {
		return nil, false
	}
	return i.cloner, true
}

// Ownership returns the ownership capability, absent when the instance
// was created WithoutOwnership.
func (i *Instance) Ownership() (OwnershipTracker, bool) {
	if i.owner == nil {
		return nil, false
	}
	return i.owner, true
}

func describe(source string) string {
	return source + " (Instance)"
}
