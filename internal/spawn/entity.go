package spawn

import (
	"maps"
	"sync"

	"github.com/udisondev/instancer/internal/model"
)

// Kind distinguishes static world furniture from mobs.
type Kind uint8

const (
	KindStatic Kind = iota // двери, торговцы, баннеры
	KindMob                // всё, что может сражаться
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindMob:
		return "mob"
	default:
		return "unknown"
	}
}

// ParseKind converts "static" / "mob" into a Kind. Unknown strings map to KindStatic.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "static", "":
		return KindStatic, true
	case "mob":
		return KindMob, true
	default:
		return KindStatic, false
	}
}

// Entity is a world object created from a class. Identity fields are
// immutable; placement and state are guarded by mu.
type Entity struct {
	objectID   uint32
	classType  string
	kind       Kind
	templateID int32

	mu         sync.RWMutex
	name       string
	location   model.Location
	instanceID int32
	persist    bool
	active     bool
	props      map[string]string
}

// NewEntity creates an inactive, persistent entity outside of any instance.
func NewEntity(objectID uint32, classType string, kind Kind, name string) *Entity {
	return &Entity{
		objectID:  objectID,
		classType: classType,
		kind:      kind,
		name:      name,
		persist:   true,
		props:     make(map[string]string),
	}
}

// ObjectID returns the unique object identifier.
func (e *Entity) ObjectID() uint32 { return e.objectID }

// ClassType returns the class the entity was built from.
func (e *Entity) ClassType() string { return e.classType }

// Kind returns whether the entity is static or a mob.
func (e *Entity) Kind() Kind { return e.kind }

// TemplateID returns the spawn template id (0 if none).
func (e *Entity) TemplateID() int32 { return e.templateID }

func (e *Entity) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

func (e *Entity) SetName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
}

func (e *Entity) Location() model.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.location
}

func (e *Entity) SetLocation(loc model.Location) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.location = loc
}

// InstanceID returns the owning instance (0 for the static world).
func (e *Entity) InstanceID() int32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.instanceID
}

// Persist reports whether the entity is saved with the static world.
// Always false for entities living in an instance.
func (e *Entity) Persist() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.persist
}

func (e *Entity) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Prop returns one free-form property.
func (e *Entity) Prop(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.props[key]
	return v, ok
}

func (e *Entity) SetProp(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[key] = value
}

// Props returns a copy of all properties.
func (e *Entity) Props() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.props)
}

// rehome moves the entity into an instance; instance copies never persist.
func (e *Entity) rehome(instanceID int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instanceID = instanceID
	if instanceID != 0 {
		e.persist = false
	}
}

func (e *Entity) setActive(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = active
}
