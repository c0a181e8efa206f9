package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/udisondev/instancer/internal/model"
)

// Placement says what to spawn and where.
type Placement struct {
	ClassType  string
	Location   model.Location
	TemplateID int32
	InstanceID int32             // 0 = static world
	Name       string            // overrides the class display name
	Props      map[string]string // merged over class properties
}

// Manager constructs, positions, activates and despawns entities.
type Manager struct {
	factory  *Factory
	entities sync.Map // objectID → *Entity

	liveCount atomic.Int32 // cached count (O(1) access)
}

// NewManager creates a spawn manager backed by factory.
func NewManager(factory *Factory) *Manager {
	return &Manager{factory: factory}
}

// Factory returns the underlying class registry.
func (m *Manager) Factory() *Factory {
	return m.factory
}

// DoSpawn creates an entity for p, places it and activates it.
// Returns ErrUnknownClass (wrapped) if the class is not registered.
func (m *Manager) DoSpawn(ctx context.Context, p Placement) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, err := m.factory.Create(p.ClassType)
	if err != nil {
		return nil, fmt.Errorf("spawning %q at %s: %w", p.ClassType, p.Location, err)
	}

	e.templateID = p.TemplateID
	if p.Name != "" {
		e.name = p.Name
	}
	maps.Copy(e.props, p.Props)
	e.SetLocation(p.Location)
	e.rehome(p.InstanceID)
	e.setActive(true)

	m.entities.Store(e.ObjectID(), e)
	m.liveCount.Add(1)

	slog.Debug("entity spawned",
		"objectID", e.ObjectID(),
		"class", e.ClassType(),
		"instanceID", p.InstanceID,
		"location", p.Location)

	return e, nil
}

// Despawn deactivates the entity and forgets it. Safe to call twice.
func (m *Manager) Despawn(e *Entity) {
	if _, loaded := m.entities.LoadAndDelete(e.ObjectID()); !loaded {
		return
	}
	e.setActive(false)
	m.liveCount.Add(-1)

	slog.Debug("entity despawned",
		"objectID", e.ObjectID(),
		"class", e.ClassType(),
		"instanceID", e.InstanceID())
}

// Entity returns a live entity by object id.
func (m *Manager) Entity(objectID uint32) (*Entity, bool) {
	v, ok := m.entities.Load(objectID)
	if !ok {
		return nil, false
	}
	return v.(*Entity), true
}

// Count returns the number of live entities across all instances.
func (m *Manager) Count() int {
	return int(m.liveCount.Load())
}
