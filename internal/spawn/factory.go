package spawn

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/udisondev/instancer/internal/world"
)

// Class describes how to build entities of one class type.
type Class struct {
	Type  string
	Kind  Kind
	Name  string            // display name; defaults to Type
	Props map[string]string // initial properties
	// Init runs after construction, before the entity is placed.
	Init func(*Entity)
}

// Factory is the class-type keyed entity constructor registry. Thread-safe.
type Factory struct {
	mu      sync.RWMutex
	ids     *world.IDGenerator
	classes map[string]Class
}

// NewFactory creates an empty factory drawing object ids from ids.
func NewFactory(ids *world.IDGenerator) *Factory {
	return &Factory{
		ids:     ids,
		classes: make(map[string]Class),
	}
}

// Register adds a class. Type names are case-sensitive.
func (f *Factory) Register(c Class) error {
	if strings.TrimSpace(c.Type) == "" {
		return ErrInvalidClass
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.classes[c.Type]; dup {
		return fmt.Errorf("register %q: %w", c.Type, ErrDuplicateClass)
	}
	c.Props = maps.Clone(c.Props)
	f.classes[c.Type] = c
	slog.Debug("entity class registered", "class", c.Type, "kind", c.Kind)
	return nil
}

// Has reports whether classType is registered.
func (f *Factory) Has(classType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.classes[classType]
	return ok
}

// Classes returns the registered class types, sorted.
func (f *Factory) Classes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.classes))
}

// Create builds a new inactive entity of classType with a fresh object id.
func (f *Factory) Create(classType string) (*Entity, error) {
	f.mu.RLock()
	c, ok := f.classes[classType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("create %q: %w", classType, ErrUnknownClass)
	}

	name := c.Name
	if name == "" {
		name = c.Type
	}
	e := NewEntity(f.ids.NextObjectID(), c.Type, c.Kind, name)
	maps.Copy(e.props, c.Props)
	if c.Init != nil {
		c.Init(e)
	}
	return e, nil
}

// RegisterDefaults registers the built-in classes every deployment ships with.
func RegisterDefaults(f *Factory) error {
	defaults := []Class{
		{Type: "Door", Kind: KindStatic, Props: map[string]string{"state": "closed"}},
		{Type: "Merchant", Kind: KindStatic},
		{Type: "Teleporter", Kind: KindStatic},
		{Type: "Banner", Kind: KindStatic},
		{Type: "Guard", Kind: KindMob},
		{Type: "Skeleton", Kind: KindMob},
	}
	for _, c := range defaults {
		if err := f.Register(c); err != nil {
			return err
		}
	}
	return nil
}
