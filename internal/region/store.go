package region

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Store is the read side of template data. Implementations must return
// copies the caller may keep; templates are never mutated through them.
type Store interface {
	// SpawnDescriptors returns the ordered descriptors of a named template.
	SpawnDescriptors(ctx context.Context, name string) ([]SpawnDescriptor, error)
	// RegionName returns the display name of a region.
	RegionName(ctx context.Context, regionID int32) (string, error)
	Partitions(ctx context.Context, regionID int32) ([]PartitionDescriptor, error)
	StaticEntities(ctx context.Context, regionID int32) ([]EntityDescriptor, error)
	SpawnPoints(ctx context.Context, regionID int32) ([]SpawnPoint, error)
	Areas(ctx context.Context, regionID int32) ([]AreaDescriptor, error)
}

// MemoryStore is an in-memory Store. Thread-safe.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*Template // key: имя шаблона
	regions   map[int32]*Region
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*Template),
		regions:   make(map[int32]*Region),
	}
}

// AddTemplate validates and registers a spawn template.
func (s *MemoryStore) AddTemplate(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.templates[t.Name]; dup {
		return fmt.Errorf("add template %q: %w", t.Name, ErrDuplicate)
	}
	t.Spawns = slices.Clone(t.Spawns)
	s.templates[t.Name] = &t
	return nil
}

// AddRegion validates and registers a region.
func (s *MemoryStore) AddRegion(r Region) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.regions[r.ID]; dup {
		return fmt.Errorf("add region %d: %w", r.ID, ErrDuplicate)
	}
	s.regions[r.ID] = &r
	return nil
}

// TemplateNames returns registered template names, sorted.
func (s *MemoryStore) TemplateNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.templates))
}

// RegionIDs returns registered region ids, sorted.
func (s *MemoryStore) RegionIDs() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.regions))
}

// Template returns a copy of a registered template.
func (s *MemoryStore) Template(name string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return Template{}, false
	}
	out := *t
	out.Spawns = slices.Clone(t.Spawns)
	return out, true
}

// Region returns a copy of a registered region.
func (s *MemoryStore) Region(id int32) (Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[id]
	if !ok {
		return Region{}, false
	}
	out := *r
	out.Partitions = slices.Clone(r.Partitions)
	out.Entities = slices.Clone(r.Entities)
	out.SpawnPoints = slices.Clone(r.SpawnPoints)
	out.Areas = slices.Clone(r.Areas)
	return out, true
}

// SpawnDescriptors implements Store.
func (s *MemoryStore) SpawnDescriptors(ctx context.Context, name string) ([]SpawnDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("spawn descriptors %q: %w", name, ErrTemplateNotFound)
	}
	return slices.Clone(t.Spawns), nil
}

// RegionName implements Store.
func (s *MemoryStore) RegionName(ctx context.Context, regionID int32) (string, error) {
	r, err := s.region(ctx, regionID)
	if err != nil {
		return "", err
	}
	return r.Name, nil
}

// Partitions implements Store.
func (s *MemoryStore) Partitions(ctx context.Context, regionID int32) ([]PartitionDescriptor, error) {
	r, err := s.region(ctx, regionID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.Partitions), nil
}

// StaticEntities implements Store.
func (s *MemoryStore) StaticEntities(ctx context.Context, regionID int32) ([]EntityDescriptor, error) {
	r, err := s.region(ctx, regionID)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(r.Entities)
	for i := range out {
		out[i].Props = maps.Clone(out[i].Props)
	}
	return out, nil
}

// SpawnPoints implements Store.
func (s *MemoryStore) SpawnPoints(ctx context.Context, regionID int32) ([]SpawnPoint, error) {
	r, err := s.region(ctx, regionID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.SpawnPoints), nil
}

// Areas implements Store.
func (s *MemoryStore) Areas(ctx context.Context, regionID int32) ([]AreaDescriptor, error) {
	r, err := s.region(ctx, regionID)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(r.Areas)
	for i := range out {
		out[i].Nodes = slices.Clone(out[i].Nodes)
		out[i].Params = maps.Clone(out[i].Params)
	}
	return out, nil
}

func (s *MemoryStore) region(ctx context.Context, regionID int32) (*Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.regions[regionID]
	if !ok {
		return nil, fmt.Errorf("region %d: %w", regionID, ErrRegionNotFound)
	}
	return r, nil
}
