package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/world"
)

// Manager is the registry of live instances and the public entry point
// for creating, entering, leaving, querying and destroying them.
// Thread-safe for concurrent access.
type Manager struct {
	mu         sync.RWMutex
	instances  map[int32]*Instance // instanceID → Instance
	byOccupant map[uint32]int32    // objectID → instanceID

	store   region.Store
	spawner *spawn.Manager
	ids     *world.IDGenerator
	sched   world.Scheduler
	cfg     Config
}

// NewManager creates a new instance manager.
func NewManager(
	store region.Store,
	spawner *spawn.Manager,
	ids *world.IDGenerator,
	sched world.Scheduler,
	cfg Config,
) *Manager {
	return &Manager{
		instances:  make(map[int32]*Instance, 16),
		byOccupant: make(map[uint32]int32, 64),
		store:      store,
		spawner:    spawner,
		ids:        ids,
		sched:      sched,
		cfg:        cfg,
	}
}

func (m *Manager) newInstance(kind Kind, o createOptions) *Instance {
	lc := newLifecycle(m.ids.NextInstanceID(), kind, m.sched, m.spawner)
	lc.emptyDelay = o.emptyDelay

	inst := &Instance{
		Lifecycle: lc,
		createdAt: time.Now(),
	}
	if o.trackOwnership {
		inst.owner = newOwnershipTracker(lc)
	}
	return inst
}

// CreateTemplatedInstance creates an instance populated from a named
// spawn template. Unknown templates fail with ErrTemplateNotFound.
func (m *Manager) CreateTemplatedInstance(ctx context.Context, templateName string, opts ...Option) (int32, error) {
	o := m.cfg.options(opts)
	inst := m.newInstance(KindTemplated, o)
	inst.templateName = templateName
	inst.name = describe(templateName)
	inst.loader = newSpawnLoader(inst.Lifecycle, m.store)

	report, err := inst.loader.LoadTemplate(ctx, templateName)
	if err != nil {
		inst.destroy(ReasonAborted)
		return 0, fmt.Errorf("create instance from template %q: %w", templateName, err)
	}

	m.register(inst, o)

	slog.Info("instance created",
		"instanceID", inst.ID(),
		"kind", KindTemplated,
		"template", templateName,
		"spawned", report.Spawned,
		"skipped", report.Skipped)

	return inst.ID(), nil
}

// CreateClonedInstance creates an instance holding an independent copy of
// a region. Unknown regions fail with ErrRegionNotFound.
func (m *Manager) CreateClonedInstance(ctx context.Context, sourceRegionID int32, opts ...Option) (int32, error) {
	regionName, err := m.store.RegionName(ctx, sourceRegionID)
	if err != nil {
		if errors.Is(err, region.ErrRegionNotFound) {
			err = fmt.Errorf("%w: %w", ErrRegionNotFound, err)
		}
		return 0, fmt.Errorf("create instance from region %d: %w", sourceRegionID, err)
	}

	o := m.cfg.options(opts)
	inst := m.newInstance(KindCloned, o)
	inst.sourceRegionID = sourceRegionID
	inst.name = describe(regionName)
	inst.cloner = newWorldCloner(inst.Lifecycle, m.store, m.ids)

	report, err := inst.cloner.CloneFrom(ctx, sourceRegionID)
	if err != nil {
		inst.destroy(ReasonAborted)
		return 0, fmt.Errorf("create instance from region %d: %w", sourceRegionID, err)
	}

	m.register(inst, o)

	slog.Info("instance created",
		"instanceID", inst.ID(),
		"kind", KindCloned,
		"regionID", sourceRegionID,
		"entities", report.Entities,
		"areas", report.Areas,
		"skipped", report.Skipped)

	return inst.ID(), nil
}

// register publishes a fully loaded instance and starts its lifetime policy.
func (m *Manager) register(inst *Instance, o createOptions) {
	inst.mu.Lock()
	inst.release = m.release
	inst.mu.Unlock()

	m.mu.Lock()
	m.instances[inst.ID()] = inst
	m.mu.Unlock()

	InstancesCreated.WithLabelValues(inst.Kind().String()).Inc()
	InstancesLive.Inc()

	switch {
	case o.permanent:
		_ = inst.SetPermanent(true)
	case o.gracePeriod > 0:
		_ = inst.BeginGracePeriod(o.gracePeriod)
	default:
		// Без grace-периода инстанс, в который никто не зашёл, всё равно соберётся.
		inst.mu.Lock()
		destroyed := inst.armClosureLocked(inst.emptyDelay)
		inst.mu.Unlock()
		if destroyed {
			inst.afterDestroy()
		}
	}
}

// release removes a destroyed instance and its occupant index entries.
// Called by the lifecycle after its lock is released.
func (m *Manager) release(id int32) {
	m.mu.Lock()
	_, ok := m.instances[id]
	delete(m.instances, id)
	for objID, iid := range m.byOccupant {
		if iid == id {
			delete(m.byOccupant, objID)
		}
	}
	m.mu.Unlock()

	if ok {
		InstancesLive.Dec()
	}
}

// DestroyInstance destroys an instance. Unknown ids are ignored.
func (m *Manager) DestroyInstance(id int32) {
	inst, err := m.Instance(id)
	if err != nil {
		slog.Debug("destroy of unknown instance ignored", "instanceID", id)
		return
	}
	inst.Destroy()
}

// SetPermanent pins or unpins an instance.
func (m *Manager) SetPermanent(id int32, permanent bool) error {
	inst, err := m.Instance(id)
	if err != nil {
		return err
	}
	if err := inst.SetPermanent(permanent); err != nil {
		return fmt.Errorf("instance %d: %w", id, err)
	}
	return nil
}

// BeginGracePeriod suspends auto-closure of an instance for d.
func (m *Manager) BeginGracePeriod(id int32, d time.Duration) error {
	inst, err := m.Instance(id)
	if err != nil {
		return err
	}
	if err := inst.BeginGracePeriod(d); err != nil {
		return fmt.Errorf("instance %d: %w", id, err)
	}
	return nil
}

// QueryAreasAt returns the ids of the instance areas containing loc.
// Templated instances have no areas and return an empty result.
func (m *Manager) QueryAreasAt(id int32, loc model.Location) ([]int32, error) {
	inst, err := m.Instance(id)
	if err != nil {
		return nil, err
	}
	c, ok := inst.Cloner()
	if !ok {
		return nil, nil
	}
	areas, err := c.AreasAt(loc)
	if err != nil {
		return nil, fmt.Errorf("instance %d areas at %s: %w", id, loc, err)
	}
	return areas, nil
}

// QueryAreasInZone returns the areas of one zone (template or clone
// partition id) containing loc.
func (m *Manager) QueryAreasInZone(id, zoneID int32, loc model.Location) ([]int32, error) {
	inst, err := m.Instance(id)
	if err != nil {
		return nil, err
	}
	c, ok := inst.Cloner()
	if !ok {
		return nil, fmt.Errorf("instance %d zone %d: %w", id, zoneID, ErrZoneNotFound)
	}
	return c.AreasInZone(zoneID, loc)
}

// CurrentOwner returns the owner of an instance. The bool is false when
// nobody owns it or ownership is not tracked.
func (m *Manager) CurrentOwner(id int32) (Owner, bool, error) {
	inst, err := m.Instance(id)
	if err != nil {
		return Owner{}, false, err
	}
	t, ok := inst.Ownership()
	if !ok {
		return Owner{}, false, nil
	}
	owner, ok := t.Owner()
	return owner, ok, nil
}

// Enter puts an occupant into an instance. An occupant can be inside at
// most one instance.
func (m *Manager) Enter(id int32, o *model.Occupant) error {
	if o == nil {
		return ErrNilOccupant
	}
	objID := o.ObjectID()

	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("enter instance %d: %w", id, ErrInstanceNotFound)
	}
	if cur, busy := m.byOccupant[objID]; busy {
		m.mu.Unlock()
		return fmt.Errorf("enter instance %d: occupant %d is in instance %d: %w", id, objID, cur, ErrAlreadyInInstance)
	}
	// Резервируем место в индексе до входа, чтобы параллельный Enter в другой инстанс не прошёл.
	m.byOccupant[objID] = id
	m.mu.Unlock()

	if err := inst.OnEnter(o); err != nil {
		m.unindex(objID, id)
		return fmt.Errorf("enter instance %d: %w", id, err)
	}
	return nil
}

// Leave takes an occupant out of its instance using the instance's empty delay.
func (m *Manager) Leave(objectID uint32) error {
	inst, err := m.detach(objectID)
	if err != nil {
		return err
	}
	inst.OnLeave(objectID)
	return nil
}

// LeaveAfter is Leave with an explicit closure delay; d <= 0 destroys the
// instance at once if it became empty.
func (m *Manager) LeaveAfter(objectID uint32, d time.Duration) error {
	inst, err := m.detach(objectID)
	if err != nil {
		return err
	}
	inst.OnLeaveAfter(objectID, d)
	return nil
}

func (m *Manager) detach(objectID uint32) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byOccupant[objectID]
	if !ok {
		return nil, fmt.Errorf("leave: occupant %d: %w", objectID, ErrNotInInstance)
	}
	delete(m.byOccupant, objectID)

	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("leave: instance %d: %w", id, ErrInstanceNotFound)
	}
	return inst, nil
}

func (m *Manager) unindex(objectID uint32, id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byOccupant[objectID] == id {
		delete(m.byOccupant, objectID)
	}
}

// Instance returns a live instance by id.
func (m *Manager) Instance(id int32) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %d: %w", id, ErrInstanceNotFound)
	}
	return inst, nil
}

// OccupantInstance returns the instance an occupant is in.
func (m *Manager) OccupantInstance(objectID uint32) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byOccupant[objectID]
	if !ok {
		return nil, false
	}
	inst, ok := m.instances[id]
	return inst, ok
}

// InstanceCount returns the number of live instances.
func (m *Manager) InstanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// InstanceIDs returns the ids of live instances, sorted.
func (m *Manager) InstanceIDs() []int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.instances))
}

// Shutdown destroys every instance.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	all := slices.Collect(maps.Values(m.instances))
	m.mu.RUnlock()

	for _, inst := range all {
		inst.destroy(ReasonShutdown)
	}
	slog.Info("instance manager shut down", "destroyed", len(all))
}
