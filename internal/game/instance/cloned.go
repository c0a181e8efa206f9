package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/udisondev/instancer/internal/game/zone"
	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/world"
)

// worldCloner builds an independent copy of a region inside an instance:
// mirrored partitions, re-homed entities and cloned areas, plus the
// translation tables from template ids to clone ids.
type worldCloner struct {
	lc    *Lifecycle
	store region.Store
	ids   *world.IDGenerator

	regionID   int32
	index      *zone.Index
	partitions map[int32]zone.Partition // template partition id → clone partition
	areas      map[int32]int32          // template area id → clone area id
}

var _ Cloner = (*worldCloner)(nil)

func newWorldCloner(lc *Lifecycle, store region.Store, ids *world.IDGenerator) *worldCloner {
	c := &worldCloner{
		lc:         lc,
		store:      store,
		ids:        ids,
		partitions: make(map[int32]zone.Partition),
		areas:      make(map[int32]int32),
	}
	lc.teardown = append(lc.teardown, c.releaseLocked)
	return c
}

// regionSnapshot is everything read from the store for one clone.
type regionSnapshot struct {
	partitions  []region.PartitionDescriptor
	entities    []region.EntityDescriptor
	spawnPoints []region.SpawnPoint
	areas       []region.AreaDescriptor
}

func (c *worldCloner) fetch(ctx context.Context, regionID int32) (regionSnapshot, error) {
	var (
		snap regionSnapshot
		err  error
	)
	if snap.partitions, err = c.store.Partitions(ctx, regionID); err != nil {
		return snap, err
	}
	if snap.entities, err = c.store.StaticEntities(ctx, regionID); err != nil {
		return snap, err
	}
	if snap.spawnPoints, err = c.store.SpawnPoints(ctx, regionID); err != nil {
		return snap, err
	}
	if snap.areas, err = c.store.Areas(ctx, regionID); err != nil {
		return snap, err
	}
	return snap, nil
}

// CloneFrom copies the static content of a region into the instance.
func (c *worldCloner) CloneFrom(ctx context.Context, regionID int32) (CloneReport, error) {
	snap, err := c.fetch(ctx, regionID)
	if err != nil {
		if errors.Is(err, region.ErrRegionNotFound) {
			return CloneReport{}, fmt.Errorf("%w: %w", ErrRegionNotFound, err)
		}
		return CloneReport{}, fmt.Errorf("cloning region %d: %w", regionID, err)
	}

	c.lc.mu.Lock()
	defer c.lc.mu.Unlock()

	if c.lc.closed {
		return CloneReport{}, ErrInstanceNotFound
	}
	if c.index != nil {
		return CloneReport{}, fmt.Errorf("instance %d already cloned from region %d", c.lc.id, c.regionID)
	}

	var report CloneReport
	c.regionID = regionID

	// 1. Партиции: одна новая на каждую партицию шаблона.
	clonePartitions := make([]zone.Partition, 0, len(snap.partitions))
	for _, p := range snap.partitions {
		mirror := p.Partition().Mirror(c.ids.NextPartitionID())
		c.partitions[p.ID] = mirror
		clonePartitions = append(clonePartitions, mirror)
	}
	report.Partitions = len(clonePartitions)

	// 2. Сущности и точки спавна.
	failed := make(map[string]struct{})
	place := func(p spawn.Placement) error {
		p.InstanceID = c.lc.id
		e, err := c.lc.spawner.DoSpawn(ctx, p)
		if err != nil {
			if errors.Is(err, spawn.ErrUnknownClass) {
				report.Skipped++
				failed[p.ClassType] = struct{}{}
				ConstructionFailures.WithLabelValues(p.ClassType).Inc()
				return nil
			}
			return err
		}
		c.lc.addEntityLocked(e)
		report.Entities++
		return nil
	}

	for _, d := range snap.entities {
		err := place(spawn.Placement{
			ClassType:  d.ClassType,
			Location:   d.Location,
			TemplateID: d.TemplateID,
			Name:       d.Name,
			Props:      d.Props,
		})
		if err != nil {
			return report, fmt.Errorf("cloning region %d: %w", regionID, err)
		}
	}
	for _, sp := range snap.spawnPoints {
		err := place(spawn.Placement{
			ClassType:  sp.ClassType,
			Location:   sp.Location,
			TemplateID: sp.TemplateID,
			Props:      map[string]string{"spawn_point": strconv.Itoa(int(sp.ID))},
		})
		if err != nil {
			return report, fmt.Errorf("cloning region %d: %w", regionID, err)
		}
	}

	// 3. Зоны: bind/respawn остаются в постоянном мире.
	cloneAreas := make([]*zone.Area, 0, len(snap.areas))
	for _, d := range snap.areas {
		if !zone.Clonable(d.Kind) {
			report.ExcludedAreas++
			continue
		}
		mirror, ok := c.partitions[d.PartitionID]
		if !ok {
			slog.Warn("area references unknown partition, skipped",
				"instanceID", c.lc.id, "regionID", regionID, "areaID", d.ID, "partition", d.PartitionID)
			continue
		}
		tmpl, err := zone.NewArea(d.Spec())
		if err != nil {
			slog.Warn("invalid area skipped",
				"instanceID", c.lc.id, "regionID", regionID, "areaID", d.ID, "error", err)
			continue
		}
		clone := tmpl.CloneInto(c.ids.NextAreaID(), mirror.ID)
		c.areas[d.ID] = clone.ID()
		cloneAreas = append(cloneAreas, clone)
	}
	report.Areas = len(cloneAreas)

	index, err := zone.NewIndex(clonePartitions, cloneAreas)
	if err != nil {
		return report, fmt.Errorf("cloning region %d: %w", regionID, err)
	}
	c.index = index

	report.FailedClasses = slices.Sorted(maps.Keys(failed))
	if len(report.FailedClasses) > 0 {
		slog.Warn("region cloned with unknown classes",
			"instanceID", c.lc.id,
			"regionID", regionID,
			"skipped", report.Skipped,
			"classes", report.FailedClasses)
	}

	slog.Debug("region cloned",
		"instanceID", c.lc.id,
		"regionID", regionID,
		"partitions", report.Partitions,
		"entities", report.Entities,
		"areas", report.Areas,
		"excludedAreas", report.ExcludedAreas)

	return report, nil
}

// AreasAt returns the clone areas containing loc, ordered by id.
func (c *worldCloner) AreasAt(loc model.Location) ([]int32, error) {
	c.lc.mu.Lock()
	defer c.lc.mu.Unlock()

	if c.lc.closed {
		return nil, ErrInstanceNotFound
	}
	if c.index == nil {
		return nil, nil
	}
	areas, err := c.index.AreasAtPoint(loc.X, loc.Y, loc.Z)
	if err != nil {
		return nil, err
	}
	return areaIDs(areas), nil
}

// AreasInZone resolves zoneID through the remap table and returns the clone
// areas of that partition containing loc. Unknown ids never fall through
// to the template.
func (c *worldCloner) AreasInZone(zoneID int32, loc model.Location) ([]int32, error) {
	c.lc.mu.Lock()
	defer c.lc.mu.Unlock()

	if c.lc.closed {
		return nil, ErrInstanceNotFound
	}
	if c.index == nil {
		return nil, fmt.Errorf("instance %d zone %d: %w", c.lc.id, zoneID, ErrZoneNotFound)
	}

	partitionID := zoneID
	if mirror, ok := c.partitions[zoneID]; ok {
		partitionID = mirror.ID
	} else if _, ok := c.index.Partition(zoneID); !ok {
		return nil, fmt.Errorf("instance %d zone %d: %w", c.lc.id, zoneID, ErrZoneNotFound)
	}

	areas, err := c.index.AreasAt(partitionID, loc.X, loc.Y, loc.Z)
	if err != nil {
		return nil, err
	}
	return areaIDs(areas), nil
}

// CloneAreaID translates a template area id into this clone's area id.
func (c *worldCloner) CloneAreaID(templateAreaID int32) (int32, bool) {
	c.lc.mu.Lock()
	defer c.lc.mu.Unlock()
	id, ok := c.areas[templateAreaID]
	return id, ok
}

// ClonePartition returns the clone partition mirroring a template partition.
func (c *worldCloner) ClonePartition(templatePartitionID int32) (zone.Partition, bool) {
	c.lc.mu.Lock()
	defer c.lc.mu.Unlock()
	p, ok := c.partitions[templatePartitionID]
	return p, ok
}

// releaseLocked drops the spatial index and the remap tables.
func (c *worldCloner) releaseLocked() {
	if c.index != nil {
		c.index.Release()
	}
	clear(c.partitions)
	clear(c.areas)
}

func areaIDs(areas []*zone.Area) []int32 {
	out := make([]int32, 0, len(areas))
	for _, a := range areas {
		out = append(out, a.ID())
	}
	return out
}
