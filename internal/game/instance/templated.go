package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/spawn"
)

// spawnLoader populates an instance from a named template.
type spawnLoader struct {
	lc    *Lifecycle
	store region.Store

	entrance    model.Location
	hasEntrance bool
}

var _ SpawnLoader = (*spawnLoader)(nil)

func newSpawnLoader(lc *Lifecycle, store region.Store) *spawnLoader {
	return &spawnLoader{lc: lc, store: store}
}

// LoadTemplate fetches the descriptors of a template and spawns them into
// the instance. The entrance descriptor only records the entrance location.
// Descriptors of unknown classes are skipped and reported once.
func (l *spawnLoader) LoadTemplate(ctx context.Context, name string) (LoadReport, error) {
	descriptors, err := l.store.SpawnDescriptors(ctx, name)
	if err != nil {
		if errors.Is(err, region.ErrTemplateNotFound) {
			return LoadReport{}, fmt.Errorf("%w: %w", ErrTemplateNotFound, err)
		}
		return LoadReport{}, fmt.Errorf("loading template %q: %w", name, err)
	}

	l.lc.mu.Lock()
	defer l.lc.mu.Unlock()

	if l.lc.closed {
		return LoadReport{}, ErrInstanceNotFound
	}

	var report LoadReport
	failed := make(map[string]struct{})

	for _, d := range descriptors {
		if region.IsEntrance(d.ClassType) {
			l.entrance = d.Location
			l.hasEntrance = true
			report.HasEntrance = true
			continue
		}

		e, err := l.lc.spawner.DoSpawn(ctx, spawn.Placement{
			ClassType:  d.ClassType,
			Location:   d.Location,
			TemplateID: d.SpawnTemplateID,
			InstanceID: l.lc.id,
		})
		if err != nil {
			if errors.Is(err, spawn.ErrUnknownClass) {
				report.Skipped++
				failed[d.ClassType] = struct{}{}
				ConstructionFailures.WithLabelValues(d.ClassType).Inc()
				continue
			}
			// ctx отменён, дальше грузить бессмысленно
			return report, fmt.Errorf("loading template %q: %w", name, err)
		}

		l.lc.addEntityLocked(e)
		report.Spawned++
	}

	report.FailedClasses = slices.Sorted(maps.Keys(failed))
	if len(report.FailedClasses) > 0 {
		slog.Warn("template loaded with unknown classes",
			"instanceID", l.lc.id,
			"template", name,
			"skipped", report.Skipped,
			"classes", report.FailedClasses)
	}

	slog.Debug("template loaded",
		"instanceID", l.lc.id,
		"template", name,
		"spawned", report.Spawned,
		"entrance", report.HasEntrance)

	return report, nil
}

// Entrance returns the entrance location, if the template had one.
func (l *spawnLoader) Entrance() (model.Location, bool) {
	l.lc.mu.Lock()
	defer l.lc.mu.Unlock()
	return l.entrance, l.hasEntrance
}
