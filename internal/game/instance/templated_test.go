package instance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/testutil"
)

func TestCreateTemplatedInstance(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	ctx := testutil.Context(t)

	id, err := env.mgr.CreateTemplatedInstance(ctx, testutil.CryptTemplate)
	require.NoError(t, err)
	require.NotZero(t, id)

	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)

	assert.Equal(t, KindTemplated, inst.Kind())
	assert.Equal(t, "crypt (Instance)", inst.Name())
	assert.Equal(t, testutil.CryptTemplate, inst.TemplateName())
	assert.False(t, inst.CreatedAt().IsZero())

	loader, ok := inst.SpawnLoader()
	require.True(t, ok)
	entrance, ok := loader.Entrance()
	require.True(t, ok, "template has an entrance")
	assert.Equal(t, model.NewLocation(testutil.EntranceX, testutil.EntranceY, 0, testutil.EntranceHeading), entrance)

	// entrance only records a location; the Guard is the one entity
	entities := inst.Entities()
	require.Len(t, entities, 1)
	guard := entities[0]
	assert.Equal(t, "Guard", guard.ClassType())
	assert.Equal(t, id, guard.InstanceID())
	assert.False(t, guard.Persist(), "instance entities are never persisted")
	assert.True(t, guard.IsActive())
	assert.Equal(t, int32(20101), guard.TemplateID())
	assert.Equal(t, model.NewLocation(150, 250, 0, 0), guard.Location())

	_, isCloned := inst.Cloner()
	assert.False(t, isCloned)

	areas, err := env.mgr.QueryAreasAt(id, guard.Location())
	require.NoError(t, err)
	assert.Empty(t, areas, "templated instances have no areas")
}

func TestCreateTemplatedInstance_UnknownTemplate(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())

	_, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), "no_such_template")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, region.ErrTemplateNotFound)
	assert.Zero(t, env.mgr.InstanceCount(), "failed creation must not register anything")
}

func TestCreateTemplatedInstance_StoreFailure(t *testing.T) {
	env := newTestEnv(t, testutil.FailingStore{Err: testutil.ErrSimulated}, DefaultConfig())

	_, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrSimulated)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, env.mgr.InstanceCount())
	assert.Zero(t, env.spawner.Count())
}

func TestCreateTemplatedInstance_CancelledContext(t *testing.T) {
	store := region.NewMemoryStore()
	require.NoError(t, store.AddTemplate(region.Template{
		Name: "pair",
		Spawns: []region.SpawnDescriptor{
			{ClassType: "Guard"},
			{ClassType: "Skeleton"},
		},
	}))
	env := newTestEnv(t, store, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.mgr.CreateTemplatedInstance(ctx, "pair")
	require.Error(t, err)
	assert.Zero(t, env.mgr.InstanceCount())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.spawner.Count())
}

func TestSpawnLoader_SkipsUnknownClasses(t *testing.T) {
	store := region.NewMemoryStore()
	require.NoError(t, store.AddTemplate(region.Template{
		Name: "mixed",
		Spawns: []region.SpawnDescriptor{
			{ClassType: "Dragon", Location: model.NewLocation(1, 1, 0, 0)},
			{ClassType: "Guard", Location: model.NewLocation(2, 2, 0, 0)},
			{ClassType: "Dragon", Location: model.NewLocation(3, 3, 0, 0)},
			{ClassType: "Banner", Location: model.NewLocation(4, 4, 0, 0)},
			{ClassType: "Lich", Location: model.NewLocation(5, 5, 0, 0)},
		},
	}))

	lc, _, spawner := newTestLifecycle(t)
	loader := newSpawnLoader(lc, store)

	report, err := loader.LoadTemplate(testutil.Context(t), "mixed")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Spawned)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, []string{"Dragon", "Lich"}, report.FailedClasses)
	assert.False(t, report.HasEntrance)
	assert.Equal(t, 2, lc.EntityCount())
	assert.Equal(t, 2, spawner.Count())

	_, ok := loader.Entrance()
	assert.False(t, ok)
	mobs := lc.LiveMobs()
	require.Len(t, mobs, 1)
	assert.Equal(t, "Guard", mobs[0].ClassType())
	assert.Equal(t, spawn.KindMob, mobs[0].Kind())
}

// expiringCtx reports cancellation after a fixed number of Err calls.
type expiringCtx struct {
	context.Context
	left int
}

func (c *expiringCtx) Err() error {
	if c.left <= 0 {
		return context.Canceled
	}
	c.left--
	return nil
}

func TestCreateTemplatedInstance_PartialBuildTornDown(t *testing.T) {
	store := region.NewMemoryStore()
	require.NoError(t, store.AddTemplate(region.Template{
		Name: "pair",
		Spawns: []region.SpawnDescriptor{
			{ClassType: "Guard"},
			{ClassType: "Skeleton"},
		},
	}))
	env := newTestEnv(t, store, DefaultConfig())

	// store lookup and the Guard succeed, the Skeleton sees a cancelled context
	ctx := &expiringCtx{Context: context.Background(), left: 2}

	_, err := env.mgr.CreateTemplatedInstance(ctx, "pair")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.mgr.InstanceCount())
	assert.Zero(t, env.spawner.Count(), "the Guard must be despawned with the aborted instance")
}
