package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/instancer/internal/game/zone"
	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/testutil"
	"github.com/udisondev/instancer/internal/world"
)

func createKeep(t *testing.T, env *testEnv, opts ...Option) (int32, *Instance, Cloner) {
	t.Helper()
	id, err := env.mgr.CreateClonedInstance(testutil.Context(t), testutil.KeepRegionID, opts...)
	require.NoError(t, err)
	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)
	c, ok := inst.Cloner()
	require.True(t, ok)
	return id, inst, c
}

func TestCreateClonedInstance_Fidelity(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	id, inst, c := createKeep(t, env)

	assert.Equal(t, KindCloned, inst.Kind())
	assert.Equal(t, "Keep of Ashes (Instance)", inst.Name())
	assert.Equal(t, testutil.KeepRegionID, inst.SourceRegionID())

	// 2 static entities + 2 spawn points
	entities := inst.Entities()
	require.Len(t, entities, 4)
	byClass := make(map[string]int)
	for _, e := range entities {
		byClass[e.ClassType()]++
		assert.Equal(t, id, e.InstanceID(), "%s not re-homed", e.ClassType())
		assert.False(t, e.Persist(), "%s would be persisted", e.ClassType())
		assert.True(t, e.IsActive())
	}
	assert.Equal(t, map[string]int{"Door": 1, "Merchant": 1, "Skeleton": 2}, byClass)
	assert.Len(t, inst.LiveMobs(), 2)

	for _, e := range entities {
		switch e.ClassType() {
		case "Door":
			assert.Equal(t, "Main gate", e.Name())
			state, _ := e.Prop("state")
			assert.Equal(t, "closed", state)
		case "Skeleton":
			_, ok := e.Prop("spawn_point")
			assert.True(t, ok, "spawn point entity carries its spawn point id")
		}
	}

	// partitions are mirrored one-for-one with fresh ids
	for _, tmplID := range []int32{1, 2} {
		p, ok := c.ClonePartition(tmplID)
		require.True(t, ok, "partition %d not mirrored", tmplID)
		assert.NotEqual(t, tmplID, p.ID)
		assert.Equal(t, tmplID, p.SkinID)
	}

	// 4 template areas, the bind point stays in the static world
	for _, tmplID := range []int32{100, 101, 103} {
		cloneID, ok := c.CloneAreaID(tmplID)
		require.True(t, ok, "area %d not cloned", tmplID)
		assert.NotEqual(t, tmplID, cloneID)
	}
	_, ok := c.CloneAreaID(102)
	assert.False(t, ok, "bind area must not be cloned")
}

func TestCreateClonedInstance_Report(t *testing.T) {
	lc, _, spawner := newTestLifecycle(t)
	c := newWorldCloner(lc, testutil.NewStore(t), world.NewIDGenerator())

	report, err := c.CloneFrom(testutil.Context(t), testutil.KeepRegionID)
	require.NoError(t, err)

	assert.Equal(t, CloneReport{
		Partitions:    2,
		Entities:      4,
		Areas:         3,
		ExcludedAreas: 1,
	}, report)
	assert.Equal(t, 4, spawner.Count())

	_, err = c.CloneFrom(testutil.Context(t), testutil.KeepRegionID)
	assert.Error(t, err, "a cloner copies one region only")
}

func TestQueryAreasAt_Cloned(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	id, _, c := createKeep(t, env)

	safe, _ := c.CloneAreaID(100)
	arena, _ := c.CloneAreaID(101)
	throne, _ := c.CloneAreaID(103)

	tests := []struct {
		name string
		loc  model.Location
		want []int32
	}{
		{"overlap of safe area and arena", model.NewLocation(2500, 2500, 0, 0), []int32{safe, arena}},
		{"safe area only", model.NewLocation(1500, 1500, 0, 0), []int32{safe}},
		{"arena only", model.NewLocation(3500, 3500, 0, 0), []int32{arena}},
		{"bind point excluded", model.NewLocation(2100, 2100, 0, 0), []int32{safe, arena}},
		{"second partition", model.NewLocation(13000, 13000, 0, 0), []int32{throne}},
		{"above the cuboid", model.NewLocation(1500, 1500, 900, 0), nil},
		{"nowhere", model.NewLocation(8000, 8000, 0, 0), nil},
		{"outside every partition", model.NewLocation(-50, -50, 0, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.mgr.QueryAreasAt(id, tt.loc)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryAreasInZone(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	id, _, c := createKeep(t, env)

	safe, _ := c.CloneAreaID(100)
	arena, _ := c.CloneAreaID(101)
	mirror, _ := c.ClonePartition(1)
	loc := model.NewLocation(2500, 2500, 0, 0)

	// template id is redirected to the mirror
	got, err := env.mgr.QueryAreasInZone(id, 1, loc)
	require.NoError(t, err)
	assert.Equal(t, []int32{safe, arena}, got)

	// clone id answers directly
	got, err = env.mgr.QueryAreasInZone(id, mirror.ID, loc)
	require.NoError(t, err)
	assert.Equal(t, []int32{safe, arena}, got)

	// other partition has nothing there
	got, err = env.mgr.QueryAreasInZone(id, 2, loc)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = env.mgr.QueryAreasInZone(id, 999, loc)
	assert.ErrorIs(t, err, ErrZoneNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryAreasInZone_Templated(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate)
	require.NoError(t, err)

	_, err = env.mgr.QueryAreasInZone(id, 1, model.Location{})
	assert.ErrorIs(t, err, ErrZoneNotFound)
}

func TestClonedInstance_Independence(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	_, _, first := createKeep(t, env)
	secondID, _, second := createKeep(t, env)

	a, _ := first.CloneAreaID(100)
	b, _ := second.CloneAreaID(100)
	assert.NotEqual(t, a, b, "two clones share an area id")

	pa, _ := first.ClonePartition(1)
	pb, _ := second.ClonePartition(1)
	assert.NotEqual(t, pa.ID, pb.ID)

	// a clone partition of one instance is unknown to another
	_, err := env.mgr.QueryAreasInZone(secondID, pa.ID, model.NewLocation(2500, 2500, 0, 0))
	assert.ErrorIs(t, err, ErrZoneNotFound)
}

func TestClonedInstance_Teardown(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	id, _, c := createKeep(t, env)
	index := c.(*worldCloner).index

	env.mgr.DestroyInstance(id)

	assert.Zero(t, env.spawner.Count(), "entities despawned")
	assert.True(t, index.Released())

	_, err := index.AreasAtPoint(2500, 2500, 0)
	assert.ErrorIs(t, err, zone.ErrIndexReleased)

	_, err = c.AreasAt(model.NewLocation(2500, 2500, 0, 0))
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	_, err = env.mgr.QueryAreasAt(id, model.NewLocation(2500, 2500, 0, 0))
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	_, ok := c.CloneAreaID(100)
	assert.False(t, ok, "remap table cleared")
}

func TestCreateClonedInstance_UnknownRegion(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())

	_, err := env.mgr.CreateClonedInstance(testutil.Context(t), 404)
	assert.ErrorIs(t, err, ErrRegionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, region.ErrRegionNotFound)
	assert.Zero(t, env.mgr.InstanceCount())
}

func TestCreateClonedInstance_SkipsUnknownClasses(t *testing.T) {
	keep := testutil.KeepRegion()
	keep.Entities = append(keep.Entities, region.EntityDescriptor{ClassType: "Altar", Name: "forgotten altar"})

	store := region.NewMemoryStore()
	require.NoError(t, store.AddRegion(keep))
	env := newTestEnv(t, store, DefaultConfig())

	_, inst, _ := createKeep(t, env)
	assert.Equal(t, 4, inst.EntityCount())
}

// TestCloneMatchesTemplate compares every clone containment answer with the
// same query against the template geometry, translated through the remap table.
func TestCloneMatchesTemplate(t *testing.T) {
	keep := testutil.KeepRegion()

	var (
		parts []zone.Partition
		areas []*zone.Area
	)
	for _, p := range keep.Partitions {
		parts = append(parts, p.Partition())
	}
	for _, d := range keep.Areas {
		if !zone.Clonable(d.Kind) {
			continue
		}
		a, err := zone.NewArea(d.Spec())
		require.NoError(t, err)
		areas = append(areas, a)
	}
	tmpl, err := zone.NewIndex(parts, areas)
	require.NoError(t, err)

	env := newTestEnv(t, nil, DefaultConfig())
	id, _, c := createKeep(t, env)

	for x := int32(0); x < 20000; x += 250 {
		for y := int32(0); y < 20000; y += 250 {
			want, err := tmpl.AreasAtPoint(x, y, 0)
			require.NoError(t, err)
			got, err := env.mgr.QueryAreasAt(id, model.NewLocation(x, y, 0, 0))
			require.NoError(t, err)

			translated := make([]int32, 0, len(want))
			for _, a := range want {
				cloneID, ok := c.CloneAreaID(a.ID())
				require.True(t, ok)
				translated = append(translated, cloneID)
			}
			require.ElementsMatch(t, translated, got, "point (%d,%d)", x, y)
		}
	}
}
