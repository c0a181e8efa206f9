package instance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/testutil"
	"github.com/udisondev/instancer/internal/world"
)

func TestManager_EnterLeave(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	ctx := testutil.Context(t)
	occ := testutil.Occupants(2)

	first, err := env.mgr.CreateTemplatedInstance(ctx, testutil.CryptTemplate)
	require.NoError(t, err)
	second, err := env.mgr.CreateClonedInstance(ctx, testutil.KeepRegionID)
	require.NoError(t, err)
	assert.Equal(t, 2, env.mgr.InstanceCount())
	assert.Equal(t, []int32{first, second}, env.mgr.InstanceIDs())

	require.NoError(t, env.mgr.Enter(first, occ[0]))
	require.NoError(t, env.mgr.Enter(second, occ[1]))

	inst, ok := env.mgr.OccupantInstance(occ[0].ObjectID())
	require.True(t, ok)
	assert.Equal(t, first, inst.ID())

	// one instance per occupant
	err = env.mgr.Enter(second, occ[0])
	assert.ErrorIs(t, err, ErrAlreadyInInstance)
	err = env.mgr.Enter(first, occ[0])
	assert.ErrorIs(t, err, ErrAlreadyInInstance)

	require.NoError(t, env.mgr.Leave(occ[0].ObjectID()))
	_, ok = env.mgr.OccupantInstance(occ[0].ObjectID())
	assert.False(t, ok)

	assert.ErrorIs(t, env.mgr.Leave(occ[0].ObjectID()), ErrNotInInstance)

	// now free to move
	require.NoError(t, env.mgr.Enter(second, occ[0]))
	inst, err = env.mgr.Instance(second)
	require.NoError(t, err)
	assert.Equal(t, 2, inst.Population())
}

func TestManager_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	const missing = int32(12345)
	occ := testutil.Occupants(1)[0]

	_, err := env.mgr.Instance(missing)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.mgr.Enter(missing, occ), ErrNotFound)
	assert.ErrorIs(t, env.mgr.SetPermanent(missing, true), ErrNotFound)
	assert.ErrorIs(t, env.mgr.BeginGracePeriod(missing, time.Minute), ErrNotFound)

	_, err = env.mgr.QueryAreasAt(missing, model.Location{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.mgr.QueryAreasInZone(missing, 1, model.Location{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = env.mgr.CurrentOwner(missing)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.mgr.Enter(missing, nil), ErrNilOccupant)

	// no-op
	env.mgr.DestroyInstance(missing)
}

func TestManager_DestroyInstanceIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	occ := testutil.Occupants(2)

	id, err := env.mgr.CreateClonedInstance(testutil.Context(t), testutil.KeepRegionID)
	require.NoError(t, err)
	for _, o := range occ {
		require.NoError(t, env.mgr.Enter(id, o))
	}
	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)

	env.mgr.DestroyInstance(id)
	env.mgr.DestroyInstance(id)

	assert.True(t, inst.Closed())
	assert.Zero(t, env.mgr.InstanceCount())
	assert.Zero(t, env.spawner.Count())
	_, err = env.mgr.Instance(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// occupants were evicted together with the instance
	for _, o := range occ {
		_, ok := env.mgr.OccupantInstance(o.ObjectID())
		assert.False(t, ok)
		assert.ErrorIs(t, env.mgr.Leave(o.ObjectID()), ErrNotInInstance)
	}
	assert.ErrorIs(t, env.mgr.Enter(id, occ[0]), ErrNotFound)
	assert.Zero(t, env.sched.Pending())
}

func TestManager_GracePeriodThenClosure(t *testing.T) {
	env := newTestEnv(t, nil, Config{
		EmptyDelay:     5 * time.Minute,
		GracePeriod:    10 * time.Minute,
		TrackOwnership: true,
	})
	occ := testutil.Occupants(1)[0]

	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate)
	require.NoError(t, err)
	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)
	assert.True(t, inst.GraceActive(), "new instances start in grace")

	// a brief visit during setup does not start the countdown
	require.NoError(t, env.mgr.Enter(id, occ))
	require.NoError(t, env.mgr.Leave(occ.ObjectID()))
	assert.False(t, inst.ClosurePending())

	env.sched.Advance(10 * time.Minute)
	assert.True(t, inst.ClosurePending())
	assert.Equal(t, 1, env.mgr.InstanceCount())

	env.sched.Advance(5 * time.Minute)
	assert.Zero(t, env.mgr.InstanceCount())
	assert.Zero(t, env.spawner.Count())
}

func TestManager_NoGraceArmsClosureAtCreation(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())

	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate,
		WithGracePeriod(0), WithEmptyDelay(time.Minute))
	require.NoError(t, err)

	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, inst.EmptyDelay())
	assert.True(t, inst.ClosurePending(), "nobody entered: closure runs from creation")

	env.sched.Advance(time.Minute)
	_, err = env.mgr.Instance(id)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestManager_ZeroGraceZeroDelay(t *testing.T) {
	env := newTestEnv(t, nil, Config{TrackOwnership: true})

	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Zero(t, env.mgr.InstanceCount(), "instance with no grace and no delay closes at once")
	assert.Zero(t, env.spawner.Count())
}

func TestManager_LeaveAfter(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	occ := testutil.Occupants(1)[0]

	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate, WithGracePeriod(0))
	require.NoError(t, err)
	require.NoError(t, env.mgr.Enter(id, occ))

	require.NoError(t, env.mgr.LeaveAfter(occ.ObjectID(), 0))
	_, err = env.mgr.Instance(id)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestManager_Permanent(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	occ := testutil.Occupants(1)[0]

	id, err := env.mgr.CreateClonedInstance(testutil.Context(t), testutil.KeepRegionID, WithPermanent())
	require.NoError(t, err)
	inst, err := env.mgr.Instance(id)
	require.NoError(t, err)
	assert.True(t, inst.IsPermanent())
	assert.False(t, inst.GraceActive())

	require.NoError(t, env.mgr.Enter(id, occ))
	require.NoError(t, env.mgr.Leave(occ.ObjectID()))
	env.sched.Advance(48 * time.Hour)
	assert.Equal(t, 1, env.mgr.InstanceCount())

	require.NoError(t, env.mgr.SetPermanent(id, false))
	assert.Zero(t, env.mgr.InstanceCount(), "unpinned empty instance is destroyed")
	assert.ErrorIs(t, env.mgr.SetPermanent(id, true), ErrNotFound)
}

func TestManager_CurrentOwner(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	occ := testutil.Occupants(2)

	id, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate)
	require.NoError(t, err)

	_, ok, err := env.mgr.CurrentOwner(id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.mgr.Enter(id, occ[0]))
	require.NoError(t, env.mgr.Enter(id, occ[1]))
	owner, ok, err := env.mgr.CurrentOwner(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, occ[0].ObjectID(), owner.ObjectID())

	untracked, err := env.mgr.CreateTemplatedInstance(testutil.Context(t), testutil.CryptTemplate, WithoutOwnership())
	require.NoError(t, err)
	inst, err := env.mgr.Instance(untracked)
	require.NoError(t, err)
	_, tracked := inst.Ownership()
	assert.False(t, tracked)
	_, ok, err = env.mgr.CurrentOwner(untracked)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Shutdown(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	ctx := testutil.Context(t)
	occ := testutil.Occupants(1)[0]

	for range 3 {
		_, err := env.mgr.CreateClonedInstance(ctx, testutil.KeepRegionID)
		require.NoError(t, err)
	}
	id, err := env.mgr.CreateTemplatedInstance(ctx, testutil.CryptTemplate)
	require.NoError(t, err)
	require.NoError(t, env.mgr.Enter(id, occ))

	env.mgr.Shutdown()

	assert.Zero(t, env.mgr.InstanceCount())
	assert.Zero(t, env.spawner.Count())
	assert.Zero(t, env.sched.Pending())
	_, ok := env.mgr.OccupantInstance(occ.ObjectID())
	assert.False(t, ok)
}

func TestManager_ConcurrentEnterLeave(t *testing.T) {
	env := newTestEnv(t, nil, DefaultConfig())
	ctx := testutil.Context(t)

	ids := make([]int32, 4)
	for i := range ids {
		id, err := env.mgr.CreateTemplatedInstance(ctx, testutil.CryptTemplate)
		require.NoError(t, err)
		ids[i] = id
	}

	occ := testutil.Occupants(32)
	var wg sync.WaitGroup
	for i, o := range occ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 50 {
				target := ids[(i+round)%len(ids)]
				if err := env.mgr.Enter(target, o); err != nil {
					t.Errorf("Enter(%d, %d) error = %v", target, o.ObjectID(), err)
					return
				}
				if err := env.mgr.Leave(o.ObjectID()); err != nil {
					t.Errorf("Leave(%d) error = %v", o.ObjectID(), err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		inst, err := env.mgr.Instance(id)
		require.NoError(t, err)
		assert.Zero(t, inst.Population())
	}
}

// TestManager_RealTimers runs the closure path on the wall clock.
func TestManager_RealTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	spawner, ids := newTestSpawner(t)
	mgr := NewManager(testutil.NewStore(t), spawner, ids, world.RealScheduler{}, Config{
		EmptyDelay:  20 * time.Millisecond,
		GracePeriod: 0,
	})
	defer mgr.Shutdown()

	occ := testutil.Occupants(1)[0]
	id, err := mgr.CreateClonedInstance(testutil.Context(t), testutil.KeepRegionID)
	require.NoError(t, err)
	require.NoError(t, mgr.Enter(id, occ))
	require.NoError(t, mgr.Leave(occ.ObjectID()))

	require.Eventually(t, func() bool {
		return mgr.InstanceCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, spawner.Count())
}
