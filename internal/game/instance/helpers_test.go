package instance

import (
	"testing"

	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/testutil"
	"github.com/udisondev/instancer/internal/world"
)

func newTestSpawner(t *testing.T) (*spawn.Manager, *world.IDGenerator) {
	t.Helper()
	ids := world.NewIDGenerator()
	f := spawn.NewFactory(ids)
	if err := spawn.RegisterDefaults(f); err != nil {
		t.Fatalf("RegisterDefaults() error = %v", err)
	}
	return spawn.NewManager(f), ids
}

type testEnv struct {
	mgr     *Manager
	sched   *testutil.ManualScheduler
	spawner *spawn.Manager
}

// newTestEnv builds a manager over store driven by a manual clock.
// A nil store means testutil.NewStore.
func newTestEnv(t *testing.T, store region.Store, cfg Config) *testEnv {
	t.Helper()
	if store == nil {
		store = testutil.NewStore(t)
	}
	spawner, ids := newTestSpawner(t)
	sched := testutil.NewManualScheduler()
	mgr := NewManager(store, spawner, ids, sched, cfg)
	t.Cleanup(mgr.Shutdown)
	return &testEnv{mgr: mgr, sched: sched, spawner: spawner}
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *testutil.ManualScheduler, *spawn.Manager) {
	t.Helper()
	spawner, _ := newTestSpawner(t)
	sched := testutil.NewManualScheduler()
	return newLifecycle(1, KindTemplated, sched, spawner), sched, spawner
}
