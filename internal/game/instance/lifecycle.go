package instance

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/world"
)

// State represents the lifecycle state of an instance.
type State int32

const (
	StateIdle     State = iota // empty, no closure timer (grace, permanent or freshly created)
	StateActive                // population > 0
	StateDraining              // empty, closure timer running
	StateClosed                // terminal
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultEmptyDelay is the default time before an empty instance is destroyed.
const DefaultEmptyDelay = 5 * time.Minute

// DefaultGracePeriod is the minimum lifetime granted to a new instance.
const DefaultGracePeriod = 10 * time.Minute

// timerSlot is one cancellable timer. gen changes on every arm and stop,
// so a callback carrying an old gen knows it is stale.
type timerSlot struct {
	timer world.Timer
	gen   uint64
}

func (s *timerSlot) running() bool { return s.timer != nil }

func (s *timerSlot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Lifecycle is the occupancy and teardown state machine shared by every
// instance kind. Its mutex is the single per-instance lock: capabilities
// (spawn loader, cloner, ownership tracker) take it for their own state
// too, and timer callbacks re-validate under it before acting.
type Lifecycle struct {
	mu sync.Mutex

	id      int32
	kind    Kind
	sched   world.Scheduler
	spawner *spawn.Manager

	occupants        []*model.Occupant // порядок входа
	level            int32
	destroyWhenEmpty bool
	permanent        bool
	emptyDelay       time.Duration
	closure          timerSlot
	grace            timerSlot
	closed           bool

	entities map[uint32]*spawn.Entity

	observers []func(occupants []*model.Occupant) // called under mu
	teardown  []func()                            // called under mu, reverse order
	release   func(id int32)                      // registry removal, called after unlock
}

func newLifecycle(id int32, kind Kind, sched world.Scheduler, spawner *spawn.Manager) *Lifecycle {
	return &Lifecycle{
		id:               id,
		kind:             kind,
		sched:            sched,
		spawner:          spawner,
		occupants:        make([]*model.Occupant, 0, 8),
		destroyWhenEmpty: true,
		emptyDelay:       DefaultEmptyDelay,
		entities:         make(map[uint32]*spawn.Entity, 32),
	}
}

// ID returns the unique instance identifier.
func (lc *Lifecycle) ID() int32 { return lc.id }

// OnEnter adds an occupant and cancels any pending closure.
// Fails with ErrInstanceNotFound once the instance is closed and with
// ErrAlreadyInInstance if the occupant is already inside.
func (lc *Lifecycle) OnEnter(o *model.Occupant) error {
	if o == nil {
		return ErrNilOccupant
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.closed {
		return ErrInstanceNotFound
	}
	if lc.indexOfLocked(o.ObjectID()) >= 0 {
		return ErrAlreadyInInstance
	}

	lc.occupants = append(lc.occupants, o)
	if lc.closure.running() {
		slog.Debug("closure cancelled by enter", "instanceID", lc.id, "objectID", o.ObjectID())
	}
	lc.closure.stop()
	lc.occupancyChangedLocked()
	OccupantsInside.Inc()

	slog.Debug("occupant entered instance",
		"instanceID", lc.id,
		"objectID", o.ObjectID(),
		"population", len(lc.occupants))
	return nil
}

// OnLeave removes an occupant. When the instance becomes empty it starts
// the closure timer with the instance's empty delay.
func (lc *Lifecycle) OnLeave(objectID uint32) {
	lc.mu.Lock()
	d := lc.emptyDelay
	lc.mu.Unlock()
	lc.OnLeaveAfter(objectID, d)
}

// OnLeaveAfter is OnLeave with an explicit closure delay. A non-positive
// delay destroys an empty instance at once. Leaving an instance the
// occupant is not in is logged and ignored.
func (lc *Lifecycle) OnLeaveAfter(objectID uint32, d time.Duration) {
	lc.mu.Lock()
	destroyed := lc.leaveLocked(objectID, d)
	lc.mu.Unlock()

	if destroyed {
		lc.afterDestroy()
	}
}

func (lc *Lifecycle) leaveLocked(objectID uint32, d time.Duration) (destroyed bool) {
	if lc.closed {
		slog.Debug("leave on closed instance ignored", "instanceID", lc.id, "objectID", objectID)
		return false
	}
	idx := lc.indexOfLocked(objectID)
	if idx < 0 {
		slog.Warn("leave without matching enter ignored", "instanceID", lc.id, "objectID", objectID)
		return false
	}

	lc.occupants = slices.Delete(lc.occupants, idx, idx+1)
	lc.occupancyChangedLocked()
	OccupantsInside.Dec()

	slog.Debug("occupant left instance",
		"instanceID", lc.id,
		"objectID", objectID,
		"population", len(lc.occupants))

	if len(lc.occupants) > 0 || !lc.destroyWhenEmpty || lc.permanent {
		return false
	}
	return lc.armClosureLocked(d)
}

// armClosureLocked starts the closure countdown. Returns true if d is not
// positive and the instance was destroyed immediately.
func (lc *Lifecycle) armClosureLocked(d time.Duration) bool {
	lc.closure.stop()
	if d <= 0 {
		lc.destroyLocked(ReasonEmpty)
		return true
	}

	gen := lc.closure.gen
	lc.closure.timer = lc.sched.After(d, func() { lc.onClosureExpired(gen) })
	slog.Debug("closure timer armed", "instanceID", lc.id, "delay", d)
	return false
}

func (lc *Lifecycle) onClosureExpired(gen uint64) {
	lc.mu.Lock()
	if lc.closed || gen != lc.closure.gen || !lc.closure.running() {
		lc.mu.Unlock()
		TimerFires.WithLabelValues("closure", "stale").Inc()
		return
	}
	lc.closure.timer = nil

	// Повторная проверка: кто-то мог зайти или закрепить инстанс.
	if len(lc.occupants) > 0 || lc.permanent || !lc.destroyWhenEmpty {
		lc.mu.Unlock()
		TimerFires.WithLabelValues("closure", "vetoed").Inc()
		return
	}
	lc.destroyLocked(ReasonEmpty)
	lc.mu.Unlock()

	TimerFires.WithLabelValues("closure", "destroyed").Inc()
	lc.afterDestroy()
}

// BeginGracePeriod suspends auto-closure for d. On expiry destroy-when-empty
// is restored and, if the instance is still empty, the closure timer starts.
// Ignored while the instance is permanent.
func (lc *Lifecycle) BeginGracePeriod(d time.Duration) error {
	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return ErrInstanceNotFound
	}
	if lc.permanent {
		lc.mu.Unlock()
		slog.Debug("grace period ignored on permanent instance", "instanceID", lc.id)
		return nil
	}

	lc.destroyWhenEmpty = false
	lc.closure.stop()
	lc.grace.stop()

	var destroyed bool
	if d <= 0 {
		destroyed = lc.endGraceLocked()
	} else {
		gen := lc.grace.gen
		lc.grace.timer = lc.sched.After(d, func() { lc.onGraceExpired(gen) })
		slog.Debug("grace period started", "instanceID", lc.id, "duration", d)
	}
	lc.mu.Unlock()

	if destroyed {
		lc.afterDestroy()
	}
	return nil
}

func (lc *Lifecycle) onGraceExpired(gen uint64) {
	lc.mu.Lock()
	if lc.closed || gen != lc.grace.gen || !lc.grace.running() {
		lc.mu.Unlock()
		TimerFires.WithLabelValues("grace", "stale").Inc()
		return
	}
	lc.grace.timer = nil
	destroyed := lc.endGraceLocked()
	lc.mu.Unlock()

	TimerFires.WithLabelValues("grace", "expired").Inc()
	if destroyed {
		lc.afterDestroy()
	}
}

func (lc *Lifecycle) endGraceLocked() bool {
	lc.destroyWhenEmpty = true
	slog.Debug("grace period over", "instanceID", lc.id, "population", len(lc.occupants))
	if len(lc.occupants) > 0 || lc.permanent {
		return false
	}
	return lc.armClosureLocked(lc.emptyDelay)
}

// SetPermanent pins or unpins the instance. Pinning cancels both timers.
// Unpinning restores destroy-when-empty and destroys an empty instance at once.
func (lc *Lifecycle) SetPermanent(permanent bool) error {
	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return ErrInstanceNotFound
	}

	var destroyed bool
	if permanent {
		lc.permanent = true
		lc.closure.stop()
		lc.grace.stop()
	} else {
		lc.permanent = false
		lc.destroyWhenEmpty = true
		if len(lc.occupants) == 0 {
			lc.destroyLocked(ReasonUnpinned)
			destroyed = true
		}
	}
	slog.Debug("instance permanence changed", "instanceID", lc.id, "permanent", permanent)
	lc.mu.Unlock()

	if destroyed {
		lc.afterDestroy()
	}
	return nil
}

// Destroy tears the instance down. Idempotent. When it returns the
// instance is closed and no longer registered.
func (lc *Lifecycle) Destroy() {
	lc.destroy(ReasonExplicit)
}

func (lc *Lifecycle) destroy(reason string) {
	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return
	}
	lc.destroyLocked(reason)
	lc.mu.Unlock()

	lc.afterDestroy()
}

func (lc *Lifecycle) destroyLocked(reason string) {
	lc.closed = true
	lc.closure.stop()
	lc.grace.stop()

	if n := len(lc.occupants); n > 0 {
		slog.Warn("destroying instance with occupants inside", "instanceID", lc.id, "population", n)
		OccupantsInside.Sub(float64(n))
		lc.occupants = lc.occupants[:0]
		lc.occupancyChangedLocked()
	}

	for i := len(lc.teardown) - 1; i >= 0; i-- {
		lc.teardown[i]()
	}
	lc.teardown = nil

	despawned := len(lc.entities)
	for _, e := range lc.entities {
		lc.spawner.Despawn(e)
	}
	clear(lc.entities)

	InstancesDestroyed.WithLabelValues(lc.kind.String(), reason).Inc()
	slog.Info("instance destroyed",
		"instanceID", lc.id,
		"kind", lc.kind,
		"reason", reason,
		"despawned", despawned)
}

func (lc *Lifecycle) afterDestroy() {
	lc.mu.Lock()
	release := lc.release
	lc.mu.Unlock()
	if release != nil {
		release(lc.id)
	}
}

// occupancyChangedLocked recomputes derived state and notifies observers.
func (lc *Lifecycle) occupancyChangedLocked() {
	lc.level = 0
	if n := len(lc.occupants); n > 0 {
		var sum int64
		for _, o := range lc.occupants {
			sum += int64(o.Level())
		}
		lc.level = int32(sum / int64(n))
	}
	for _, fn := range lc.observers {
		fn(lc.occupants)
	}
}

func (lc *Lifecycle) indexOfLocked(objectID uint32) int {
	return slices.IndexFunc(lc.occupants, func(o *model.Occupant) bool {
		return o.ObjectID() == objectID
	})
}

// addEntityLocked registers an entity spawned into this instance.
func (lc *Lifecycle) addEntityLocked(e *spawn.Entity) {
	lc.entities[e.ObjectID()] = e
}

// SetEmptyDelay configures the delay before destroying an empty instance.
// Affects closure timers started afterwards.
func (lc *Lifecycle) SetEmptyDelay(d time.Duration) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.emptyDelay = d
}

// EmptyDelay returns the delay before destroying an empty instance.
func (lc *Lifecycle) EmptyDelay() time.Duration {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.emptyDelay
}

// Population returns the number of occupants inside.
func (lc *Lifecycle) Population() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.occupants)
}

// Occupants returns the occupants in entry order.
func (lc *Lifecycle) Occupants() []*model.Occupant {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return slices.Clone(lc.occupants)
}

// HasOccupant reports whether the occupant is inside.
func (lc *Lifecycle) HasOccupant(objectID uint32) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.indexOfLocked(objectID) >= 0
}

// Level returns the average level of the occupants (0 when empty).
func (lc *Lifecycle) Level() int32 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.level
}

// State returns the current lifecycle state.
func (lc *Lifecycle) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	switch {
	case lc.closed:
		return StateClosed
	case len(lc.occupants) > 0:
		return StateActive
	case lc.closure.running():
		return StateDraining
	default:
		return StateIdle
	}
}

func (lc *Lifecycle) IsPermanent() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.permanent
}

func (lc *Lifecycle) DestroyWhenEmpty() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.destroyWhenEmpty
}

// GraceActive reports whether a grace period is running.
func (lc *Lifecycle) GraceActive() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.grace.running()
}

// ClosurePending reports whether the closure timer is running.
func (lc *Lifecycle) ClosurePending() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.closure.running()
}

// Closed reports whether the instance has been destroyed.
func (lc *Lifecycle) Closed() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.closed
}

// Entities returns a snapshot of the live entities, ordered by object id.
func (lc *Lifecycle) Entities() []*spawn.Entity {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	out := make([]*spawn.Entity, 0, len(lc.entities))
	for _, e := range lc.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *spawn.Entity) int {
		return cmp.Compare(a.ObjectID(), b.ObjectID())
	})
	return out
}

// EntityCount returns the number of live entities.
func (lc *Lifecycle) EntityCount() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.entities)
}

// LiveMobs returns the active mobs inside the instance.
func (lc *Lifecycle) LiveMobs() []*spawn.Entity {
	all := lc.Entities()
	return slices.DeleteFunc(all, func(e *spawn.Entity) bool {
		return e.Kind() != spawn.KindMob || !e.IsActive()
	})
}
