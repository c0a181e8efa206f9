package instance

import (
	"log/slog"

	"github.com/udisondev/instancer/internal/model"
)

// Owner is the current owner of an instance: an individual, or a party
// anchored to one of its members who is present (the leader when possible).
// Neither pointer keeps anything alive; presence is re-checked on every
// occupancy change.
type Owner struct {
	Occupant *model.Occupant
	Party    *model.Party // nil for an individual owner
}

// IsGroup reports whether a party owns the instance.
func (o Owner) IsGroup() bool { return o.Party != nil }

// ObjectID returns the anchor occupant's object id.
func (o Owner) ObjectID() uint32 {
	if o.Occupant == nil {
		return 0
	}
	return o.Occupant.ObjectID()
}

func (o Owner) same(other Owner) bool {
	return o.Occupant == other.Occupant && o.Party == other.Party
}

// ownershipTracker recomputes the owner on every occupancy change.
// All state is guarded by the lifecycle mutex.
type ownershipTracker struct {
	lc *Lifecycle

	owner    Owner
	hasOwner bool
	changes  int
}

var _ OwnershipTracker = (*ownershipTracker)(nil)

func newOwnershipTracker(lc *Lifecycle) *ownershipTracker {
	t := &ownershipTracker{lc: lc}
	lc.observers = append(lc.observers, t.recomputeLocked)
	return t
}

// Owner returns the current owner.
func (t *ownershipTracker) Owner() (Owner, bool) {
	t.lc.mu.Lock()
	defer t.lc.mu.Unlock()
	return t.owner, t.hasOwner
}

// RefreshOwnership recomputes the owner against the current occupants.
func (t *ownershipTracker) RefreshOwnership() {
	t.lc.mu.Lock()
	defer t.lc.mu.Unlock()
	if t.lc.closed {
		return
	}
	t.recomputeLocked(t.lc.occupants)
}

// OwnerChanges counts owner transitions.
func (t *ownershipTracker) OwnerChanges() int {
	t.lc.mu.Lock()
	defer t.lc.mu.Unlock()
	return t.changes
}

// recomputeLocked applies, over occupants in entry order:
//  1. a party owner with a present member stays, re-anchored;
//  2. an individual owner still present stays;
//  3. otherwise the party of the earliest occupant who has one;
//  4. otherwise the earliest occupant;
//  5. otherwise nobody.
func (t *ownershipTracker) recomputeLocked(occupants []*model.Occupant) {
	next, ok := t.keepCurrent(occupants)
	if !ok {
		next, ok = firstParty(occupants)
	}
	if !ok && len(occupants) > 0 {
		next, ok = Owner{Occupant: occupants[0]}, true
	}

	if ok == t.hasOwner && (!ok || next.same(t.owner)) {
		return
	}

	t.owner, t.hasOwner = next, ok
	t.changes++

	if ok {
		slog.Debug("instance owner changed",
			"instanceID", t.lc.id,
			"objectID", next.ObjectID(),
			"group", next.IsGroup())
	} else {
		t.owner = Owner{}
		slog.Debug("instance owner cleared", "instanceID", t.lc.id)
	}
}

func (t *ownershipTracker) keepCurrent(occupants []*model.Occupant) (Owner, bool) {
	if !t.hasOwner {
		return Owner{}, false
	}
	if t.owner.Party != nil {
		if anchor := anchorOf(t.owner.Party, occupants); anchor != nil {
			return Owner{Occupant: anchor, Party: t.owner.Party}, true
		}
		return Owner{}, false
	}
	for _, o := range occupants {
		if o.ObjectID() == t.owner.ObjectID() {
			return t.owner, true
		}
	}
	return Owner{}, false
}

func firstParty(occupants []*model.Occupant) (Owner, bool) {
	for _, o := range occupants {
		p := o.Party()
		if p == nil {
			continue
		}
		if anchor := anchorOf(p, occupants); anchor != nil {
			return Owner{Occupant: anchor, Party: p}, true
		}
	}
	return Owner{}, false
}

// anchorOf picks the party leader if present, else the earliest present member.
func anchorOf(p *model.Party, occupants []*model.Occupant) *model.Occupant {
	if leader := p.Leader(); leader != nil {
		for _, o := range occupants {
			if o.ObjectID() == leader.ObjectID() {
				return o
			}
		}
	}
	for _, o := range occupants {
		if p.IsMember(o.ObjectID()) {
			return o
		}
	}
	return nil
}
