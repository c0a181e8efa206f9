package model

import (
	"fmt"
	"sync"
)

// MaxPartyMembers is the maximum party size (leader + 8 members).
const MaxPartyMembers = 9

// Party is a group of occupants with a designated leader.
// Thread-safe: all methods acquire internal mutex.
type Party struct {
	mu      sync.RWMutex
	id      int32
	leader  *Occupant
	members []*Occupant // лидер всегда первый элемент
}

// NewParty creates a party with the given leader.
// Leader is automatically added as first member.
func NewParty(id int32, leader *Occupant) *Party {
	p := &Party{
		id:      id,
		leader:  leader,
		members: make([]*Occupant, 0, MaxPartyMembers),
	}
	p.members = append(p.members, leader)
	leader.setParty(p)
	return p
}

// ID returns immutable party ID.
func (p *Party) ID() int32 {
	return p.id
}

// Leader returns current party leader.
func (p *Party) Leader() *Occupant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leader
}

// SetLeader changes party leader and swaps it to index 0.
// Caller must ensure the occupant is already a member.
func (p *Party) SetLeader(o *Occupant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leader = o
	for i, m := range p.members {
		if m.ObjectID() == o.ObjectID() {
			p.members[0], p.members[i] = p.members[i], p.members[0]
			break
		}
	}
}

// Members returns a snapshot copy of party members slice.
func (p *Party) Members() []*Occupant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]*Occupant, len(p.members))
	copy(result, p.members)
	return result
}

// MemberCount returns the number of members in party.
func (p *Party) MemberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// IsMember checks if an occupant with given objectID is in this party.
func (p *Party) IsMember(objectID uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.members {
		if m.ObjectID() == objectID {
			return true
		}
	}
	return false
}

// IsLeader checks if an occupant with given objectID leads the party.
func (p *Party) IsLeader(objectID uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leader != nil && p.leader.ObjectID() == objectID
}

// AddMember adds an occupant to the party.
func (p *Party) AddMember(o *Occupant) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.members) >= MaxPartyMembers {
		return fmt.Errorf("party full (max %d members)", MaxPartyMembers)
	}
	for _, m := range p.members {
		if m.ObjectID() == o.ObjectID() {
			return fmt.Errorf("occupant %s already in party", o.Name())
		}
	}

	p.members = append(p.members, o)
	o.setParty(p)
	return nil
}

// RemoveMember removes an occupant from the party by objectID.
// If the leader leaves, the next member becomes leader.
// Returns true if the party should be disbanded (fewer than 2 members remaining).
func (p *Party) RemoveMember(objectID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, m := range p.members {
		if m.ObjectID() == objectID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	removed := p.members[idx]
	p.members = append(p.members[:idx], p.members[idx+1:]...)
	removed.setParty(nil)

	if p.leader.ObjectID() == objectID {
		p.leader = nil
		if len(p.members) > 0 {
			p.leader = p.members[0]
		}
	}

	return len(p.members) < 2
}

// Disband removes every member from the party.
func (p *Party) Disband() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.members {
		m.setParty(nil)
	}
	p.members = p.members[:0]
	p.leader = nil
}
