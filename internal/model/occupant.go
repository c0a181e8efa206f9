package model

import "sync/atomic"

// Occupant is a player-controlled character as seen by the instance engine.
// The session layer owns it; instances keep only non-owning references and
// re-check presence before using one.
type Occupant struct {
	objectID uint32
	name     string
	level    atomic.Int32
	party    atomic.Pointer[Party]
}

// NewOccupant creates an occupant outside of any party.
func NewOccupant(objectID uint32, name string, level int32) *Occupant {
	o := &Occupant{objectID: objectID, name: name}
	o.level.Store(level)
	return o
}

// ObjectID returns the world object identifier.
func (o *Occupant) ObjectID() uint32 { return o.objectID }

// Name returns the character name.
func (o *Occupant) Name() string { return o.name }

// Level returns the current character level.
func (o *Occupant) Level() int32 { return o.level.Load() }

// SetLevel updates the character level.
func (o *Occupant) SetLevel(level int32) { o.level.Store(level) }

// Party returns the party the occupant belongs to, or nil.
func (o *Occupant) Party() *Party { return o.party.Load() }

// setParty is called by Party when membership changes.
func (o *Occupant) setParty(p *Party) { o.party.Store(p) }
