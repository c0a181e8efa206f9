package world

import "sync/atomic"

// Identifier ranges (convention):
//
//	1 - 999:                     static template regions (authored data)
//	1000 - 0x00FFFFFF:           instance ids
//	0x01000000 - 0x01FFFFFF:     clone partitions
//	0x02000000 - 0x7FFFFFFF:     clone areas
//	0x20000000 - 0x2FFFFFFF:     entity object ids (uint32 space)
//
// Counters only move forward, so an identifier is never handed out twice
// while the process lives.
const (
	FirstInstanceID  int32  = 1000
	FirstPartitionID int32  = 0x01000000
	FirstAreaID      int32  = 0x02000000
	FirstObjectID    uint32 = 0x20000000
)

// IDGenerator generates unique identifiers for instances and everything
// cloned into them. Thread-safe via atomic increments.
type IDGenerator struct {
	nextInstance  atomic.Int32
	nextPartition atomic.Int32
	nextArea      atomic.Int32
	nextObject    atomic.Uint32
}

// NewIDGenerator creates a generator positioned at the start of every range.
func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{}
	g.nextInstance.Store(FirstInstanceID - 1)
	g.nextPartition.Store(FirstPartitionID - 1)
	g.nextArea.Store(FirstAreaID - 1)
	g.nextObject.Store(FirstObjectID - 1)
	return g
}

// NextInstanceID returns the next unused instance id.
func (g *IDGenerator) NextInstanceID() int32 {
	return g.nextInstance.Add(1)
}

// NextPartitionID returns the next unused clone partition id.
func (g *IDGenerator) NextPartitionID() int32 {
	return g.nextPartition.Add(1)
}

// NextAreaID returns the next unused clone area id.
func (g *IDGenerator) NextAreaID() int32 {
	return g.nextArea.Add(1)
}

// NextObjectID returns the next unused entity object id.
func (g *IDGenerator) NextObjectID() uint32 {
	return g.nextObject.Add(1)
}
