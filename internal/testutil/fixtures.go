package testutil

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/udisondev/instancer/internal/model"
	"github.com/udisondev/instancer/internal/region"
)

// ErrSimulated is a sentinel error for testing error handling paths
var ErrSimulated = errors.New("simulated error for testing")

// Fixture names and ids shared across package tests.
const (
	CryptTemplate   = "crypt"
	KeepRegionID    = int32(10)
	EntranceX       = int32(100)
	EntranceY       = int32(200)
	EntranceHeading = uint16(64)
)

// CryptTemplateDef returns the smallest useful template: one entrance and one Guard.
func CryptTemplateDef() region.Template {
	return region.Template{
		Name: CryptTemplate,
		Spawns: []region.SpawnDescriptor{
			{ClassType: "entrance", Location: model.NewLocation(EntranceX, EntranceY, 0, EntranceHeading)},
			{ClassType: "Guard", Location: model.NewLocation(150, 250, 0, 0), SpawnTemplateID: 20101},
		},
	}
}

// KeepRegion returns a two-partition region with 2 static entities,
// 2 spawn points and 4 areas, one of which (the bind point) is not clonable.
//
//	partition 1: x [0, 10000)      partition 2: x [10000, 20000), both y [0, 20000)
//	area 100 SafeArea    cuboid  (1000,1000)-(3000,3000)   p1
//	area 101 PvPArea     npoly   square 2000..4000          p1, overlaps 100
//	area 102 BindArea    cylinder (2000,2000) r=300         p1, excluded
//	area 103 TriggerArea npoly   square 12000..14000        p2
func KeepRegion() region.Region {
	square := func(x0, y0, size int32) []region.Point {
		return []region.Point{{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}}
	}
	return region.Region{
		ID:   KeepRegionID,
		Name: "Keep of Ashes",
		Partitions: []region.PartitionDescriptor{
			{ID: 1, Name: "courtyard", X: 0, Y: 0, Width: 10000, Height: 20000},
			{ID: 2, Name: "inner keep", X: 10000, Y: 0, Width: 10000, Height: 20000},
		},
		Entities: []region.EntityDescriptor{
			{ClassType: "Door", Name: "Main gate", Location: model.NewLocation(5000, 100, 0, 0), Props: map[string]string{"state": "closed"}},
			{ClassType: "Merchant", Name: "Quartermaster", Location: model.NewLocation(2500, 2500, 0, 512)},
		},
		SpawnPoints: []region.SpawnPoint{
			{ID: 1, ClassType: "Skeleton", Location: model.NewLocation(12500, 12500, 0, 0), TemplateID: 20001, Count: 1},
			{ID: 2, ClassType: "Skeleton", Location: model.NewLocation(13000, 13000, 0, 0), TemplateID: 20001, Count: 1},
		},
		Areas: []region.AreaDescriptor{
			{ID: 100, PartitionID: 1, Name: "sanctuary", Kind: "SafeArea", Shape: "Cuboid", MinZ: -500, MaxZ: 500,
				Nodes: []region.Point{{X: 1000, Y: 1000}, {X: 3000, Y: 3000}}},
			{ID: 101, PartitionID: 1, Name: "arena", Kind: "PvPArea", Shape: "NPoly", MinZ: -500, MaxZ: 500,
				Nodes: square(2000, 2000, 2000)},
			{ID: 102, PartitionID: 1, Name: "bind point", Kind: "BindArea", Shape: "Cylinder", MinZ: -100, MaxZ: 100,
				Nodes: []region.Point{{X: 2000, Y: 2000}}, Radius: 300},
			{ID: 103, PartitionID: 2, Name: "throne room", Kind: "TriggerArea", Shape: "NPoly", MinZ: -500, MaxZ: 500,
				Nodes: square(12000, 12000, 2000), Params: map[string]string{"event": "lord_awakens"}},
		},
	}
}

// NewStore returns a MemoryStore holding CryptTemplateDef and KeepRegion.
func NewStore(t testing.TB) *region.MemoryStore {
	t.Helper()
	s := region.NewMemoryStore()
	if err := s.AddTemplate(CryptTemplateDef()); err != nil {
		t.Fatalf("adding crypt template: %v", err)
	}
	if err := s.AddRegion(KeepRegion()); err != nil {
		t.Fatalf("adding keep region: %v", err)
	}
	return s
}

// FailingStore is a region.Store whose every call fails with Err.
type FailingStore struct {
	Err error
}

var _ region.Store = FailingStore{}

func (f FailingStore) SpawnDescriptors(context.Context, string) ([]region.SpawnDescriptor, error) {
	return nil, f.Err
}

func (f FailingStore) RegionName(context.Context, int32) (string, error) { return "", f.Err }

func (f FailingStore) Partitions(context.Context, int32) ([]region.PartitionDescriptor, error) {
	return nil, f.Err
}

func (f FailingStore) StaticEntities(context.Context, int32) ([]region.EntityDescriptor, error) {
	return nil, f.Err
}

func (f FailingStore) SpawnPoints(context.Context, int32) ([]region.SpawnPoint, error) {
	return nil, f.Err
}

func (f FailingStore) Areas(context.Context, int32) ([]region.AreaDescriptor, error) {
	return nil, f.Err
}

// Occupants creates n occupants with sequential object ids starting at 1
// and names "p1".."pn", all at level 10.
func Occupants(n int) []*model.Occupant {
	out := make([]*model.Occupant, n)
	for i := range n {
		out[i] = model.NewOccupant(uint32(i+1), "p"+strconv.Itoa(i+1), 10)
	}
	return out
}
