package instance

import (
	"context"

	"github.com/udisondev/instancer/internal/game/zone"
	"github.com/udisondev/instancer/internal/model"
)

// SpawnLoader populates an instance from a named spawn template.
type SpawnLoader interface {
	LoadTemplate(ctx context.Context, name string) (LoadReport, error)
	// Entrance returns where new occupants are placed, if the template had one.
	Entrance() (model.Location, bool)
}

// Cloner copies a region's static content into the instance and answers
// spatial queries against the copy.
type Cloner interface {
	CloneFrom(ctx context.Context, regionID int32) (CloneReport, error)
	// AreasAt returns ids of clone areas containing loc.
	AreasAt(loc model.Location) ([]int32, error)
	// AreasInZone is AreasAt restricted to one partition. zoneID may be a
	// template partition id (redirected to its mirror) or a clone partition id.
	AreasInZone(zoneID int32, loc model.Location) ([]int32, error)
	CloneAreaID(templateAreaID int32) (int32, bool)
	ClonePartition(templatePartitionID int32) (zone.Partition, bool)
}

// OwnershipTracker keeps the current owner of the instance.
type OwnershipTracker interface {
	Owner() (Owner, bool)
	// RefreshOwnership recomputes the owner, e.g. after party membership changed.
	RefreshOwnership()
	// OwnerChanges counts owner transitions since creation.
	OwnerChanges() int
}

// LoadReport summarises one template load.
type LoadReport struct {
	Spawned       int
	Skipped       int
	FailedClasses []string // distinct, sorted
	HasEntrance   bool
}

// CloneReport summarises one region clone.
type CloneReport struct {
	Partitions    int
	Entities      int
	Skipped       int
	FailedClasses []string // distinct, sorted
	Areas         int
	ExcludedAreas int
}
