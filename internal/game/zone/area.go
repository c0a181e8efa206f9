package zone

import (
	"fmt"
	"maps"
	"slices"
)

// Shape is the geometric form of an area.
type Shape string

const (
	ShapeCuboid   Shape = "Cuboid"
	ShapeCylinder Shape = "Cylinder"
	ShapeNPoly    Shape = "NPoly"
)

// AreaSpec describes an area before it is placed into an index.
type AreaSpec struct {
	ID          int32
	PartitionID int32
	Name        string
	Kind        string
	Shape       Shape
	MinZ        int32
	MaxZ        int32
	NodesX      []int32
	NodesY      []int32
	Radius      int32 // Cylinder only
	Params      map[string]string
}

// Area is a region-shaped volume belonging to exactly one partition.
// Immutable after construction.
type Area struct {
	id          int32
	partitionID int32
	name        string
	kind        string
	shape       Shape
	minZ        int32
	maxZ        int32
	nodesX      []int32
	nodesY      []int32
	rad         int32
	params      map[string]string

	// bounding box, cached for the grid index
	minX, maxX int32
	minY, maxY int32
}

// NewArea validates spec and builds an Area. Slices and params are copied.
func NewArea(spec AreaSpec) (*Area, error) {
	if len(spec.NodesX) == 0 || len(spec.NodesX) != len(spec.NodesY) {
		return nil, fmt.Errorf("area %d: %w: %d x-nodes, %d y-nodes",
			spec.ID, ErrInvalidGeometry, len(spec.NodesX), len(spec.NodesY))
	}
	if spec.MinZ > spec.MaxZ {
		return nil, fmt.Errorf("area %d: %w: minZ %d > maxZ %d", spec.ID, ErrInvalidGeometry, spec.MinZ, spec.MaxZ)
	}

	shape := spec.Shape
	if shape == "" {
		shape = ShapeNPoly
	}
	switch shape {
	case ShapeCuboid:
		if len(spec.NodesX) < 2 {
			return nil, fmt.Errorf("area %d: %w: cuboid needs 2 nodes", spec.ID, ErrInvalidGeometry)
		}
	case ShapeCylinder:
		if spec.Radius <= 0 {
			return nil, fmt.Errorf("area %d: %w: cylinder radius %d", spec.ID, ErrInvalidGeometry, spec.Radius)
		}
	case ShapeNPoly:
		if len(spec.NodesX) < 3 {
			return nil, fmt.Errorf("area %d: %w: polygon needs 3 nodes", spec.ID, ErrInvalidGeometry)
		}
	default:
		return nil, fmt.Errorf("area %d: %w: unknown shape %q", spec.ID, ErrInvalidGeometry, shape)
	}

	a := &Area{
		id:          spec.ID,
		partitionID: spec.PartitionID,
		name:        spec.Name,
		kind:        spec.Kind,
		shape:       shape,
		minZ:        spec.MinZ,
		maxZ:        spec.MaxZ,
		nodesX:      slices.Clone(spec.NodesX),
		nodesY:      slices.Clone(spec.NodesY),
		rad:         spec.Radius,
		params:      maps.Clone(spec.Params),
	}
	a.computeBounds()
	return a, nil
}

// ID returns the area identifier.
func (a *Area) ID() int32 { return a.id }

// PartitionID returns the partition the area belongs to.
func (a *Area) PartitionID() int32 { return a.partitionID }

// Name returns the area display name.
func (a *Area) Name() string { return a.name }

// Kind returns the area kind (e.g. "SafeArea").
func (a *Area) Kind() string { return a.kind }

// Shape returns the geometric shape.
func (a *Area) Shape() Shape { return a.shape }

// Param returns a single parameter value.
func (a *Area) Param(key string) (string, bool) {
	v, ok := a.params[key]
	return v, ok
}

// Bounds returns the axis-aligned bounding box in the XY plane.
func (a *Area) Bounds() (minX, minY, maxX, maxY int32) {
	return a.minX, a.minY, a.maxX, a.maxY
}

// CloneInto returns an independent copy of the area with a new identity,
// re-homed to partitionID.
func (a *Area) CloneInto(id, partitionID int32) *Area {
	c := *a
	c.id = id
	c.partitionID = partitionID
	c.nodesX = slices.Clone(a.nodesX)
	c.nodesY = slices.Clone(a.nodesY)
	c.params = maps.Clone(a.params)
	return &c
}

// Contains checks if point (x, y, z) is inside the area geometry.
func (a *Area) Contains(x, y, z int32) bool {
	if z < a.minZ || z > a.maxZ {
		return false
	}
	if x < a.minX || x > a.maxX || y < a.minY || y > a.maxY {
		return false
	}

	switch a.shape {
	case ShapeCuboid:
		return true // bbox check above is the whole test
	case ShapeCylinder:
		return a.containsCylinder(x, y)
	default:
		return a.containsNPoly(x, y)
	}
}

func (a *Area) computeBounds() {
	if a.shape == ShapeCylinder {
		a.minX, a.maxX = a.nodesX[0]-a.rad, a.nodesX[0]+a.rad
		a.minY, a.maxY = a.nodesY[0]-a.rad, a.nodesY[0]+a.rad
		return
	}

	a.minX, a.maxX = a.nodesX[0], a.nodesX[0]
	a.minY, a.maxY = a.nodesY[0], a.nodesY[0]
	for i := 1; i < len(a.nodesX); i++ {
		a.minX = min(a.minX, a.nodesX[i])
		a.maxX = max(a.maxX, a.nodesX[i])
		a.minY = min(a.minY, a.nodesY[i])
		a.maxY = max(a.maxY, a.nodesY[i])
	}
}

// containsCylinder проверяет попадание точки в круг (center + radius).
func (a *Area) containsCylinder(x, y int32) bool {
	dx := int64(x - a.nodesX[0])
	dy := int64(y - a.nodesY[0])
	r := int64(a.rad)
	return dx*dx+dy*dy <= r*r
}

// containsNPoly проверяет попадание точки в полигон алгоритмом ray casting.
func (a *Area) containsNPoly(x, y int32) bool {
	n := len(a.nodesX)
	count := 0
	j := n - 1

	for i := range n {
		if (a.nodesY[i] > y) != (a.nodesY[j] > y) {
			slope := int64(x-a.nodesX[i])*int64(a.nodesY[j]-a.nodesY[i]) -
				int64(a.nodesX[j]-a.nodesX[i])*int64(y-a.nodesY[i])

			if slope == 0 {
				// Точка лежит на границе полигона.
				return true
			}
			if (slope < 0) != (int64(a.nodesY[j]-a.nodesY[i]) < 0) {
				count++
			}
		}
		j = i
	}

	return count%2 == 1
}
