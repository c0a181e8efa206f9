// Package region describes the static world templates instances are built
// from: named spawn lists for templated instances and full regions
// (partitions, static entities, spawn points, areas) for cloned ones.
package region

import (
	"fmt"
	"strings"

	"github.com/udisondev/instancer/internal/game/zone"
	"github.com/udisondev/instancer/internal/model"
)

// EntranceClass is the reserved class type marking the entrance of a
// templated instance. Matched case-insensitively.
const EntranceClass = "entrance"

// IsEntrance reports whether classType is the reserved entrance marker.
func IsEntrance(classType string) bool {
	return strings.EqualFold(classType, EntranceClass)
}

// SpawnDescriptor is one line of a templated instance: what to spawn and where.
type SpawnDescriptor struct {
	ClassType       string         `yaml:"class" toml:"class"`
	Location        model.Location `yaml:"location" toml:"location"`
	SpawnTemplateID int32          `yaml:"template_id" toml:"template_id"`
}

// Template is a named, ordered list of spawn descriptors.
type Template struct {
	Name   string            `yaml:"name" toml:"name"`
	Spawns []SpawnDescriptor `yaml:"spawns" toml:"spawns"`
}

// Validate checks the template for empty names and class types.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template without name", ErrInvalidTemplate)
	}
	for i, s := range t.Spawns {
		if strings.TrimSpace(s.ClassType) == "" {
			return fmt.Errorf("%w: template %q spawn #%d has no class", ErrInvalidTemplate, t.Name, i)
		}
	}
	return nil
}

// EntityDescriptor is a static entity placed in a region (door, merchant, banner).
type EntityDescriptor struct {
	ClassType  string            `yaml:"class" toml:"class"`
	Name       string            `yaml:"name" toml:"name"`
	Location   model.Location    `yaml:"location" toml:"location"`
	TemplateID int32             `yaml:"template_id" toml:"template_id"`
	Props      map[string]string `yaml:"props,omitempty" toml:"props"`
}

// SpawnPoint is a mob spawn position in a region.
type SpawnPoint struct {
	ID           int32          `yaml:"id" toml:"id"`
	ClassType    string         `yaml:"class" toml:"class"`
	Location     model.Location `yaml:"location" toml:"location"`
	TemplateID   int32          `yaml:"template_id" toml:"template_id"`
	Count        int32          `yaml:"count" toml:"count"`
	RespawnDelay int32          `yaml:"respawn_delay" toml:"respawn_delay"` // seconds
}

// PartitionDescriptor is a rectangular spatial partition of a region.
type PartitionDescriptor struct {
	ID     int32  `yaml:"id" toml:"id"`
	Name   string `yaml:"name" toml:"name"`
	X      int32  `yaml:"x" toml:"x"`
	Y      int32  `yaml:"y" toml:"y"`
	Width  int32  `yaml:"width" toml:"width"`
	Height int32  `yaml:"height" toml:"height"`
}

// Partition converts the descriptor into a template zone.Partition.
func (p PartitionDescriptor) Partition() zone.Partition {
	return zone.Partition{
		ID:     p.ID,
		SkinID: p.ID,
		Name:   p.Name,
		X:      p.X,
		Y:      p.Y,
		Width:  p.Width,
		Height: p.Height,
	}
}

// Point is a 2D polygon node.
type Point struct {
	X int32 `yaml:"x" toml:"x" json:"x"`
	Y int32 `yaml:"y" toml:"y" json:"y"`
}

// AreaDescriptor is a spatial area of a region.
type AreaDescriptor struct {
	ID          int32             `yaml:"id" toml:"id"`
	PartitionID int32             `yaml:"partition" toml:"partition"`
	Name        string            `yaml:"name" toml:"name"`
	Kind        string            `yaml:"kind" toml:"kind"`
	Shape       string            `yaml:"shape" toml:"shape"`
	MinZ        int32             `yaml:"min_z" toml:"min_z"`
	MaxZ        int32             `yaml:"max_z" toml:"max_z"`
	Nodes       []Point           `yaml:"nodes" toml:"nodes"`
	Radius      int32             `yaml:"radius,omitempty" toml:"radius"`
	Params      map[string]string `yaml:"params,omitempty" toml:"params"`
}

// Spec converts the descriptor into a zone.AreaSpec.
func (a AreaDescriptor) Spec() zone.AreaSpec {
	spec := zone.AreaSpec{
		ID:          a.ID,
		PartitionID: a.PartitionID,
		Name:        a.Name,
		Kind:        a.Kind,
		Shape:       zone.Shape(a.Shape),
		MinZ:        a.MinZ,
		MaxZ:        a.MaxZ,
		NodesX:      make([]int32, len(a.Nodes)),
		NodesY:      make([]int32, len(a.Nodes)),
		Radius:      a.Radius,
		Params:      a.Params,
	}
	for i, n := range a.Nodes {
		spec.NodesX[i] = n.X
		spec.NodesY[i] = n.Y
	}
	return spec
}

// Region is a static world region that can be cloned into instances.
type Region struct {
	ID          int32                 `yaml:"id" toml:"id"`
	Name        string                `yaml:"name" toml:"name"`
	Partitions  []PartitionDescriptor `yaml:"partitions" toml:"partitions"`
	Entities    []EntityDescriptor    `yaml:"entities" toml:"entities"`
	SpawnPoints []SpawnPoint          `yaml:"spawn_points" toml:"spawn_points"`
	Areas       []AreaDescriptor      `yaml:"areas" toml:"areas"`
}

// Validate checks partition uniqueness and that every area has valid
// geometry inside a known partition.
func (r *Region) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: region %q has id %d", ErrInvalidTemplate, r.Name, r.ID)
	}

	parts := make(map[int32]struct{}, len(r.Partitions))
	for _, p := range r.Partitions {
		if _, dup := parts[p.ID]; dup {
			return fmt.Errorf("%w: region %d: duplicate partition %d", ErrInvalidTemplate, r.ID, p.ID)
		}
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%w: region %d: partition %d is empty", ErrInvalidTemplate, r.ID, p.ID)
		}
		parts[p.ID] = struct{}{}
	}

	for _, e := range r.Entities {
		if strings.TrimSpace(e.ClassType) == "" {
			return fmt.Errorf("%w: region %d: entity %q has no class", ErrInvalidTemplate, r.ID, e.Name)
		}
	}
	for _, sp := range r.SpawnPoints {
		if strings.TrimSpace(sp.ClassType) == "" {
			return fmt.Errorf("%w: region %d: spawn point %d has no class", ErrInvalidTemplate, r.ID, sp.ID)
		}
	}

	for _, a := range r.Areas {
		if _, ok := parts[a.PartitionID]; !ok {
			return fmt.Errorf("%w: region %d: area %d references partition %d",
				ErrInvalidTemplate, r.ID, a.ID, a.PartitionID)
		}
		if _, err := zone.NewArea(a.Spec()); err != nil {
			return fmt.Errorf("%w: region %d: %w", ErrInvalidTemplate, r.ID, err)
		}
	}
	return nil
}
