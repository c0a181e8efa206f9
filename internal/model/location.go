package model

import "fmt"

// Location представляет координаты в мире инстанса.
// Value type, передаётся по значению (immutable).
type Location struct {
	X       int32  `yaml:"x" toml:"x"`
	Y       int32  `yaml:"y" toml:"y"`
	Z       int32  `yaml:"z" toml:"z"`
	Heading uint16 `yaml:"heading" toml:"heading"` // 0-4095 in client units
}

// NewLocation создаёт Location с указанными координатами.
func NewLocation(x, y, z int32, heading uint16) Location {
	return Location{X: x, Y: y, Z: z, Heading: heading}
}

// WithHeading returns a copy with the heading replaced.
func (l Location) WithHeading(heading uint16) Location {
	l.Heading = heading
	return l
}

// WithCoordinates returns a copy with the coordinates replaced.
func (l Location) WithCoordinates(x, y, z int32) Location {
	l.X = x
	l.Y = y
	l.Z = z
	return l
}

// DistanceSquared возвращает квадрат расстояния до другой точки (без sqrt).
func (l Location) DistanceSquared(other Location) int64 {
	dx := int64(l.X - other.X)
	dy := int64(l.Y - other.Y)
	dz := int64(l.Z - other.Z)
	return dx*dx + dy*dy + dz*dz
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", l.X, l.Y, l.Z, l.Heading)
}
