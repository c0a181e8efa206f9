package zone

// Partition is a rectangular spatial partition of a region. Areas are
// indexed per partition. A partition created for an instance mirrors a
// template partition one-for-one; SkinID records which one.
type Partition struct {
	ID     int32
	SkinID int32 // template partition id; equals ID for template partitions
	Name   string
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// Contains reports whether (x, y) lies in the partition rectangle.
// The lower edges are inclusive, the upper edges exclusive, so adjacent
// partitions never both claim a point.
func (p Partition) Contains(x, y int32) bool {
	return x >= p.X && x < p.X+p.Width && y >= p.Y && y < p.Y+p.Height
}

// Mirror returns a copy of the partition with a new identity that keeps
// the template geometry and points back at it through SkinID.
func (p Partition) Mirror(id int32) Partition {
	m := p
	m.ID = id
	m.SkinID = p.SkinID
	if m.SkinID == 0 {
		m.SkinID = p.ID
	}
	return m
}
