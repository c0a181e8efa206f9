package zone

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

const gridSize int32 = 4096 // мировые единицы на ячейку сетки

type gridKey struct {
	partition int32
	gx, gy    int32
}

// Index is the spatial index of one region copy: its partitions and the
// areas inside them, bucketed into a coarse grid per partition.
// Thread-safe; after Release every query fails with ErrIndexReleased.
type Index struct {
	mu         sync.RWMutex
	partitions []Partition
	byID       map[int32]Partition
	areas      map[int32]*Area
	grid       map[gridKey][]*Area
	released   bool
}

// NewIndex builds an index over partitions and areas. Every area must
// reference one of the given partitions.
func NewIndex(partitions []Partition, areas []*Area) (*Index, error) {
	ix := &Index{
		partitions: make([]Partition, 0, len(partitions)),
		byID:       make(map[int32]Partition, len(partitions)),
		areas:      make(map[int32]*Area, len(areas)),
		grid:       make(map[gridKey][]*Area),
	}

	for _, p := range partitions {
		if _, dup := ix.byID[p.ID]; dup {
			return nil, fmt.Errorf("build index: partition %d: %w", p.ID, ErrDuplicatePartition)
		}
		ix.byID[p.ID] = p
		ix.partitions = append(ix.partitions, p)
	}

	for _, a := range areas {
		if _, ok := ix.byID[a.partitionID]; !ok {
			return nil, fmt.Errorf("build index: area %d references partition %d: %w",
				a.id, a.partitionID, ErrUnknownPartition)
		}
		if _, dup := ix.areas[a.id]; dup {
			return nil, fmt.Errorf("build index: area %d: %w", a.id, ErrDuplicateArea)
		}
		ix.areas[a.id] = a
		ix.addToGrid(a)
	}

	return ix, nil
}

// addToGrid регистрирует зону во всех ячейках сетки, которые пересекает её bounding box.
func (ix *Index) addToGrid(a *Area) {
	minX, minY, maxX, maxY := a.Bounds()

	for gx := floorDiv(minX, gridSize); gx <= floorDiv(maxX, gridSize); gx++ {
		for gy := floorDiv(minY, gridSize); gy <= floorDiv(maxY, gridSize); gy++ {
			key := gridKey{partition: a.partitionID, gx: gx, gy: gy}
			ix.grid[key] = append(ix.grid[key], a)
		}
	}
}

// Partition returns a partition by id.
func (ix *Index) Partition(id int32) (Partition, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.byID[id]
	return p, ok && !ix.released
}

// Partitions returns the partitions in insertion order.
func (ix *Index) Partitions() []Partition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.released {
		return nil
	}
	return slices.Clone(ix.partitions)
}

// PartitionAt returns the partition covering (x, y).
func (ix *Index) PartitionAt(x, y int32) (Partition, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.released {
		return Partition{}, false
	}
	for _, p := range ix.partitions {
		if p.Contains(x, y) {
			return p, true
		}
	}
	return Partition{}, false
}

// AreasAt returns all areas of a partition containing (x, y, z),
// ordered by area id.
func (ix *Index) AreasAt(partitionID, x, y, z int32) ([]*Area, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.released {
		return nil, ErrIndexReleased
	}
	if _, ok := ix.byID[partitionID]; !ok {
		return nil, fmt.Errorf("areas at partition %d: %w", partitionID, ErrUnknownPartition)
	}

	key := gridKey{partition: partitionID, gx: floorDiv(x, gridSize), gy: floorDiv(y, gridSize)}
	var result []*Area
	for _, a := range ix.grid[key] {
		if a.Contains(x, y, z) {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(l, r *Area) int { return cmp.Compare(l.id, r.id) })
	return result, nil
}

// AreasAtPoint resolves the partition covering (x, y) and returns the areas
// containing the point. A point outside every partition has no areas.
func (ix *Index) AreasAtPoint(x, y, z int32) ([]*Area, error) {
	p, ok := ix.PartitionAt(x, y)
	if !ok {
		if ix.Released() {
			return nil, ErrIndexReleased
		}
		return nil, nil
	}
	return ix.AreasAt(p.ID, x, y, z)
}

// Area returns an area by id.
func (ix *Index) Area(id int32) (*Area, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.released {
		return nil, false
	}
	a, ok := ix.areas[id]
	return a, ok
}

// AreaCount returns the number of indexed areas.
func (ix *Index) AreaCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.areas)
}

// PartitionCount returns the number of partitions.
func (ix *Index) PartitionCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.partitions)
}

// Release drops every partition and area. Idempotent.
func (ix *Index) Release() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.released = true
	ix.partitions = nil
	clear(ix.byID)
	clear(ix.areas)
	clear(ix.grid)
}

// Released reports whether Release was called.
func (ix *Index) Released() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.released
}

// floorDiv выполняет целочисленное деление с округлением к -inf,
// корректно обрабатывая отрицательные координаты.
func floorDiv(a, b int32) int32 {
	d := a / b
	if (a^b) < 0 && d*b != a {
		d--
	}
	return d
}
