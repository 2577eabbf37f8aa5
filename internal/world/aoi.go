package world

import "math"

// AOIGrid implements a cell-based Area of Interest index over connection
// focus positions on the XZ plane. The cell edge equals the observer range,
// so a 3x3 neighbourhood of cells covers every candidate.
// Accessed only from the game loop goroutine, no locks.
type AOIGrid struct {
	cellSize float32
	cells    map[cellKey]map[uint64]struct{} // cellKey → set of connection ids
	where    map[uint64]cellKey
}

type cellKey struct {
	cx int32
	cz int32
}

func NewAOIGrid(cellSize float32) *AOIGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &AOIGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[uint64]struct{}),
		where:    make(map[uint64]cellKey),
	}
}

func (g *AOIGrid) key(pos [3]float32) cellKey {
	return cellKey{
		cx: int32(math.Floor(float64(pos[0] / g.cellSize))),
		cz: int32(math.Floor(float64(pos[2] / g.cellSize))),
	}
}

// Update places (or moves) a connection at pos.
func (g *AOIGrid) Update(connID uint64, pos [3]float32) {
	k := g.key(pos)
	if old, ok := g.where[connID]; ok {
		if old == k {
			return
		}
		g.removeFrom(connID, old)
	}
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[uint64]struct{})
		g.cells[k] = cell
	}
	cell[connID] = struct{}{}
	g.where[connID] = k
}

// Remove takes a connection out of the grid.
func (g *AOIGrid) Remove(connID uint64) {
	if k, ok := g.where[connID]; ok {
		g.removeFrom(connID, k)
		delete(g.where, connID)
	}
}

func (g *AOIGrid) removeFrom(connID uint64, k cellKey) {
	cell := g.cells[k]
	if cell == nil {
		return
	}
	delete(cell, connID)
	if len(cell) == 0 {
		delete(g.cells, k)
	}
}

// Tracked reports whether connID has a position in the grid.
func (g *AOIGrid) Tracked(connID uint64) bool {
	_, ok := g.where[connID]
	return ok
}

// GetNearby returns all connection ids in a 3x3 neighbourhood of cells
// around pos. Caller does fine-grained distance filtering.
func (g *AOIGrid) GetNearby(pos [3]float32) []uint64 {
	c := g.key(pos)
	var result []uint64
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			for id := range g.cells[cellKey{cx: c.cx + dx, cz: c.cz + dz}] {
				result = append(result, id)
			}
		}
	}
	return result
}

// WithinRange reports whether a and b are within r on the XZ plane.
func WithinRange(a, b [3]float32, r float32) bool {
	dx := a[0] - b[0]
	dz := a[2] - b[2]
	return dx*dx+dz*dz <= r*r
}
