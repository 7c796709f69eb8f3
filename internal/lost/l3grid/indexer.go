package l3grid

import (
	"math"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Cell locates one grid cell. Col and Row count from the grid origin; Index
// is the position of the cell in OccupancyGrid.Data for the grid's layout.
type Cell struct {
	Col   int `json:"col"`
	Row   int `json:"row"`
	Index int `json:"index"`
}

// Index maps a map-frame point to its grid cell. ok is false for points
// outside the grid or with non-finite coordinates.
//
// Column and row are bounded independently before the linear index is
// formed, so a point past the right edge cannot alias into the next row.
func Index(info lost.GridInfo, p lost.Point) (c Cell, ok bool) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return Cell{}, false
	}
	if info.Width <= 0 || info.Height <= 0 || info.Resolution <= 0 {
		return Cell{}, false
	}

	fx := math.Floor((p.X - info.Origin.X) / info.Resolution)
	fy := math.Floor((p.Y - info.Origin.Y) / info.Resolution)
	if fx < 0 || fy < 0 || fx >= float64(info.Width) || fy >= float64(info.Height) {
		return Cell{}, false
	}

	c.Col = int(fx)
	c.Row = int(fy)
	c.Index = c.Col + info.StoredRow(c.Row)*info.Width
	if c.Index < 0 || c.Index >= info.Cells() {
		return Cell{}, false
	}
	return c, true
}

// CellCenter returns the map-frame coordinate of the centre of (col, row).
func CellCenter(info lost.GridInfo, col, row int) lost.Point {
	return lost.Point{
		X: info.Origin.X + (float64(col)+0.5)*info.Resolution,
		Y: info.Origin.Y + (float64(row)+0.5)*info.Resolution,
	}
}

// Lookup indexes p in g and classifies the cell it lands on.
func Lookup(g *lost.OccupancyGrid, p lost.Point, occupiedThreshold int8) (lost.CellState, Cell, bool) {
	c, ok := Index(g.Info, p)
	if !ok {
		return lost.StateUnknown, Cell{}, false
	}
	return lost.Classify(g.Data[c.Index], occupiedThreshold), c, true
}
