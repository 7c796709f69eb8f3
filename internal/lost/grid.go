package lost

import (
	"fmt"
	"math"
	"time"
)

// Occupancy cell values, following nav_msgs/OccupancyGrid: -1 unknown,
// 0..100 occupancy probability in percent.
const (
	CellUnknown  int8 = -1
	CellFree     int8 = 0
	CellOccupied int8 = 100
)

// MaxGridCells bounds width*height. Larger grids are treated as corrupt
// metadata.
const MaxGridCells = 1 << 30

// CellState is the classification of one grid cell.
type CellState int

const (
	StateUnknown CellState = iota
	StateFree
	StateOccupied
)

func (s CellState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateOccupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Classify maps a raw cell value to a state. Values at or above
// occupiedThreshold are occupied, negative values are unknown.
func Classify(v int8, occupiedThreshold int8) CellState {
	switch {
	case v < 0:
		return StateUnknown
	case v >= occupiedThreshold:
		return StateOccupied
	default:
		return StateFree
	}
}

// Layout describes the row order of OccupancyGrid.Data.
type Layout int

const (
	// LayoutOriginFirst stores the row containing the origin first
	// (nav_msgs/OccupancyGrid).
	LayoutOriginFirst Layout = iota
	// LayoutTopFirst stores the row furthest from the origin first, in
	// image raster order.
	LayoutTopFirst
)

func (l Layout) String() string {
	if l == LayoutTopFirst {
		return "top-first"
	}
	return "origin-first"
}

// ParseLayout parses the String form of a layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "top-first":
		return LayoutTopFirst, nil
	case "origin-first":
		return LayoutOriginFirst, nil
	}
	return LayoutTopFirst, fmt.Errorf("unknown grid layout %q", s)
}

// GridInfo is the metadata of an occupancy grid, all in the grid's frame.
// Origin is the metric coordinate of the corner of cell (0, 0).
type GridInfo struct {
	Frame      FrameID `json:"frame"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"`
	Origin     Point   `json:"origin"`
	Layout     Layout  `json:"layout"`
}

// Cells returns width*height.
func (gi GridInfo) Cells() int { return gi.Width * gi.Height }

// Validate checks the metadata for values the indexer cannot work with.
func (gi GridInfo) Validate() error {
	if gi.Width <= 0 || gi.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrCorruptGrid, gi.Width, gi.Height)
	}
	if gi.Width > MaxGridCells/gi.Height {
		return fmt.Errorf("%w: %dx%d cells overflows the %d cell limit", ErrCorruptGrid, gi.Width, gi.Height, MaxGridCells)
	}
	if gi.Resolution <= 0 || math.IsNaN(gi.Resolution) || math.IsInf(gi.Resolution, 0) {
		return fmt.Errorf("%w: resolution %v", ErrCorruptGrid, gi.Resolution)
	}
	if math.IsNaN(gi.Origin.X) || math.IsNaN(gi.Origin.Y) || math.IsInf(gi.Origin.X, 0) || math.IsInf(gi.Origin.Y, 0) {
		return fmt.Errorf("%w: origin %+v", ErrCorruptGrid, gi.Origin)
	}
	return nil
}

// OccupancyGrid is a full map snapshot. It is replaced wholesale by the map
// source and never mutated once handed to the estimator.
type OccupancyGrid struct {
	Info  GridInfo  `json:"info"`
	Stamp time.Time `json:"stamp"`
	Data  []int8    `json:"data"`
}

// NewOccupancyGrid returns a grid with every cell set to fill.
func NewOccupancyGrid(info GridInfo, fill int8) *OccupancyGrid {
	g := &OccupancyGrid{Info: info}
	if n := info.Cells(); n > 0 {
		g.Data = make([]int8, n)
		for i := range g.Data {
			g.Data[i] = fill
		}
	}
	return g
}

// Validate checks metadata and data length.
func (g *OccupancyGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrCorruptGrid)
	}
	if err := g.Info.Validate(); err != nil {
		return err
	}
	if len(g.Data) != g.Info.Cells() {
		return fmt.Errorf("%w: data length %d, want %d", ErrCorruptGrid, len(g.Data), g.Info.Cells())
	}
	return nil
}

// StoredRow converts a grid row (counted from the origin) to the row index
// used in Data.
func (gi GridInfo) StoredRow(row int) int {
	if gi.Layout == LayoutTopFirst {
		return gi.Height - 1 - row
	}
	return row
}

// At returns the raw value of the cell at grid column col and row row
// (counted from the origin). ok is false outside the grid.
func (g *OccupancyGrid) At(col, row int) (v int8, ok bool) {
	if col < 0 || row < 0 || col >= g.Info.Width || row >= g.Info.Height {
		return CellUnknown, false
	}
	return g.Data[col+g.Info.StoredRow(row)*g.Info.Width], true
}

// Set writes the cell at grid column col and row row. Out-of-range writes
// are ignored. Only for building grids before they are published.
func (g *OccupancyGrid) Set(col, row int, v int8) {
	if col < 0 || row < 0 || col >= g.Info.Width || row >= g.Info.Height {
		return
	}
	g.Data[col+g.Info.StoredRow(row)*g.Info.Width] = v
}

// CountOccupied returns the number of cells classified occupied.
func (g *OccupancyGrid) CountOccupied(threshold int8) int {
	n := 0
	for _, v := range g.Data {
		if Classify(v, threshold) == StateOccupied {
			n++
		}
	}
	return n
}
