package monitor

import (
	"math"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l3grid"
)

// Scene is the map geometry and the last transformed scan, in map
// coordinates, as served by /api/points and drawn by the chart and plot
// handlers.
type Scene struct {
	Map      *lost.GridInfo `json:"map,omitempty"`
	Occupied []lost.Point   `json:"occupied"`
	Stride   int            `json:"stride"`
	Hits     []lost.Point   `json:"hits"`
	Misses   []lost.Point   `json:"misses"`
	Result   *lost.Result   `json:"-"`
}

// buildScene collects occupied cell centres (downsampled by stride to stay
// within maxCells) and splits the result points into hits and misses.
func buildScene(g *lost.OccupancyGrid, r *lost.Result, threshold int8, maxCells int) Scene {
	sc := Scene{Stride: 1, Result: r}
	if g != nil && g.Validate() == nil {
		info := g.Info
		sc.Map = &info
		occupied := g.CountOccupied(threshold)
		if maxCells > 0 && occupied > maxCells {
			sc.Stride = int(math.Ceil(float64(occupied) / float64(maxCells)))
		}
		sc.Occupied = make([]lost.Point, 0, occupied/sc.Stride+1)
		seen := 0
		for row := 0; row < info.Height; row++ {
			for col := 0; col < info.Width; col++ {
				v, _ := g.At(col, row)
				if lost.Classify(v, threshold) != lost.StateOccupied {
					continue
				}
				if seen%sc.Stride == 0 {
					sc.Occupied = append(sc.Occupied, l3grid.CellCenter(info, col, row))
				}
				seen++
			}
		}
	}
	if r == nil {
		return sc
	}
	for _, p := range r.Points.Points {
		if g != nil && sc.Map != nil {
			if state, _, ok := l3grid.Lookup(g, p, threshold); ok && state == lost.StateOccupied {
				sc.Hits = append(sc.Hits, p)
				continue
			}
		}
		sc.Misses = append(sc.Misses, p)
	}
	return sc
}

// bounds returns a square extent covering every point in the scene.
func (sc Scene) bounds() (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	grow := func(pts []lost.Point) {
		for _, p := range pts {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	grow(sc.Occupied)
	grow(sc.Hits)
	grow(sc.Misses)
	if math.IsInf(minX, 1) {
		return -1, 1, -1, 1
	}
	side := math.Max(maxX-minX, maxY-minY)*1.05 + 0.5
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	return cx - side/2, cx + side/2, cy - side/2, cy + side/2
}
