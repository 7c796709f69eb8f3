// Package testutil provides shared test fixtures: ASCII-drawn occupancy
// grids, scans and HTTP helpers.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Epoch is the stamp used by fixtures.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Grid builds an origin-first grid in the map frame from rows drawn top
// row first: '#' occupied, '.' free, '?' unknown. The grid origin is at
// (0, 0) and cells are res metres wide.
func Grid(t testing.TB, res float64, rows ...string) *lost.OccupancyGrid {
	t.Helper()
	if len(rows) == 0 {
		t.Fatal("testutil.Grid: no rows")
	}
	width := len(rows[0])
	g := lost.NewOccupancyGrid(lost.GridInfo{
		Frame:      lost.FrameMap,
		Width:      width,
		Height:     len(rows),
		Resolution: res,
	}, lost.CellFree)
	g.Stamp = Epoch
	for i, line := range rows {
		if len(line) != width {
			t.Fatalf("testutil.Grid: row %d has %d cells, want %d", i, len(line), width)
		}
		row := len(rows) - 1 - i
		for col, c := range line {
			switch c {
			case '#':
				g.Set(col, row, lost.CellOccupied)
			case '?':
				g.Set(col, row, lost.CellUnknown)
			case '.':
			default:
				t.Fatalf("testutil.Grid: unexpected cell %q", c)
			}
		}
	}
	return g
}

// Scan returns a scan in frame with the given ranges, starting at angleMin
// and stepping by inc. RangeMax is zero, which leaves ranges unbounded.
func Scan(frame lost.FrameID, angleMin, inc float64, ranges ...float64) *lost.ScanSample {
	return &lost.ScanSample{
		Frame:          frame,
		Stamp:          Epoch,
		AngleMin:       angleMin,
		AngleMax:       angleMin + inc*float64(max(len(ranges)-1, 0)),
		AngleIncrement: inc,
		RangeMin:       0,
		Ranges:         ranges,
	}
}

// Get serves a GET request for path on h.
func Get(t testing.TB, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
