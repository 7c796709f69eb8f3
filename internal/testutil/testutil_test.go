package testutil

import (
	"net/http"
	"testing"

	"github.com/banshee-data/lostnav/internal/lost"
)

func TestGrid(t *testing.T) {
	g := Grid(t, 0.5,
		"#..",
		".?.",
		"..#",
	)
	if err := g.Validate(); err != nil {
		t.Fatalf("grid invalid: %v", err)
	}
	if g.Info.Width != 3 || g.Info.Height != 3 || g.Info.Resolution != 0.5 {
		t.Fatalf("unexpected info %+v", g.Info)
	}
	cases := []struct {
		col, row int
		want     int8
	}{
		{0, 2, lost.CellOccupied}, // top left
		{2, 0, lost.CellOccupied}, // bottom right, next to the origin
		{1, 1, lost.CellUnknown},
		{0, 0, lost.CellFree},
	}
	for _, c := range cases {
		if v, ok := g.At(c.col, c.row); !ok || v != c.want {
			t.Errorf("At(%d, %d) = %d, %v; want %d", c.col, c.row, v, ok, c.want)
		}
	}
}

func TestScan(t *testing.T) {
	s := Scan("laser", -1, 0.5, 1, 2, 3)
	if s.AngleMax != 0 {
		t.Errorf("AngleMax = %v, want 0", s.AngleMax)
	}
	if len(s.Ranges) != 3 || s.Stamp != Epoch {
		t.Errorf("unexpected scan %+v", s)
	}
	if empty := Scan("laser", 0, 0.1); empty.AngleMax != 0 {
		t.Errorf("empty scan AngleMax = %v", empty.AngleMax)
	}
}

func TestGet(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	AssertStatusCode(t, Get(t, h, "/").Code, http.StatusTeapot)
}
