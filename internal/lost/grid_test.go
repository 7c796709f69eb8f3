package lost

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridInfo_Validate(t *testing.T) {
	good := GridInfo{Frame: FrameMap, Width: 10, Height: 10, Resolution: 0.05}
	require.NoError(t, good.Validate())

	tests := []struct {
		name string
		mod  func(*GridInfo)
	}{
		{"zero width", func(g *GridInfo) { g.Width = 0 }},
		{"negative height", func(g *GridInfo) { g.Height = -3 }},
		{"overflow", func(g *GridInfo) { g.Width = MaxGridCells; g.Height = 2 }},
		{"zero resolution", func(g *GridInfo) { g.Resolution = 0 }},
		{"nan resolution", func(g *GridInfo) { g.Resolution = math.NaN() }},
		{"inf origin", func(g *GridInfo) { g.Origin.X = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gi := good
			tt.mod(&gi)
			err := gi.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptGrid))
		})
	}
}

func TestOccupancyGrid_ValidateDataLength(t *testing.T) {
	g := NewOccupancyGrid(GridInfo{Width: 4, Height: 3, Resolution: 1}, CellFree)
	require.NoError(t, g.Validate())

	g.Data = g.Data[:11]
	assert.ErrorIs(t, g.Validate(), ErrCorruptGrid)

	var nilGrid *OccupancyGrid
	assert.ErrorIs(t, nilGrid.Validate(), ErrCorruptGrid)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StateUnknown, Classify(CellUnknown, CellOccupied))
	assert.Equal(t, StateFree, Classify(0, CellOccupied))
	assert.Equal(t, StateFree, Classify(99, CellOccupied))
	assert.Equal(t, StateOccupied, Classify(100, CellOccupied))
	assert.Equal(t, StateOccupied, Classify(65, 65))
	assert.Equal(t, "occupied", StateOccupied.String())
}

func TestOccupancyGrid_SetAtLayouts(t *testing.T) {
	for _, layout := range []Layout{LayoutOriginFirst, LayoutTopFirst} {
		t.Run(layout.String(), func(t *testing.T) {
			g := NewOccupancyGrid(GridInfo{Width: 3, Height: 2, Resolution: 1, Layout: layout}, CellFree)
			g.Set(2, 0, CellOccupied)

			v, ok := g.At(2, 0)
			require.True(t, ok)
			assert.Equal(t, CellOccupied, v)

			idx := 2 + g.Info.StoredRow(0)*3
			assert.Equal(t, CellOccupied, g.Data[idx])
			assert.Equal(t, 1, g.CountOccupied(CellOccupied))

			_, ok = g.At(3, 0)
			assert.False(t, ok)
		})
	}
}

func TestOccupancyGrid_TopFirstStoresOriginRowLast(t *testing.T) {
	g := NewOccupancyGrid(GridInfo{Width: 2, Height: 2, Resolution: 1, Layout: LayoutTopFirst}, CellFree)
	g.Set(0, 0, CellOccupied)
	assert.Equal(t, []int8{0, 0, 100, 0}, g.Data)
}

func TestParseLayout(t *testing.T) {
	for _, layout := range []Layout{LayoutOriginFirst, LayoutTopFirst} {
		got, err := ParseLayout(layout.String())
		require.NoError(t, err)
		assert.Equal(t, layout, got)
	}
	_, err := ParseLayout("bottom-up")
	assert.Error(t, err)
}
