package l3grid

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lostnav/internal/lost"
)

const testYAML = `image: %s
resolution: 0.5
origin: [-1.0, -2.0, 0.0]
negate: %d
occupied_thresh: 0.65
free_thresh: 0.196
`

func writeMap(t *testing.T, dir, imageName string, negate int, data []byte) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, imageName), data, 0o644))
	path := filepath.Join(dir, "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testYAML, imageName, negate)), 0o644))
	return path
}

// 3x2 raster: top row black, white, grey; bottom row white, black, grey.
func binaryPGM() []byte {
	var buf bytes.Buffer
	buf.WriteString("P5\n# CREATOR: map_saver\n3 2\n255\n")
	buf.Write([]byte{0, 255, 128, 255, 0, 128})
	return buf.Bytes()
}

func assertTestLayout(t *testing.T, g *lost.OccupancyGrid) {
	t.Helper()
	require.NoError(t, g.Validate())
	assert.Equal(t, 3, g.Info.Width)
	assert.Equal(t, 2, g.Info.Height)
	assert.Equal(t, lost.LayoutTopFirst, g.Info.Layout)
	assert.Equal(t, lost.Point{X: -1, Y: -2}, g.Info.Origin)

	want := map[[2]int]int8{
		{0, 1}: lost.CellOccupied, {1, 1}: lost.CellFree, {2, 1}: lost.CellUnknown,
		{0, 0}: lost.CellFree, {1, 0}: lost.CellOccupied, {2, 0}: lost.CellUnknown,
	}
	for cr, v := range want {
		got, ok := g.At(cr[0], cr[1])
		require.True(t, ok)
		assert.Equal(t, v, got, "cell %v", cr)
	}
}

func TestLoadMap_BinaryPGM(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, "map.pgm", 0, binaryPGM())

	g, err := LoadMap(path, "/map")
	require.NoError(t, err)
	assert.Equal(t, lost.FrameMap, g.Info.Frame)
	assertTestLayout(t, g)
	assert.False(t, g.Stamp.IsZero())

	state, c, ok := Lookup(g, lost.Point{X: -0.25, Y: -1.75}, lost.CellOccupied)
	require.True(t, ok)
	assert.Equal(t, lost.StateOccupied, state)
	assert.Equal(t, 1, c.Col)
	assert.Equal(t, 0, c.Row)
}

func TestLoadMap_ASCIIPGMRescales(t *testing.T) {
	dir := t.TempDir()
	data := []byte("P2\n3 2\n15\n0 15 8\n15 0 8\n")
	path := writeMap(t, dir, "map.pgm", 0, data)

	g, err := LoadMap(path, lost.FrameMap)
	require.NoError(t, err)
	assertTestLayout(t, g)
}

func TestLoadMap_PNGNegated(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []byte{255, 0, 128, 0, 255, 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	dir := t.TempDir()
	path := writeMap(t, dir, "map.png", 1, buf.Bytes())

	g, err := LoadMap(path, lost.FrameMap)
	require.NoError(t, err)
	assertTestLayout(t, g)
}

func TestGridFromImage_TransparentIsUnknown(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{A: 255})
	img.Set(1, 0, color.NRGBA{A: 0})

	md := &MapMetadata{Resolution: 1, Origin: []float64{0, 0}, OccupiedThresh: 0.65, FreeThresh: 0.2, Mode: ModeTrinary}
	g, err := GridFromImage(img, md, lost.FrameMap)
	require.NoError(t, err)
	assert.Equal(t, []int8{lost.CellOccupied, lost.CellUnknown}, g.Data)
}

func TestGridFromImage_Modes(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	copy(img.Pix, []byte{128, 50, 200})

	scale := &MapMetadata{Resolution: 1, Origin: []float64{0, 0}, OccupiedThresh: 0.9, FreeThresh: 0.1, Mode: ModeScale}
	g, err := GridFromImage(img, scale, lost.FrameMap)
	require.NoError(t, err)
	for _, v := range g.Data {
		assert.True(t, v > 0 && v < 100, "scaled value %d", v)
	}

	raw := &MapMetadata{Resolution: 1, Origin: []float64{0, 0}, Mode: ModeRaw}
	g, err = GridFromImage(img, raw, lost.FrameMap)
	require.NoError(t, err)
	assert.Equal(t, []int8{lost.CellUnknown, 50, lost.CellUnknown}, g.Data)
}

func TestMapMetadata_Validate(t *testing.T) {
	base := func() MapMetadata {
		return MapMetadata{Image: "m.pgm", Resolution: 0.05, Origin: []float64{0, 0, 0}, OccupiedThresh: 0.65, FreeThresh: 0.196, Mode: ModeTrinary}
	}
	tests := []struct {
		name   string
		mutate func(*MapMetadata)
	}{
		{"no image", func(m *MapMetadata) { m.Image = "" }},
		{"zero resolution", func(m *MapMetadata) { m.Resolution = 0 }},
		{"short origin", func(m *MapMetadata) { m.Origin = []float64{1} }},
		{"bad negate", func(m *MapMetadata) { m.Negate = 2 }},
		{"inverted thresholds", func(m *MapMetadata) { m.FreeThresh = 0.8 }},
		{"unknown mode", func(m *MapMetadata) { m.Mode = "fancy" }},
	}
	ok := base()
	require.NoError(t, ok.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := base()
			tt.mutate(&md)
			assert.Error(t, md.Validate())
		})
	}
}

func TestLoadMap_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMap(filepath.Join(dir, "missing.yaml"), lost.FrameMap)
	assert.Error(t, err)

	path := writeMap(t, dir, "map.pgm", 0, []byte("P5\n3 2\n255\n\x00"))
	_, err = LoadMap(path, lost.FrameMap)
	assert.Error(t, err)

	path = writeMap(t, dir, "map.pgm", 0, []byte("P9\n3 2\n255\n"))
	_, err = LoadMap(path, lost.FrameMap)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("image: [unterminated"), 0o644))
	_, err = LoadMap(path, lost.FrameMap)
	assert.Error(t, err)
}

func TestIsMapFile(t *testing.T) {
	assert.True(t, IsMapFile("maps/office.yaml"))
	assert.True(t, IsMapFile("OFFICE.YML"))
	assert.False(t, IsMapFile("office.pgm"))
}

func TestWatchMap_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, "map.pgm", 0, binaryPGM())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grids := make(chan *lost.OccupancyGrid, 8)
	done := make(chan error, 1)
	go func() { done <- WatchMap(ctx, path, lost.FrameMap, func(g *lost.OccupancyGrid) { grids <- g }) }()

	select {
	case g := <-grids:
		assertTestLayout(t, g)
	case <-time.After(5 * time.Second):
		t.Fatal("initial map not delivered")
	}

	// Give the watcher a moment to register before the write.
	time.Sleep(100 * time.Millisecond)
	var buf bytes.Buffer
	buf.WriteString("P5\n3 2\n255\n")
	buf.Write([]byte{0, 0, 0, 0, 0, 0})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map.pgm"), buf.Bytes(), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case g := <-grids:
			if g.CountOccupied(lost.CellOccupied) == 6 {
				cancel()
				select {
				case err := <-done:
					assert.NoError(t, err)
				case <-time.After(5 * time.Second):
					t.Fatal("watcher did not stop")
				}
				return
			}
		case <-deadline:
			t.Fatal("reloaded map not delivered")
		}
	}
}

func solidPGM(v byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("P5\n3 2\n255\n")
	buf.Write(bytes.Repeat([]byte{v}, 6))
	return buf.Bytes()
}

// replaceAtomically writes data next to path and renames it over path.
func replaceAtomically(t *testing.T, path string, data []byte) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func nextGrid(t *testing.T, grids <-chan *lost.OccupancyGrid, occupied int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case g := <-grids:
			if g.CountOccupied(lost.CellOccupied) == occupied {
				return
			}
		case <-deadline:
			t.Fatalf("no map with %d occupied cells delivered", occupied)
		}
	}
}

func TestWatchMap_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, "map.pgm", 0, binaryPGM())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	grids := make(chan *lost.OccupancyGrid, 16)
	go func() { _ = WatchMap(ctx, path, lost.FrameMap, func(g *lost.OccupancyGrid) { grids <- g }) }()
	nextGrid(t, grids, 2)
	time.Sleep(100 * time.Millisecond)

	imagePath := filepath.Join(dir, "map.pgm")
	replaceAtomically(t, imagePath, solidPGM(0))
	nextGrid(t, grids, 6)

	// The second replace lands on a new inode again.
	replaceAtomically(t, imagePath, solidPGM(255))
	nextGrid(t, grids, 0)
}

func TestWatchMap_FollowsImageRename(t *testing.T) {
	dir := t.TempDir()
	path := writeMap(t, dir, "map.pgm", 0, binaryPGM())
	sub := filepath.Join(dir, "v2")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "other.pgm"), solidPGM(255), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	grids := make(chan *lost.OccupancyGrid, 16)
	go func() { _ = WatchMap(ctx, path, lost.FrameMap, func(g *lost.OccupancyGrid) { grids <- g }) }()
	nextGrid(t, grids, 2)
	time.Sleep(100 * time.Millisecond)

	replaceAtomically(t, path, []byte(fmt.Sprintf(testYAML, "v2/other.pgm", 0)))
	nextGrid(t, grids, 0)
	time.Sleep(100 * time.Millisecond)

	// Changes to the new image in its own directory now reload the map.
	replaceAtomically(t, filepath.Join(sub, "other.pgm"), solidPGM(0))
	nextGrid(t, grids, 6)
}
