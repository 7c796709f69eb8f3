package l3grid

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/png"

	_ "github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lostnav/internal/lost"
)

// MaxImageSide bounds the pixel width and height of a map image.
const MaxImageSide = 1 << 15

// maxMetadataBytes bounds the map yaml file.
const maxMetadataBytes = 64 * 1024

// Map interpretation modes, as understood by map_server.
const (
	ModeTrinary = "trinary"
	ModeScale   = "scale"
	ModeRaw     = "raw"
)

// MapMetadata is the yaml half of a map_server map.
type MapMetadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
	Mode           string    `yaml:"mode"`
}

// LoadMapMetadata reads and checks a map yaml file.
func LoadMapMetadata(path string) (*MapMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat map metadata: %w", err)
	}
	if info.Size() > maxMetadataBytes {
		return nil, fmt.Errorf("map metadata too large: %d bytes (max %d)", info.Size(), maxMetadataBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map metadata: %w", err)
	}

	var md MapMetadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse map metadata %s: %w", path, err)
	}
	if md.Mode == "" {
		md.Mode = ModeTrinary
	}
	if err := md.Validate(); err != nil {
		return nil, fmt.Errorf("map metadata %s: %w", path, err)
	}
	if !filepath.IsAbs(md.Image) {
		md.Image = filepath.Join(filepath.Dir(path), md.Image)
	}
	return &md, nil
}

// Validate checks the metadata fields.
func (md *MapMetadata) Validate() error {
	if md.Image == "" {
		return fmt.Errorf("image is required")
	}
	if md.Resolution <= 0 || math.IsNaN(md.Resolution) || math.IsInf(md.Resolution, 0) {
		return fmt.Errorf("resolution must be positive, got %v", md.Resolution)
	}
	if len(md.Origin) < 2 || len(md.Origin) > 3 {
		return fmt.Errorf("origin must be [x, y] or [x, y, yaw], got %v", md.Origin)
	}
	if md.Negate != 0 && md.Negate != 1 {
		return fmt.Errorf("negate must be 0 or 1, got %d", md.Negate)
	}
	switch md.Mode {
	case ModeTrinary, ModeScale, ModeRaw:
	default:
		return fmt.Errorf("unknown mode %q", md.Mode)
	}
	if md.Mode != ModeRaw {
		if md.FreeThresh < 0 || md.OccupiedThresh > 1 || md.FreeThresh >= md.OccupiedThresh {
			return fmt.Errorf("need 0 <= free_thresh < occupied_thresh <= 1, got %v and %v", md.FreeThresh, md.OccupiedThresh)
		}
	}
	return nil
}

// LoadMap reads a map yaml file and its image into an occupancy grid in
// frame. Image rows are kept in raster order, so the grid uses
// LayoutTopFirst. The grid stamp is the image modification time.
func LoadMap(path string, frame lost.FrameID) (*lost.OccupancyGrid, error) {
	g, _, err := loadMap(path, frame)
	return g, err
}

// loadMap is LoadMap that also returns the metadata, whose Image is the
// resolved image path.
func loadMap(path string, frame lost.FrameID) (*lost.OccupancyGrid, *MapMetadata, error) {
	md, err := LoadMapMetadata(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(md.Image)
	if err != nil {
		return nil, md, fmt.Errorf("failed to open map image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, md, fmt.Errorf("failed to read map image header %s: %w", md.Image, err)
	}
	if cfg.Width > MaxImageSide || cfg.Height > MaxImageSide {
		return nil, md, fmt.Errorf("%w: map image %dx%d exceeds %d pixels per side", lost.ErrCorruptGrid, cfg.Width, cfg.Height, MaxImageSide)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, md, err
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, md, fmt.Errorf("failed to decode %s map image %s: %w", format, md.Image, err)
	}

	if len(md.Origin) == 3 && md.Origin[2] != 0 {
		diagf("map %s: ignoring origin yaw %.3f", path, md.Origin[2])
	}

	g, err := GridFromImage(img, md, frame)
	if err != nil {
		return nil, md, err
	}
	if st, err := f.Stat(); err == nil {
		g.Stamp = st.ModTime()
	} else {
		g.Stamp = time.Now()
	}
	opsf("loaded %s map %s: %dx%d @ %.3fm, %d occupied cells", format, md.Image,
		g.Info.Width, g.Info.Height, g.Info.Resolution, g.CountOccupied(lost.CellOccupied))
	return g, md, nil
}

// GridFromImage converts img to cell values using md's thresholds.
func GridFromImage(img image.Image, md *MapMetadata, frame lost.FrameID) (*lost.OccupancyGrid, error) {
	b := img.Bounds()
	info := lost.GridInfo{
		Frame:      frame.Normalize(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		Resolution: md.Resolution,
		Origin:     lost.Point{X: md.Origin[0], Y: md.Origin[1]},
		Layout:     lost.LayoutTopFirst,
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	g := &lost.OccupancyGrid{Info: info, Data: make([]int8, info.Cells())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Data[i] = md.cellValue(img.At(x, y))
			i++
		}
	}
	return g, nil
}

// cellValue follows map_server: the pixel's darkness (or brightness when
// negated) is the occupancy probability. Fully transparent pixels are
// unknown.
func (md *MapMetadata) cellValue(c color.Color) int8 {
	_, _, _, a := c.RGBA()
	if a == 0 {
		return lost.CellUnknown
	}
	v := float64(color.GrayModel.Convert(c).(color.Gray).Y)

	if md.Mode == ModeRaw {
		if v > 100 {
			return lost.CellUnknown
		}
		return int8(v)
	}

	p := (255 - v) / 255
	if md.Negate == 1 {
		p = v / 255
	}
	switch {
	case p > md.OccupiedThresh:
		return lost.CellOccupied
	case p < md.FreeThresh:
		return lost.CellFree
	case md.Mode == ModeScale:
		return int8(1 + 98*(p-md.FreeThresh)/(md.OccupiedThresh-md.FreeThresh))
	default:
		return lost.CellUnknown
	}
}

// IsMapFile reports whether path looks like a map yaml file.
func IsMapFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
