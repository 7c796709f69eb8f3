package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l2frames"
)

// DefaultConfigPath is the path to the canonical estimator defaults file.
// This is the single source of truth for all default values.
const DefaultConfigPath = "config/lost.defaults.json"

// LostConfig is the root configuration of the estimator. Every field is
// optional; the Get* methods return defaults for fields left out.
type LostConfig struct {
	MapFrame          *string `json:"map_frame,omitempty"`
	TransformTimeout  *string `json:"transform_timeout,omitempty"` // duration string like "5s"
	TransformCache    *string `json:"transform_cache,omitempty"`   // duration string like "10s"
	LookupLatest      *bool   `json:"lookup_latest,omitempty"`
	OccupiedThreshold *int    `json:"occupied_threshold,omitempty"`
	HistorySize       *int    `json:"history_size,omitempty"`
	MapLayout         *string `json:"map_layout,omitempty"` // row order of feed maps: "top-first" or "origin-first"
	ScanQueue         *int    `json:"scan_queue,omitempty"`

	// StaticTransforms are loaded into the transform buffer at startup,
	// for fixed sensor mounts that are not published on the feed.
	StaticTransforms []StaticTransform `json:"static_transforms,omitempty"`
}

// StaticTransform is a fixed planar parent<-child transform.
type StaticTransform struct {
	Parent string  `json:"parent"`
	Child  string  `json:"child"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Yaw    float64 `json:"yaw"` // radians
}

// Transform converts st to a static transform.
func (st StaticTransform) Transform() lost.Transform {
	t := lost.NewPlanarTransform(lost.FrameID(st.Parent), lost.FrameID(st.Child), st.X, st.Y, st.Yaw)
	t.Translation.Z = st.Z
	t.Static = true
	return t
}

func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyLostConfig returns a LostConfig with all fields set to nil.
func EmptyLostConfig() *LostConfig {
	return &LostConfig{}
}

// LoadLostConfig loads a LostConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadLostConfig(path string) (*LostConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLostConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *LostConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lost/l4consistency/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadLostConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LostConfig) Validate() error {
	if c.MapFrame != nil && lost.FrameID(*c.MapFrame).Normalize() == "" {
		return fmt.Errorf("map_frame must not be empty")
	}
	for name, v := range map[string]*string{
		"transform_timeout": c.TransformTimeout,
		"transform_cache":   c.TransformCache,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	if c.OccupiedThreshold != nil {
		if *c.OccupiedThreshold < 1 || *c.OccupiedThreshold > 100 {
			return fmt.Errorf("occupied_threshold must be between 1 and 100, got %d", *c.OccupiedThreshold)
		}
	}
	if c.HistorySize != nil && *c.HistorySize < 1 {
		return fmt.Errorf("history_size must be positive, got %d", *c.HistorySize)
	}
	if c.MapLayout != nil {
		if _, err := lost.ParseLayout(*c.MapLayout); err != nil {
			return fmt.Errorf("invalid map_layout: %w", err)
		}
	}
	if c.ScanQueue != nil && *c.ScanQueue < 1 {
		return fmt.Errorf("scan_queue must be positive, got %d", *c.ScanQueue)
	}
	for i, st := range c.StaticTransforms {
		if st.Parent == "" || st.Child == "" {
			return fmt.Errorf("static_transforms[%d]: parent and child are required", i)
		}
		if lost.FrameID(st.Parent).Equal(lost.FrameID(st.Child)) {
			return fmt.Errorf("static_transforms[%d]: parent and child are both %q", i, st.Parent)
		}
		for _, v := range []float64{st.X, st.Y, st.Z, st.Yaw} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("static_transforms[%d]: non-finite value", i)
			}
		}
	}
	return nil
}

// GetMapFrame returns the map_frame value or the default.
func (c *LostConfig) GetMapFrame() lost.FrameID {
	if c.MapFrame == nil {
		return lost.FrameMap
	}
	return lost.FrameID(*c.MapFrame).Normalize()
}

// GetTransformTimeout parses and returns the transform_timeout value. Zero
// means lookups do not wait.
func (c *LostConfig) GetTransformTimeout() time.Duration {
	return parseDurationOr(c.TransformTimeout, 5*time.Second)
}

// TransformerConfig returns the lookup settings for l2frames.NewTransformer.
func (c *LostConfig) TransformerConfig() l2frames.TransformerConfig {
	wait := c.GetTransformTimeout()
	if wait == 0 {
		// The transformer reads zero as its default wait.
		wait = -1
	}
	return l2frames.TransformerConfig{WaitTimeout: wait, UseLatest: c.GetLookupLatest()}
}

// GetTransformCache parses and returns the transform_cache value.
func (c *LostConfig) GetTransformCache() time.Duration {
	return parseDurationOr(c.TransformCache, 10*time.Second)
}

// GetLookupLatest returns the lookup_latest value or the default.
func (c *LostConfig) GetLookupLatest() bool {
	if c.LookupLatest == nil {
		return false
	}
	return *c.LookupLatest
}

// GetOccupiedThreshold returns the occupied_threshold value or the default.
func (c *LostConfig) GetOccupiedThreshold() int8 {
	if c.OccupiedThreshold == nil {
		return lost.CellOccupied
	}
	return int8(*c.OccupiedThreshold)
}

// GetHistorySize returns the history_size value or the default.
func (c *LostConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 600
	}
	return *c.HistorySize
}

// GetMapLayout returns the map_layout value or the default, top-first.
func (c *LostConfig) GetMapLayout() lost.Layout {
	if c.MapLayout == nil {
		return lost.LayoutTopFirst
	}
	l, err := lost.ParseLayout(*c.MapLayout)
	if err != nil {
		return lost.LayoutTopFirst
	}
	return l
}

// GetScanQueue returns the scan_queue value or the default.
func (c *LostConfig) GetScanQueue() int {
	if c.ScanQueue == nil {
		return 10
	}
	return *c.ScanQueue
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
