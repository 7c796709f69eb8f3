package l4consistency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l1scan"
	"github.com/banshee-data/lostnav/internal/lost/l3grid"
	"github.com/banshee-data/lostnav/internal/timeutil"
)

// PointTransformer expresses a point set in another frame.
// *l2frames.Transformer implements it.
type PointTransformer interface {
	TransformPointSet(ctx context.Context, in lost.PointSet, target lost.FrameID) (lost.PointSet, error)
}

// Config holds the aggregator settings.
type Config struct {
	// OccupiedThreshold is the smallest cell value counted as a hit.
	// Zero means lost.CellOccupied.
	OccupiedThreshold int8

	// Clock stamps results. Nil means the real clock.
	Clock timeutil.Clock

	// NewID returns result ids. Nil means random UUIDs.
	NewID func() string
}

// Aggregator computes the lost rate of each scan against the current map.
//
// Map, scan and pose are single-writer snapshot slots: each update replaces
// the whole value and readers always see one complete snapshot. At most one
// computation runs at a time.
type Aggregator struct {
	transformer PointTransformer
	threshold   int8
	clock       timeutil.Clock
	newID       func() string

	grid atomic.Pointer[lost.OccupancyGrid]
	scan atomic.Pointer[lost.ScanSample]
	pose atomic.Pointer[lost.PoseEstimate]
	last atomic.Pointer[lost.Result]

	// haltReason is non-nil while the estimator is halted by a corrupt map.
	haltReason atomic.Pointer[error]

	runMu sync.Mutex

	sinksMu sync.RWMutex
	sinks   []Sink

	stats counters
}

// NewAggregator returns an aggregator that transforms points with t.
func NewAggregator(t PointTransformer, cfg Config) *Aggregator {
	a := &Aggregator{
		transformer: t,
		threshold:   cfg.OccupiedThreshold,
		clock:       cfg.Clock,
		newID:       cfg.NewID,
	}
	if a.threshold <= 0 {
		a.threshold = lost.CellOccupied
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// AddSink registers s to receive every computable result.
func (a *Aggregator) AddSink(s Sink) {
	a.sinksMu.Lock()
	defer a.sinksMu.Unlock()
	a.sinks = append(a.sinks, s)
}

// UpdateMap replaces the map snapshot. A grid with corrupt metadata halts
// the aggregator and returns lost.ErrCorruptGrid; the next valid grid
// resumes processing.
func (a *Aggregator) UpdateMap(g *lost.OccupancyGrid) error {
	if err := g.Validate(); err != nil {
		a.stats.corruptMaps.Add(1)
		a.grid.Store(nil)
		a.haltReason.Store(&err)
		opsf("map rejected, halting until a valid map arrives: %v", err)
		return err
	}
	a.grid.Store(g)
	a.stats.mapUpdates.Add(1)
	if prev := a.haltReason.Swap(nil); prev != nil {
		opsf("valid map received, resuming")
	}
	diagf("map updated: frame=%s %dx%d @ %.3fm layout=%s", g.Info.Frame, g.Info.Width, g.Info.Height, g.Info.Resolution, g.Info.Layout)
	return nil
}

// UpdatePose replaces the pose snapshot. The pose is kept for status
// reporting only.
func (a *Aggregator) UpdatePose(p *lost.PoseEstimate) {
	a.pose.Store(p)
	a.stats.poseUpdates.Add(1)
}

// HandleScan replaces the scan snapshot and runs one cycle on it.
func (a *Aggregator) HandleScan(ctx context.Context, scan *lost.ScanSample) (*lost.Result, error) {
	if scan == nil {
		return nil, fmt.Errorf("%w: nil scan", lost.ErrInvalidInput)
	}
	a.scan.Store(scan)
	return a.Run(ctx)
}

// Run computes a result from the current scan and map snapshots.
//
// On success the result becomes the last-known result and is published to
// every sink. Any error leaves the last-known result untouched. For
// lost.ErrNotComputable the returned result carries the counts with a NaN
// rate.
func (a *Aggregator) Run(ctx context.Context) (*lost.Result, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.stats.scans.Add(1)
	res, err := a.compute(ctx)
	a.stats.record(err)

	switch {
	case err == nil:
		a.last.Store(res)
		tracef("scan %s: hits=%d total=%d oob=%d lost=%.2f%%",
			res.ScanStamp.Format(time.RFC3339Nano), res.OccupiedHits, res.Total, res.OutOfBounds, res.LostRate)
		a.publish(ctx, res)
	case errors.Is(err, lost.ErrNotReady), errors.Is(err, lost.ErrNotComputable):
		diagf("cycle skipped: %v", err)
	default:
		opsf("cycle skipped: %v", err)
	}
	return res, err
}

func (a *Aggregator) compute(ctx context.Context) (*lost.Result, error) {
	if reason := a.haltReason.Load(); reason != nil {
		return nil, fmt.Errorf("%w: %v", lost.ErrHalted, *reason)
	}
	g := a.grid.Load()
	if g == nil {
		return nil, lost.ErrNotReady
	}
	scan := a.scan.Load()
	if scan == nil {
		return nil, fmt.Errorf("%w: no scan received", lost.ErrNotReady)
	}

	pts, err := l1scan.Project(scan)
	if err != nil {
		return nil, err
	}

	res := &lost.Result{
		ScanStamp: scan.Stamp,
		MapStamp:  g.Stamp,
	}

	mapped := lost.PointSet{Frame: g.Info.Frame, Stamp: pts.Stamp}
	if pts.Len() > 0 {
		mapped, err = a.transformer.TransformPointSet(ctx, pts, g.Info.Frame)
		if err != nil {
			return nil, err
		}
		if !mapped.Frame.Equal(g.Info.Frame) {
			return nil, fmt.Errorf("%w: points in %q, map in %q", lost.ErrFrameMismatch, mapped.Frame, g.Info.Frame)
		}
	}
	res.Points = mapped

	for _, p := range mapped.Points {
		state, _, ok := l3grid.Lookup(g, p, a.threshold)
		if !ok {
			res.OutOfBounds++
			continue
		}
		res.Total++
		if state == lost.StateOccupied {
			res.OccupiedHits++
		}
	}

	res.ComputedAt = a.clock.Now()
	rate, ok := lost.LostRateFor(res.OccupiedHits, res.Total)
	res.LostRate = rate
	if !ok {
		return res, fmt.Errorf("%w: none of %d points inside the map", lost.ErrNotComputable, mapped.Len())
	}
	res.ID = a.newID()
	return res, nil
}

func (a *Aggregator) publish(ctx context.Context, res *lost.Result) {
	a.sinksMu.RLock()
	sinks := a.sinks
	a.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, res); err != nil {
			a.stats.sinkErr.Add(1)
			opsf("sink %T failed for result %s: %v", s, res.ID, err)
		}
	}
}

// Last returns the last computable result, or nil.
func (a *Aggregator) Last() *lost.Result { return a.last.Load() }

// Map returns the current map snapshot, or nil.
func (a *Aggregator) Map() *lost.OccupancyGrid { return a.grid.Load() }

// Pose returns the latest pose estimate, or nil.
func (a *Aggregator) Pose() *lost.PoseEstimate { return a.pose.Load() }

// Halted reports whether a corrupt map stopped processing, and why.
func (a *Aggregator) Halted() (bool, error) {
	if reason := a.haltReason.Load(); reason != nil {
		return true, *reason
	}
	return false, nil
}

// Stats returns the cycle counters.
func (a *Aggregator) Stats() Stats { return a.stats.snapshot() }

// Status is a point-in-time view of the aggregator for monitoring.
type Status struct {
	Halted     bool               `json:"halted"`
	HaltReason string             `json:"halt_reason,omitempty"`
	Map        *lost.GridInfo     `json:"map,omitempty"`
	MapStamp   time.Time          `json:"map_stamp,omitempty"`
	Pose       *lost.PoseEstimate `json:"pose,omitempty"`
	ScanStamp  time.Time          `json:"scan_stamp,omitempty"`
	Last       *lost.Result       `json:"last,omitempty"`
	Stats      Stats              `json:"stats"`
}

// Status collects the current snapshots and counters.
func (a *Aggregator) Status() Status {
	st := Status{
		Pose:  a.pose.Load(),
		Last:  a.last.Load(),
		Stats: a.stats.snapshot(),
	}
	if halted, reason := a.Halted(); halted {
		st.Halted = true
		st.HaltReason = reason.Error()
	}
	if g := a.grid.Load(); g != nil {
		info := g.Info
		st.Map = &info
		st.MapStamp = g.Stamp
	}
	if s := a.scan.Load(); s != nil {
		st.ScanStamp = s.Stamp
	}
	return st
}
