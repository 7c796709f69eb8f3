package l4consistency

import (
	"errors"
	"sync/atomic"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Stats counts cycle outcomes since the aggregator was created.
type Stats struct {
	Scans                uint64 `json:"scans"`
	Results              uint64 `json:"results"`
	NotReady             uint64 `json:"not_ready"`
	InvalidInput         uint64 `json:"invalid_input"`
	TransformUnavailable uint64 `json:"transform_unavailable"`
	Extrapolation        uint64 `json:"extrapolation"`
	NotComputable        uint64 `json:"not_computable"`
	FrameMismatch        uint64 `json:"frame_mismatch"`
	Halted               uint64 `json:"halted"`
	Cancelled            uint64 `json:"cancelled"`
	MapUpdates           uint64 `json:"map_updates"`
	CorruptMaps          uint64 `json:"corrupt_maps"`
	PoseUpdates          uint64 `json:"pose_updates"`
	SinkErrors           uint64 `json:"sink_errors"`
}

// Skipped returns the number of scans that produced no result.
func (s Stats) Skipped() uint64 {
	return s.NotReady + s.InvalidInput + s.TransformUnavailable + s.Extrapolation +
		s.NotComputable + s.FrameMismatch + s.Halted + s.Cancelled
}

type counters struct {
	scans, results                                atomic.Uint64
	notReady, invalidInput, unavailable, extrapol atomic.Uint64
	notComputable, frameMismatch, halted, cancel  atomic.Uint64
	mapUpdates, corruptMaps, poseUpdates, sinkErr atomic.Uint64
}

// record counts the outcome of one cycle. Errors outside the taxonomy come
// from a cancelled context.
func (c *counters) record(err error) {
	switch {
	case err == nil:
		c.results.Add(1)
	case errors.Is(err, lost.ErrHalted):
		c.halted.Add(1)
	case errors.Is(err, lost.ErrNotReady):
		c.notReady.Add(1)
	case errors.Is(err, lost.ErrInvalidInput):
		c.invalidInput.Add(1)
	case errors.Is(err, lost.ErrTransformExtrapolation):
		c.extrapol.Add(1)
	case errors.Is(err, lost.ErrTransformUnavailable):
		c.unavailable.Add(1)
	case errors.Is(err, lost.ErrNotComputable):
		c.notComputable.Add(1)
	case errors.Is(err, lost.ErrFrameMismatch):
		c.frameMismatch.Add(1)
	default:
		c.cancel.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Scans:                c.scans.Load(),
		Results:              c.results.Load(),
		NotReady:             c.notReady.Load(),
		InvalidInput:         c.invalidInput.Load(),
		TransformUnavailable: c.unavailable.Load(),
		Extrapolation:        c.extrapol.Load(),
		NotComputable:        c.notComputable.Load(),
		FrameMismatch:        c.frameMismatch.Load(),
		Halted:               c.halted.Load(),
		Cancelled:            c.cancel.Load(),
		MapUpdates:           c.mapUpdates.Load(),
		CorruptMaps:          c.corruptMaps.Load(),
		PoseUpdates:          c.poseUpdates.Load(),
		SinkErrors:           c.sinkErr.Load(),
	}
}
