package l1scan

import (
	"fmt"
	"math"

	"github.com/banshee-data/lostnav/internal/lost"
)

// countTolerance is the allowed difference, in samples, between the number
// of ranges and the count implied by the angle parameters. Drivers disagree
// on whether AngleMax is inclusive, so one sample either way is accepted.
const countTolerance = 1

// Validate checks that the scan's angle parameters describe its ranges.
func Validate(scan *lost.ScanSample) error {
	if scan == nil {
		return fmt.Errorf("%w: nil scan", lost.ErrInvalidInput)
	}
	n := len(scan.Ranges)
	for name, v := range map[string]float64{
		"angle_min":       scan.AngleMin,
		"angle_max":       scan.AngleMax,
		"angle_increment": scan.AngleIncrement,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", lost.ErrInvalidInput, name, v)
		}
	}
	if n <= 1 {
		return nil
	}
	if scan.AngleIncrement == 0 {
		return fmt.Errorf("%w: zero angle_increment with %d ranges", lost.ErrInvalidInput, n)
	}
	span := (scan.AngleMax - scan.AngleMin) / scan.AngleIncrement
	if span < 0 {
		return fmt.Errorf("%w: angle_increment %v runs away from angle_max", lost.ErrInvalidInput, scan.AngleIncrement)
	}
	expected := int(math.Round(span)) + 1
	if diff := expected - n; diff > countTolerance || diff < -countTolerance {
		return fmt.Errorf("%w: %d ranges but angles describe %d", lost.ErrInvalidInput, n, expected)
	}
	return nil
}

// ValidRange reports whether r is a usable measurement for the scan's
// declared limits. NaN, ±Inf and values outside [RangeMin, RangeMax] are not.
func ValidRange(scan *lost.ScanSample, r float64) bool {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return false
	}
	if r < scan.RangeMin {
		return false
	}
	if scan.RangeMax > 0 && r > scan.RangeMax {
		return false
	}
	return true
}

// Project converts the scan into points in the scan's frame, in range
// order. Invalid ranges are dropped.
func Project(scan *lost.ScanSample) (lost.PointSet, error) {
	if err := Validate(scan); err != nil {
		return lost.PointSet{}, err
	}

	out := lost.PointSet{
		Frame:  scan.Frame,
		Stamp:  scan.Stamp,
		Points: make([]lost.Point, 0, len(scan.Ranges)),
	}
	dropped := 0
	for i, r := range scan.Ranges {
		if !ValidRange(scan, r) {
			dropped++
			continue
		}
		angle := scan.AngleMin + float64(i)*scan.AngleIncrement
		out.Points = append(out.Points, lost.Point{
			X: r * math.Cos(angle),
			Y: r * math.Sin(angle),
		})
	}
	if dropped > 0 {
		tracef("projected %d/%d ranges from %s (%d invalid)", len(out.Points), len(scan.Ranges), scan.Frame, dropped)
	}
	return out, nil
}
