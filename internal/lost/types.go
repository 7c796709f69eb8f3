package lost

import (
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// FrameID names a coordinate frame ("map", "base_link", "laser").
type FrameID string

// Well-known frame names.
const (
	FrameMap      FrameID = "map"
	FrameOdom     FrameID = "odom"
	FrameBaseLink FrameID = "base_link"
)

// Normalize strips the legacy leading slash so "/map" and "map" compare equal.
func (f FrameID) Normalize() FrameID {
	return FrameID(strings.TrimPrefix(strings.TrimSpace(string(f)), "/"))
}

// Equal reports whether two frame ids name the same frame.
func (f FrameID) Equal(other FrameID) bool {
	return f.Normalize() == other.Normalize()
}

func (f FrameID) String() string { return string(f.Normalize()) }

// Point is a Cartesian coordinate in metres. The frame it is expressed in
// is carried by the enclosing PointSet. Z is unused by the 2-D pipeline.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec converts p to a gonum vector.
func (p Point) Vec() r3.Vec { return r3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

// PointFromVec converts a gonum vector to a Point.
func PointFromVec(v r3.Vec) Point { return Point{X: v.X, Y: v.Y, Z: v.Z} }

// PointSet is an ordered set of points sharing one frame and one stamp.
// A zero Stamp means "latest".
type PointSet struct {
	Frame  FrameID   `json:"frame"`
	Stamp  time.Time `json:"stamp"`
	Points []Point   `json:"points"`
}

// Len returns the number of points.
func (ps PointSet) Len() int { return len(ps.Points) }

// Clone returns a deep copy of ps.
func (ps PointSet) Clone() PointSet {
	out := ps
	out.Points = append([]Point(nil), ps.Points...)
	return out
}

// ScanSample is one sweep of a planar range sensor. Ranges[i] was measured
// at AngleMin + i*AngleIncrement radians in the sensor frame.
type ScanSample struct {
	Frame          FrameID   `json:"frame"`
	Stamp          time.Time `json:"stamp"`
	AngleMin       float64   `json:"angle_min"`
	AngleMax       float64   `json:"angle_max"`
	AngleIncrement float64   `json:"angle_increment"`
	RangeMin       float64   `json:"range_min"`
	RangeMax       float64   `json:"range_max"`
	Ranges         []float64 `json:"ranges"`
}

// PoseEstimate is the externally computed best pose of the robot
// (amcl_pose). It is stored by the estimator but not used by the
// computation, which relies on transform lookups instead.
type PoseEstimate struct {
	Frame      FrameID     `json:"frame"`
	Stamp      time.Time   `json:"stamp"`
	Position   Point       `json:"position"`
	Yaw        float64     `json:"yaw"`
	Covariance [36]float64 `json:"covariance"`
}
