package feed

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/lostnav/internal/lost"
)

// The wire types follow the rosbridge JSON encoding of the corresponding
// ROS messages, so captures from a rosbridge bridge replay unchanged.

// Stamp is builtin_interfaces/Time.
type Stamp struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// Header is std_msgs/Header.
type Header struct {
	Stamp   Stamp  `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Vector3 is geometry_msgs/Vector3 and geometry_msgs/Point.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// LaserScan is sensor_msgs/LaserScan. rosbridge encodes NaN and infinite
// ranges as null.
type LaserScan struct {
	Header         Header     `json:"header"`
	AngleMin       float64    `json:"angle_min"`
	AngleMax       float64    `json:"angle_max"`
	AngleIncrement float64    `json:"angle_increment"`
	TimeIncrement  float64    `json:"time_increment"`
	ScanTime       float64    `json:"scan_time"`
	RangeMin       float64    `json:"range_min"`
	RangeMax       float64    `json:"range_max"`
	Ranges         []*float64 `json:"ranges"`
}

// MapMetaData is nav_msgs/MapMetaData.
type MapMetaData struct {
	MapLoadTime Stamp   `json:"map_load_time"`
	Resolution  float64 `json:"resolution"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Origin      Pose    `json:"origin"`
}

// OccupancyGrid is nav_msgs/OccupancyGrid.
type OccupancyGrid struct {
	Header Header      `json:"header"`
	Info   MapMetaData `json:"info"`
	Data   []int8      `json:"data"`
}

// TransformStamped is geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header `json:"header"`
	ChildFrameID string `json:"child_frame_id"`
	Transform    struct {
		Translation Vector3    `json:"translation"`
		Rotation    Quaternion `json:"rotation"`
	} `json:"transform"`
}

// TFMessage is tf2_msgs/TFMessage.
type TFMessage struct {
	Transforms []TransformStamped `json:"transforms"`
}

// PoseWithCovarianceStamped is geometry_msgs/PoseWithCovarianceStamped.
type PoseWithCovarianceStamped struct {
	Header Header `json:"header"`
	Pose   struct {
		Pose       Pose        `json:"pose"`
		Covariance [36]float64 `json:"covariance"`
	} `json:"pose"`
}

func (s Stamp) Time() time.Time {
	if s.Secs == 0 && s.Nsecs == 0 {
		return time.Time{}
	}
	return time.Unix(s.Secs, s.Nsecs).UTC()
}

// StampFrom converts t; the zero time becomes the zero stamp.
func StampFrom(t time.Time) Stamp {
	if t.IsZero() {
		return Stamp{}
	}
	ns := t.UnixNano()
	return Stamp{Secs: ns / 1e9, Nsecs: ns % 1e9}
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func quaternionFrom(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// yaw extracts the rotation about Z.
func (q Quaternion) yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// ToScan converts the wire scan.
func (m *LaserScan) ToScan() *lost.ScanSample {
	s := &lost.ScanSample{
		Frame:          lost.FrameID(m.Header.FrameID).Normalize(),
		Stamp:          m.Header.Stamp.Time(),
		AngleMin:       m.AngleMin,
		AngleMax:       m.AngleMax,
		AngleIncrement: m.AngleIncrement,
		RangeMin:       m.RangeMin,
		RangeMax:       m.RangeMax,
		Ranges:         make([]float64, len(m.Ranges)),
	}
	for i, r := range m.Ranges {
		if r == nil {
			s.Ranges[i] = math.NaN()
			continue
		}
		s.Ranges[i] = *r
	}
	return s
}

// LaserScanFrom converts s to its wire form.
func LaserScanFrom(s *lost.ScanSample) *LaserScan {
	m := &LaserScan{
		Header:         Header{Stamp: StampFrom(s.Stamp), FrameID: string(s.Frame)},
		AngleMin:       s.AngleMin,
		AngleMax:       s.AngleMax,
		AngleIncrement: s.AngleIncrement,
		RangeMin:       s.RangeMin,
		RangeMax:       s.RangeMax,
		Ranges:         make([]*float64, len(s.Ranges)),
	}
	for i := range s.Ranges {
		if r := s.Ranges[i]; !math.IsNaN(r) && !math.IsInf(r, 0) {
			m.Ranges[i] = &r
		}
	}
	return m
}

// ToGrid converts the wire map, reading Data in the given row order. The
// grid is not validated here; the aggregator rejects corrupt metadata.
// Rotated map origins are not supported and their rotation is dropped.
func (m *OccupancyGrid) ToGrid(layout lost.Layout) *lost.OccupancyGrid {
	if yaw := m.Info.Origin.Orientation.yaw(); math.Abs(yaw) > 1e-9 && !math.IsNaN(yaw) {
		diagf("map origin rotation %.4f rad ignored", yaw)
	}
	stamp := m.Header.Stamp.Time()
	if stamp.IsZero() {
		stamp = m.Info.MapLoadTime.Time()
	}
	return &lost.OccupancyGrid{
		Info: lost.GridInfo{
			Frame:      lost.FrameID(m.Header.FrameID).Normalize(),
			Width:      m.Info.Width,
			Height:     m.Info.Height,
			Resolution: m.Info.Resolution,
			Origin:     lost.Point{X: m.Info.Origin.Position.X, Y: m.Info.Origin.Position.Y, Z: m.Info.Origin.Position.Z},
			Layout:     layout,
		},
		Stamp: stamp,
		Data:  m.Data,
	}
}

// OccupancyGridFrom converts g to its wire form, reordering rows to layout
// when g is stored differently.
func OccupancyGridFrom(g *lost.OccupancyGrid, layout lost.Layout) *OccupancyGrid {
	m := &OccupancyGrid{
		Header: Header{Stamp: StampFrom(g.Stamp), FrameID: string(g.Info.Frame)},
		Info: MapMetaData{
			Resolution: g.Info.Resolution,
			Width:      g.Info.Width,
			Height:     g.Info.Height,
			Origin: Pose{
				Position:    Vector3{X: g.Info.Origin.X, Y: g.Info.Origin.Y, Z: g.Info.Origin.Z},
				Orientation: Quaternion{W: 1},
			},
		},
		Data: g.Data,
	}
	if g.Info.Layout != layout && len(g.Data) == g.Info.Cells() {
		out := g.Info
		out.Layout = layout
		w := g.Info.Width
		m.Data = make([]int8, len(g.Data))
		for row := 0; row < g.Info.Height; row++ {
			src := g.Info.StoredRow(row) * w
			dst := out.StoredRow(row) * w
			copy(m.Data[dst:dst+w], g.Data[src:src+w])
		}
	}
	return m
}

// ToTransforms converts every entry of the message.
func (m *TFMessage) ToTransforms(static bool) []lost.Transform {
	out := make([]lost.Transform, 0, len(m.Transforms))
	for _, ts := range m.Transforms {
		out = append(out, lost.Transform{
			Parent: lost.FrameID(ts.Header.FrameID).Normalize(),
			Child:  lost.FrameID(ts.ChildFrameID).Normalize(),
			Stamp:  ts.Header.Stamp.Time(),
			Static: static,
			Translation: lost.Point{
				X: ts.Transform.Translation.X,
				Y: ts.Transform.Translation.Y,
				Z: ts.Transform.Translation.Z,
			}.Vec(),
			Rotation: ts.Transform.Rotation.number(),
		})
	}
	return out
}

// TFMessageFrom converts transforms to their wire form.
func TFMessageFrom(ts ...lost.Transform) *TFMessage {
	m := &TFMessage{Transforms: make([]TransformStamped, len(ts))}
	for i, t := range ts {
		w := &m.Transforms[i]
		w.Header = Header{Stamp: StampFrom(t.Stamp), FrameID: string(t.Parent)}
		w.ChildFrameID = string(t.Child)
		w.Transform.Translation = Vector3{X: t.Translation.X, Y: t.Translation.Y, Z: t.Translation.Z}
		w.Transform.Rotation = quaternionFrom(t.Rotation)
	}
	return m
}

// ToPose converts the wire pose.
func (m *PoseWithCovarianceStamped) ToPose() *lost.PoseEstimate {
	p := m.Pose.Pose
	return &lost.PoseEstimate{
		Frame:      lost.FrameID(m.Header.FrameID).Normalize(),
		Stamp:      m.Header.Stamp.Time(),
		Position:   lost.Point{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Yaw:        p.Orientation.yaw(),
		Covariance: m.Pose.Covariance,
	}
}

// PoseFrom converts p to its wire form.
func PoseFrom(p *lost.PoseEstimate) *PoseWithCovarianceStamped {
	m := &PoseWithCovarianceStamped{Header: Header{Stamp: StampFrom(p.Stamp), FrameID: string(p.Frame)}}
	m.Pose.Pose.Position = Vector3{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
	m.Pose.Pose.Orientation = quaternionFrom(lost.YawQuaternion(p.Yaw))
	m.Pose.Covariance = p.Covariance
	return m
}
