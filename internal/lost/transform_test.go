package lost

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
)

const tol = 1e-9

func assertPointNear(t *testing.T, want, got Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func TestIdentity_Apply(t *testing.T) {
	id := Identity(FrameMap)
	p := Point{X: 1.5, Y: -2.25, Z: 0.1}
	assertPointNear(t, p, id.Apply(p))
}

func TestZeroRotationIsIdentity(t *testing.T) {
	tr := Transform{Parent: FrameMap, Child: FrameBaseLink}
	assertPointNear(t, Point{X: 3, Y: 4}, tr.Apply(Point{X: 3, Y: 4}))
}

func TestPlanarTransform_Apply(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		yaw  float64
		in   Point
		want Point
	}{
		{"translation only", 2, 3, 0, Point{X: 1}, Point{X: 3, Y: 3}},
		{"quarter turn", 0, 0, math.Pi / 2, Point{X: 1}, Point{Y: 1}},
		{"half turn with offset", 1, 1, math.Pi, Point{X: 1, Y: 1}, Point{X: 0, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewPlanarTransform(FrameMap, FrameBaseLink, tt.x, tt.y, tt.yaw)
			assertPointNear(t, tt.want, tr.Apply(tt.in))
		})
	}
}

func TestTransform_Yaw(t *testing.T) {
	for _, yaw := range []float64{0, 0.3, -1.2, math.Pi / 2, 3.0} {
		tr := NewPlanarTransform(FrameMap, FrameBaseLink, 0, 0, yaw)
		assert.InDelta(t, yaw, tr.Yaw(), tol)
	}
}

func TestTransform_InverseRoundTrip(t *testing.T) {
	tr := NewPlanarTransform(FrameMap, FrameBaseLink, 4, -2, 0.7)
	inv := tr.Inverse()
	assert.Equal(t, FrameBaseLink, inv.Parent)
	assert.Equal(t, FrameMap, inv.Child)

	p := Point{X: -1.3, Y: 8.2}
	assertPointNear(t, p, inv.Apply(tr.Apply(p)))
}

func TestTransform_Compose(t *testing.T) {
	now := time.Unix(100, 0)
	mapOdom := NewPlanarTransform(FrameMap, FrameOdom, 10, 0, math.Pi/2)
	mapOdom.Stamp = now
	odomBase := NewPlanarTransform(FrameOdom, FrameBaseLink, 1, 0, 0)
	odomBase.Stamp = now.Add(-time.Second)

	c := mapOdom.Compose(odomBase)
	assert.Equal(t, FrameMap, c.Parent)
	assert.Equal(t, FrameBaseLink, c.Child)
	assert.Equal(t, now.Add(-time.Second), c.Stamp, "composition carries the older stamp")

	p := Point{X: 1}
	assertPointNear(t, mapOdom.Apply(odomBase.Apply(p)), c.Apply(p))
	assertPointNear(t, Point{X: 10, Y: 2}, c.Apply(p))
}

func TestTransform_ComposeStaticKeepsDynamicStamp(t *testing.T) {
	stamp := time.Unix(50, 0)
	dyn := NewPlanarTransform(FrameMap, FrameBaseLink, 0, 0, 0)
	dyn.Stamp = stamp
	static := NewPlanarTransform(FrameBaseLink, "laser", 0.2, 0, 0)
	static.Static = true

	c := dyn.Compose(static)
	assert.False(t, c.Static)
	assert.Equal(t, stamp, c.Stamp)
}

func TestInterpolate(t *testing.T) {
	a := NewPlanarTransform(FrameMap, FrameBaseLink, 0, 0, 0)
	b := NewPlanarTransform(FrameMap, FrameBaseLink, 2, 4, math.Pi/2)

	mid := Interpolate(a, b, 0.5)
	assert.InDelta(t, 1.0, mid.Translation.X, tol)
	assert.InDelta(t, 2.0, mid.Translation.Y, tol)
	assert.InDelta(t, math.Pi/4, mid.Yaw(), 1e-9)

	assert.InDelta(t, 0.0, Interpolate(a, b, 0).Yaw(), tol)
	assert.InDelta(t, math.Pi/2, Interpolate(a, b, 1).Yaw(), tol)
}

func TestApplyAll_KeepsStampAndRetagsFrame(t *testing.T) {
	stamp := time.Unix(10, 5)
	ps := PointSet{Frame: FrameBaseLink, Stamp: stamp, Points: []Point{{X: 1}, {Y: 1}}}
	tr := NewPlanarTransform(FrameMap, FrameBaseLink, 1, 1, 0)

	out := tr.ApplyAll(ps)
	assert.Equal(t, FrameMap, out.Frame)
	assert.Equal(t, stamp, out.Stamp)
	assertPointNear(t, Point{X: 2, Y: 1}, out.Points[0])
	assertPointNear(t, Point{X: 1, Y: 2}, out.Points[1])
	assertPointNear(t, Point{X: 1}, ps.Points[0])
}

func TestNormalizeQuat_ScalesNonUnit(t *testing.T) {
	q := normalizeQuat(quat.Number{Real: 2})
	assert.InDelta(t, 1.0, q.Real, tol)
}

func TestFrameID_Normalize(t *testing.T) {
	assert.True(t, FrameID("/map").Equal(FrameMap))
	assert.False(t, FrameID("odom").Equal(FrameMap))
	assert.Equal(t, "base_link", FrameID(" /base_link").String())
}
