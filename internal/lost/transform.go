package lost

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a rigid transform that maps points expressed in Child into
// Parent: p_parent = Rotation * p_child + Translation.
//
// Stamp is the time the transform is valid at. Static transforms are valid
// at every time.
type Transform struct {
	Parent      FrameID     `json:"parent"`
	Child       FrameID     `json:"child"`
	Stamp       time.Time   `json:"stamp"`
	Static      bool        `json:"static"`
	Translation r3.Vec      `json:"translation"`
	Rotation    quat.Number `json:"rotation"`
}

// Identity returns the identity transform of frame f onto itself.
func Identity(f FrameID) Transform {
	return Transform{Parent: f, Child: f, Static: true, Rotation: quat.Number{Real: 1}}
}

// NewPlanarTransform builds a transform from a 2-D pose (x, y, yaw).
func NewPlanarTransform(parent, child FrameID, x, y, yaw float64) Transform {
	return Transform{
		Parent:      parent,
		Child:       child,
		Translation: r3.Vec{X: x, Y: y},
		Rotation:    YawQuaternion(yaw),
	}
}

// YawQuaternion returns the unit quaternion for a rotation of yaw radians
// about +Z.
func YawQuaternion(yaw float64) quat.Number {
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}

// Yaw extracts the rotation about +Z from the transform.
func (t Transform) Yaw() float64 {
	q := normalizeQuat(t.Rotation)
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Apply maps p from the child frame into the parent frame.
func (t Transform) Apply(p Point) Point {
	v := r3.Rotation(normalizeQuat(t.Rotation)).Rotate(p.Vec())
	return PointFromVec(r3.Add(v, t.Translation))
}

// ApplyAll maps every point of ps (expressed in Child) into Parent.
func (t Transform) ApplyAll(ps PointSet) PointSet {
	out := PointSet{Frame: t.Parent, Stamp: ps.Stamp, Points: make([]Point, len(ps.Points))}
	rot := r3.Rotation(normalizeQuat(t.Rotation))
	for i, p := range ps.Points {
		out.Points[i] = PointFromVec(r3.Add(rot.Rotate(p.Vec()), t.Translation))
	}
	return out
}

// Inverse returns the transform mapping Parent into Child.
func (t Transform) Inverse() Transform {
	inv := quat.Conj(normalizeQuat(t.Rotation))
	return Transform{
		Parent:      t.Child,
		Child:       t.Parent,
		Stamp:       t.Stamp,
		Static:      t.Static,
		Translation: r3.Scale(-1, r3.Rotation(inv).Rotate(t.Translation)),
		Rotation:    inv,
	}
}

// Compose returns t∘u: a transform mapping u.Child into t.Parent. u.Parent
// must equal t.Child. The result carries the older of the two stamps and is
// static only if both inputs are.
func (t Transform) Compose(u Transform) Transform {
	qt := normalizeQuat(t.Rotation)
	out := Transform{
		Parent:      t.Parent,
		Child:       u.Child,
		Static:      t.Static && u.Static,
		Translation: r3.Add(r3.Rotation(qt).Rotate(u.Translation), t.Translation),
		Rotation:    normalizeQuat(quat.Mul(qt, normalizeQuat(u.Rotation))),
	}
	switch {
	case t.Static:
		out.Stamp = u.Stamp
	case u.Static:
		out.Stamp = t.Stamp
	case t.Stamp.Before(u.Stamp):
		out.Stamp = t.Stamp
	default:
		out.Stamp = u.Stamp
	}
	return out
}

// Interpolate blends a (at fraction 0) and b (at fraction 1): linear in
// translation, spherical-linear in rotation.
func Interpolate(a, b Transform, frac float64) Transform {
	out := a
	out.Translation = r3.Add(a.Translation, r3.Scale(frac, r3.Sub(b.Translation, a.Translation)))
	out.Rotation = slerp(normalizeQuat(a.Rotation), normalizeQuat(b.Rotation), frac)
	return out
}

func slerp(a, b quat.Number, frac float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return normalizeQuat(quat.Add(a, quat.Scale(frac, quat.Sub(b, a))))
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-frac)*theta) / sinTheta
	wb := math.Sin(frac*theta) / sinTheta
	return quat.Add(quat.Scale(wa, a), quat.Scale(wb, b))
}

// normalizeQuat returns q scaled to unit length. A zero quaternion is read
// as identity, which is what an unset rotation field decodes to.
func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return quat.Number{Real: 1}
	}
	if math.Abs(n-1) < 1e-12 {
		return q
	}
	return quat.Scale(1/n, q)
}
