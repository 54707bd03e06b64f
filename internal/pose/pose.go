// Package pose provides rigid-body transform math for the estimator:
// SE(3) poses with quaternion rotations, Euler conversions, and the
// tangent-space Local/Retract maps used by the factor graph.
package pose

import "math"

// Vec3 is a 3-D vector in meters.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{s * v.X, s * v.Y, s * v.Z} }

// Dot returns the inner product of v and w.
func (v Vec3) Dot(w Vec3) float64 { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }

// Cross returns the cross product v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Quat is a unit quaternion (W scalar first).
type Quat struct {
	W, X, Y, Z float64
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat { return Quat{W: 1} }

// Mul returns the Hamilton product q*r.
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Conj returns the conjugate of q. For unit quaternions this is the inverse.
func (q Quat) Conj() Quat { return Quat{q.W, -q.X, -q.Y, -q.Z} }

// Normalize returns q scaled to unit length. The identity is returned for a
// degenerate zero quaternion.
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return QuatIdentity()
	}
	return Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Rotate applies the rotation q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = q * (0,v) * q⁻¹ expanded without forming the intermediate quat.
	u := Vec3{q.X, q.Y, q.Z}
	uv := u.Cross(v)
	uuv := u.Cross(uv)
	return v.Add(uv.Scale(2 * q.W)).Add(uuv.Scale(2))
}

// QuatFromEuler builds a rotation from intrinsic roll (x), pitch (y), yaw (z)
// applied in Z-Y-X order.
func QuatFromEuler(roll, pitch, yaw float64) Quat {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return Quat{
		W: cy*cp*cr + sy*sp*sr,
		X: cy*cp*sr - sy*sp*cr,
		Y: cy*sp*cr + sy*cp*sr,
		Z: sy*cp*cr - cy*sp*sr,
	}
}

// Euler returns the roll, pitch, yaw angles of q (Z-Y-X convention). Pitch is
// clamped at ±π/2 in the gimbal-lock case.
func (q Quat) Euler() (roll, pitch, yaw float64) {
	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return roll, pitch, yaw
}

// Slerp spherically interpolates from q toward r by t in [0, 1].
func (q Quat) Slerp(r Quat, t float64) Quat {
	dot := q.W*r.W + q.X*r.X + q.Y*r.Y + q.Z*r.Z
	if dot < 0 {
		r = Quat{-r.W, -r.X, -r.Y, -r.Z}
		dot = -dot
	}
	if dot > 0.9995 {
		// Nearly parallel: fall back to normalized lerp.
		return Quat{
			q.W + t*(r.W-q.W),
			q.X + t*(r.X-q.X),
			q.Y + t*(r.Y-q.Y),
			q.Z + t*(r.Z-q.Z),
		}.Normalize()
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return Quat{
		wa*q.W + wb*r.W,
		wa*q.X + wb*r.X,
		wa*q.Y + wb*r.Y,
		wa*q.Z + wb*r.Z,
	}.Normalize()
}

// Pose is a 6-DoF rigid transform: rotation followed by translation.
type Pose struct {
	R Quat
	T Vec3
}

// Identity returns the neutral pose.
func Identity() Pose { return Pose{R: QuatIdentity()} }

// FromEuler builds a pose from a translation and roll/pitch/yaw angles.
func FromEuler(x, y, z, roll, pitch, yaw float64) Pose {
	return Pose{R: QuatFromEuler(roll, pitch, yaw), T: Vec3{x, y, z}}
}

// Compose returns p·q, applying q first and then p.
func (p Pose) Compose(q Pose) Pose {
	return Pose{
		R: p.R.Mul(q.R).Normalize(),
		T: p.T.Add(p.R.Rotate(q.T)),
	}
}

// Inverse returns p⁻¹.
func (p Pose) Inverse() Pose {
	inv := p.R.Conj()
	return Pose{R: inv, T: inv.Rotate(p.T.Scale(-1))}
}

// Between returns p⁻¹·q, the transform taking p to q.
func (p Pose) Between(q Pose) Pose {
	return p.Inverse().Compose(q)
}

// TransformPoint maps a point from the pose's local frame into the parent frame.
func (p Pose) TransformPoint(v Vec3) Vec3 {
	return p.R.Rotate(v).Add(p.T)
}

// Euler returns the translation and roll/pitch/yaw of p.
func (p Pose) Euler() (x, y, z, roll, pitch, yaw float64) {
	roll, pitch, yaw = p.R.Euler()
	return p.T.X, p.T.Y, p.T.Z, roll, pitch, yaw
}

// TranslationDistance returns the Euclidean distance between the translations
// of p and q.
func (p Pose) TranslationDistance(q Pose) float64 {
	return p.T.Sub(q.T).Norm()
}
