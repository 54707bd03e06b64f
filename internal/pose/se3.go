package pose

import "math"

// Twist is a tangent-space increment (ωx, ωy, ωz, vx, vy, vz), rotation first.
type Twist [6]float64

// Scale returns t scaled by s component-wise.
func (t Twist) Scale(s float64) Twist {
	var out Twist
	for i := range t {
		out[i] = t[i] * s
	}
	return out
}

// Omega returns the rotational part of the twist.
func (t Twist) Omega() Vec3 { return Vec3{t[0], t[1], t[2]} }

// V returns the translational part of the twist.
func (t Twist) V() Vec3 { return Vec3{t[3], t[4], t[5]} }

const smallAngle = 1e-10

// Expmap maps a tangent vector to a pose via the SE(3) exponential.
func Expmap(xi Twist) Pose {
	w := xi.Omega()
	v := xi.V()
	theta := w.Norm()

	var r Quat
	if theta < smallAngle {
		r = Quat{W: 1, X: w.X / 2, Y: w.Y / 2, Z: w.Z / 2}.Normalize()
	} else {
		half := theta / 2
		s := math.Sin(half) / theta
		r = Quat{W: math.Cos(half), X: s * w.X, Y: s * w.Y, Z: s * w.Z}
	}

	// t = V·v with V = I + a·[w]× + b·[w]×²
	var a, b float64
	if theta < smallAngle {
		a = 0.5
		b = 1.0 / 6.0
	} else {
		a = (1 - math.Cos(theta)) / (theta * theta)
		b = (theta - math.Sin(theta)) / (theta * theta * theta)
	}
	wv := w.Cross(v)
	wwv := w.Cross(wv)
	t := v.Add(wv.Scale(a)).Add(wwv.Scale(b))

	return Pose{R: r, T: t}
}

// Logmap maps a pose to its tangent vector via the SE(3) logarithm.
func Logmap(p Pose) Twist {
	q := p.R.Normalize()
	if q.W < 0 {
		q = Quat{-q.W, -q.X, -q.Y, -q.Z}
	}
	axisNorm := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	var w Vec3
	if axisNorm < smallAngle {
		w = Vec3{2 * q.X, 2 * q.Y, 2 * q.Z}
	} else {
		theta := 2 * math.Atan2(axisNorm, q.W)
		s := theta / axisNorm
		w = Vec3{s * q.X, s * q.Y, s * q.Z}
	}

	theta := w.Norm()
	// v = V⁻¹·t with V⁻¹ = I − ½[w]× + c·[w]×²
	var c float64
	if theta < smallAngle {
		c = 1.0 / 12.0
	} else {
		c = (1 - theta*math.Cos(theta/2)/(2*math.Sin(theta/2))) / (theta * theta)
	}
	t := p.T
	wt := w.Cross(t)
	wwt := w.Cross(wt)
	v := t.Sub(wt.Scale(0.5)).Add(wwt.Scale(c))

	return Twist{w.X, w.Y, w.Z, v.X, v.Y, v.Z}
}

// Local returns the tangent vector taking a to b: Logmap(a⁻¹·b).
func Local(a, b Pose) Twist {
	return Logmap(a.Between(b))
}

// Retract applies a tangent increment to a: a·Expmap(xi).
func Retract(a Pose, xi Twist) Pose {
	return a.Compose(Expmap(xi))
}
