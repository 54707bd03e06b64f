package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func posesClose(t *testing.T, a, b Pose, tol float64) {
	t.Helper()
	if d := a.TranslationDistance(b); d > tol {
		t.Fatalf("translation differs by %g (tol %g): %+v vs %+v", d, tol, a.T, b.T)
	}
	delta := Local(a, b)
	if n := delta.Omega().Norm(); n > tol {
		t.Fatalf("rotation differs by %g rad (tol %g)", n, tol)
	}
}

func TestComposeInverse(t *testing.T) {
	t.Parallel()
	p := FromEuler(1.0, -2.0, 0.5, 0.1, -0.2, 0.3)
	q := FromEuler(-0.4, 0.8, 1.2, -0.05, 0.15, -0.25)

	posesClose(t, p.Compose(p.Inverse()), Identity(), eps)
	posesClose(t, p.Inverse().Compose(p), Identity(), eps)
	posesClose(t, p.Compose(q.Compose(q.Inverse())), p, eps)

	// Between is the relative transform: p · Between(p, q) == q.
	posesClose(t, p.Compose(p.Between(q)), q, eps)
}

func TestEulerRoundTrip(t *testing.T) {
	t.Parallel()
	cases := [][3]float64{
		{0, 0, 0},
		{0.1, -0.2, 0.3},
		{-1.2, 0.4, 2.9},
		{math.Pi / 4, -math.Pi / 3, math.Pi / 6},
	}
	for _, c := range cases {
		q := QuatFromEuler(c[0], c[1], c[2])
		r, p, y := q.Euler()
		assert.InDelta(t, c[0], r, 1e-9)
		assert.InDelta(t, c[1], p, 1e-9)
		assert.InDelta(t, c[2], y, 1e-9)
	}
}

func TestTransformPoint(t *testing.T) {
	t.Parallel()
	// Pure yaw of 90 degrees plus a shift along x.
	p := FromEuler(1, 0, 0, 0, 0, math.Pi/2)
	got := p.TransformPoint(Vec3{1, 0, 0})
	assert.InDelta(t, 1.0, got.X, eps)
	assert.InDelta(t, 1.0, got.Y, eps)
	assert.InDelta(t, 0.0, got.Z, eps)
}

func TestExpLogRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []Twist{
		{},
		{0.1, 0, 0, 0, 0, 0},
		{0, 0, 0, 1, 2, 3},
		{0.3, -0.2, 0.1, 0.5, -1.5, 2.0},
		{1e-12, 0, 1e-12, 0.1, 0.2, 0.3},
		{0, 0, 2.8, -4, 0, 1},
	}
	for _, xi := range cases {
		back := Logmap(Expmap(xi))
		for i := range xi {
			assert.InDelta(t, xi[i], back[i], 1e-8, "component %d of %v", i, xi)
		}
	}
}

func TestLocalRetractRoundTrip(t *testing.T) {
	t.Parallel()
	a := FromEuler(3, -1, 2, 0.2, -0.1, 1.1)
	b := FromEuler(-2, 4, 0.5, -0.3, 0.25, -0.9)

	// Retract(a, Local(a, b)) == b for any pair.
	posesClose(t, Retract(a, Local(a, b)), b, 1e-8)

	// Local(I, p) followed by Expmap reproduces p.
	posesClose(t, Expmap(Local(Identity(), b)), b, 1e-8)
}

func TestConstantTwistPropagation(t *testing.T) {
	t.Parallel()
	// A velocity pose encoding 1 m/s forward at 10 Hz advances a pose by
	// 0.1 m per step when scaled by the sampling interval.
	velocity := Expmap(Twist{0, 0, 0, 1, 0, 0})
	dt := 0.1

	cur := FromEuler(5, 5, 0, 0, 0, 0)
	step := Expmap(Local(Identity(), velocity).Scale(dt))
	next := cur.Compose(step)

	require.InDelta(t, 5.1, next.T.X, 1e-9)
	require.InDelta(t, 5.0, next.T.Y, 1e-9)
}

func TestSlerp(t *testing.T) {
	t.Parallel()
	a := QuatFromEuler(0, 0, 0)
	b := QuatFromEuler(0.4, 0, 0)

	mid := a.Slerp(b, 0.5)
	r, p, y := mid.Euler()
	assert.InDelta(t, 0.2, r, 1e-9)
	assert.InDelta(t, 0.0, p, 1e-9)
	assert.InDelta(t, 0.0, y, 1e-9)

	// Endpoints are reproduced.
	r, _, _ = a.Slerp(b, 0).Euler()
	assert.InDelta(t, 0.0, r, 1e-9)
	r, _, _ = a.Slerp(b, 1).Euler()
	assert.InDelta(t, 0.4, r, 1e-9)
}
