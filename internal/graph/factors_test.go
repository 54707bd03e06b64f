package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

func twistNear(t *testing.T, r pose.Twist, tol float64) {
	t.Helper()
	for i, x := range r {
		assert.InDelta(t, 0.0, x, tol, "component %d", i)
	}
}

func TestPriorResidual(t *testing.T) {
	t.Parallel()
	target := pose.FromEuler(1, 2, 3, 0.1, -0.2, 0.3)
	f := NewPrior(0, target, Isotropic(1))

	v := NewValues()
	v.Insert(0, target)
	twistNear(t, f.Residual(v), 1e-12)
	assert.InDelta(t, 0.0, FactorError(f, v), 1e-12)

	v.Insert(0, pose.FromEuler(2, 2, 3, 0.1, -0.2, 0.3))
	assert.Greater(t, FactorError(f, v), 0.0)
}

func TestBetweenResidual(t *testing.T) {
	t.Parallel()
	x1 := pose.FromEuler(1, 0, 0, 0, 0, 0.3)
	x2 := pose.FromEuler(2, 1, 0, 0, 0, 0.5)

	f := NewBetween(0, 1, x1.Between(x2), Isotropic(0.1))
	v := NewValues()
	v.Insert(0, x1)
	v.Insert(1, x2)
	twistNear(t, f.Residual(v), 1e-12)

	v.Insert(1, pose.FromEuler(3, 1, 0, 0, 0, 0.5))
	assert.Greater(t, FactorError(f, v), 1.0)
}

func TestStablePoseZeroUnderConstantTwist(t *testing.T) {
	t.Parallel()
	prev := pose.FromEuler(5, -2, 0.3, 0.05, -0.02, 1.1)
	velocity := pose.FromEuler(1.0, 0.2, 0, 0, 0, 0.3)
	dt := 0.4

	xi := pose.Local(pose.Identity(), velocity).Scale(dt)
	cur := prev.Compose(pose.Expmap(xi))

	f := NewStablePose(0, 1, 2, dt, Isotropic(0.1))
	v := NewValues()
	v.Insert(0, prev)
	v.Insert(1, velocity)
	v.Insert(2, cur)

	twistNear(t, f.Residual(v), 1e-9)
	assert.InDelta(t, 0.0, FactorError(f, v), 1e-9)
}

func TestConstantVelocity(t *testing.T) {
	t.Parallel()
	f := NewConstantVelocity(0, 1, Isotropic(1))
	assert.Equal(t, pose.Identity(), f.Measure())

	v := NewValues()
	v.Insert(0, pose.FromEuler(1, 0, 0, 0, 0, 0.1))
	v.Insert(1, pose.FromEuler(1, 0, 0, 0, 0, 0.1))
	twistNear(t, f.Residual(v), 1e-12)

	v.Insert(1, pose.FromEuler(2, 0, 0, 0, 0, 0.1))
	assert.Greater(t, FactorError(f, v), 0.0)
}

func TestDetectionFactorSelectsNearestMode(t *testing.T) {
	t.Parallel()
	modes := []pose.Pose{
		pose.FromEuler(10, 0, 0, 0, 0, 0),
		pose.FromEuler(5.1, 0, 0, 0, 0, 0),
		pose.FromEuler(-4, 2, 0, 0, 0, 0),
	}
	f := NewTightlyCoupledDetection(0, 1, modes, Isotropic(0.5))
	require.True(t, f.Tight())

	v := NewValues()
	v.Insert(0, pose.Identity())
	v.Insert(1, pose.FromEuler(5, 0, 0, 0, 0, 0))

	err := FactorError(f, v)
	assert.Equal(t, 1, f.Selected())

	// The mixture error is the error of the winning mode alone.
	direct := Isotropic(0.5).Error(pose.Local(
		v.At(0).Inverse().Compose(v.At(1)), modes[1]))
	assert.InDelta(t, direct, err, 1e-12)

	// Moving the object re-associates the factor.
	v.Insert(1, pose.FromEuler(-4, 2, 0, 0, 0, 0))
	FactorError(f, v)
	assert.Equal(t, 2, f.Selected())
}

func TestDetectionFactorLooseFlag(t *testing.T) {
	t.Parallel()
	f := NewLooselyCoupledDetection(0, 1, []pose.Pose{pose.Identity()}, Isotropic(10))
	assert.False(t, f.Tight())
	assert.Len(t, f.Modes(), 1)
}

func TestNoiseModels(t *testing.T) {
	t.Parallel()

	t.Run("sigmas square to variances", func(t *testing.T) {
		n := Sigmas([6]float64{1, 2, 3, 4, 5, 6})
		assert.InDelta(t, 4.0, n.Variance(1), 1e-12)
	})

	t.Run("whiten divides by sigma", func(t *testing.T) {
		n := Isotropic(2)
		w := n.Whiten(pose.Twist{4, 0, 0, 0, 0, 0})
		assert.InDelta(t, 2.0, w[0], 1e-12)
	})

	t.Run("error is half the squared whitened norm", func(t *testing.T) {
		n := Variances([6]float64{1, 1, 1, 4, 4, 4})
		e := n.Error(pose.Twist{0, 0, 0, 2, 0, 0})
		assert.InDelta(t, 0.5, e, 1e-12)
	})
}
