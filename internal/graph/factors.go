package graph

import (
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Factor is a Gaussian residual over one or more SE(3) variables. Residuals
// are 6-dimensional twists in rotation-first order.
type Factor interface {
	Keys() []Key
	Residual(v Values) pose.Twist
	Noise() Noise
}

// FactorError returns half the squared whitened norm of the factor's residual
// under the given assignment. This is the quantity compared against coupling
// thresholds.
func FactorError(f Factor, v Values) float64 {
	return f.Noise().Error(f.Residual(v))
}

// Prior anchors a single variable at a target pose.
type Prior struct {
	key    Key
	target pose.Pose
	noise  Noise
}

// NewPrior builds a prior factor.
func NewPrior(k Key, target pose.Pose, noise Noise) *Prior {
	return &Prior{key: k, target: target, noise: noise}
}

func (f *Prior) Keys() []Key { return []Key{f.key} }

func (f *Prior) Residual(v Values) pose.Twist {
	return pose.Local(f.target, v.At(f.key))
}

func (f *Prior) Noise() Noise { return f.noise }

// Target returns the anchored pose.
func (f *Prior) Target() pose.Pose { return f.target }

// Between constrains the relative pose of two variables.
type Between struct {
	from, to Key
	measure  pose.Pose
	noise    Noise
}

// NewBetween builds a relative-pose factor with the given measurement.
func NewBetween(from, to Key, measure pose.Pose, noise Noise) *Between {
	return &Between{from: from, to: to, measure: measure, noise: noise}
}

func (f *Between) Keys() []Key { return []Key{f.from, f.to} }

func (f *Between) Residual(v Values) pose.Twist {
	return pose.Local(f.measure, v.At(f.from).Between(v.At(f.to)))
}

func (f *Between) Noise() Noise { return f.noise }

// Measure returns the measured relative pose.
func (f *Between) Measure() pose.Pose { return f.measure }

// NewConstantVelocity constrains consecutive velocity variables of a track to
// stay equal. It is a Between factor with an identity measurement.
func NewConstantVelocity(prev, cur Key, noise Noise) *Between {
	return NewBetween(prev, cur, pose.Identity(), noise)
}

// StablePose ties a track's pose at t-1, its velocity and its pose at t
// together under a constant body-frame twist over dt seconds.
type StablePose struct {
	prevPose, velocity, curPose Key
	dt                          float64
	noise                       Noise
}

// NewStablePose builds a constant-twist motion factor.
func NewStablePose(prevPose, velocity, curPose Key, dt float64, noise Noise) *StablePose {
	return &StablePose{prevPose: prevPose, velocity: velocity, curPose: curPose, dt: dt, noise: noise}
}

func (f *StablePose) Keys() []Key { return []Key{f.prevPose, f.velocity, f.curPose} }

func (f *StablePose) Residual(v Values) pose.Twist {
	xi := pose.Local(pose.Identity(), v.At(f.velocity)).Scale(f.dt)
	predicted := v.At(f.prevPose).Compose(pose.Expmap(xi))
	return pose.Local(predicted, v.At(f.curPose))
}

func (f *StablePose) Noise() Noise { return f.noise }

// DetectionFactor ties the ego pose and one object pose to the step's
// detection set. Its error is the minimum over per-detection Gaussian modes,
// which expresses data-association ambiguity; the selected mode index is kept
// for diagnostics.
type DetectionFactor struct {
	ego, object Key
	modes       []pose.Pose
	noise       Noise
	tight       bool

	selected int
}

// NewTightlyCoupledDetection builds a detection factor whose influence
// reaches the ego pose through the tight noise model.
func NewTightlyCoupledDetection(ego, object Key, modes []pose.Pose, noise Noise) *DetectionFactor {
	return &DetectionFactor{ego: ego, object: object, modes: modes, noise: noise, tight: true}
}

// NewLooselyCoupledDetection builds a detection factor with the loose noise
// model, confining its influence to the object track.
func NewLooselyCoupledDetection(ego, object Key, modes []pose.Pose, noise Noise) *DetectionFactor {
	return &DetectionFactor{ego: ego, object: object, modes: modes, noise: noise, tight: false}
}

func (f *DetectionFactor) Keys() []Key { return []Key{f.ego, f.object} }

// Residual evaluates the best mode. The mode is chosen by whitened error, so
// the minimum-negative-log-likelihood detection wins.
func (f *DetectionFactor) Residual(v Values) pose.Twist {
	relative := v.At(f.ego).Inverse().Compose(v.At(f.object))

	best := 0
	var bestRes pose.Twist
	bestErr := -1.0
	for j, m := range f.modes {
		r := pose.Local(relative, m)
		e := f.noise.Error(r)
		if bestErr < 0 || e < bestErr {
			best, bestRes, bestErr = j, r, e
		}
	}
	f.selected = best
	return bestRes
}

func (f *DetectionFactor) Noise() Noise { return f.noise }

// Tight reports whether this factor uses the tight coupling noise.
func (f *DetectionFactor) Tight() bool { return f.tight }

// Selected returns the mode index chosen by the most recent evaluation.
func (f *DetectionFactor) Selected() int { return f.selected }

// Modes returns the detection poses backing the mixture.
func (f *DetectionFactor) Modes() []pose.Pose { return f.modes }
