// Package tracker owns the per-object lifecycle of the joint estimator: track
// propagation under constant velocity, data association against the step's
// detections, the tight/loose coupling decision, factor emission into the
// main and loose graphs, retirement and identity inheritance.
package tracker

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/graph"
	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Detection is one oriented box from the detector, expressed in the ego
// frame of the step it belongs to.
type Detection struct {
	Pose       pose.Pose
	Dimensions pose.Vec3
	Label      string
	Score      float64
}

// initialVelocityPriorVariance is the weak Gaussian prior attached to every
// newborn velocity node. The huge variance on the first translation axis
// leaves forward motion free; the tight roll/pitch terms discourage spurious
// rotation.
var initialVelocityPriorVariance = [6]float64{1e-2, 1e-2, 1e0, 1e8, 1e2, 1e2}

// Config carries the tracker knobs and noise profiles.
type Config struct {
	LostSteps        int // steps a track may stay unmatched before retirement
	PreLooseSteps    int // P: score needed before tight coupling is considered
	InterLooseSteps  int // score penalty on a failed promotion
	EarlySteps       int // path length under which early noise applies
	ConsistencySteps int // K: velocity samples required by the consistency test

	DetectionMatchThreshold     float64
	TightCouplingErrorThreshold float64
	AngularConsistencyVariance  float64
	LinearConsistencyVariance   float64

	TightDetectionNoise        graph.Noise
	LooseDetectionNoise        graph.Noise
	EarlyMatchingNoise         graph.Noise
	MatchingNoise              graph.Noise
	TightMatchingNoise         graph.Noise
	AssociationNoise           graph.Noise
	MotionNoise                graph.Noise
	ConstantVelocityNoise      graph.Noise
	EarlyConstantVelocityNoise graph.Noise
	InitialVelocityPriorNoise  graph.Noise
}

// ConfigFromTuning builds a tracker config from the tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		LostSteps:        t.GetTrackingStepsForLostObject(),
		PreLooseSteps:    t.GetNumberOfPreLooseCouplingSteps(),
		InterLooseSteps:  t.GetNumberOfInterLooseCouplingSteps(),
		EarlySteps:       t.GetNumberOfEarlySteps(),
		ConsistencySteps: t.GetNumberOfVelocityConsistencySteps(),

		DetectionMatchThreshold:     t.GetDetectionMatchThreshold(),
		TightCouplingErrorThreshold: t.GetTightCouplingDetectionErrorThreshold(),
		AngularConsistencyVariance:  t.GetAngularVelocityConsistencyVarianceThreshold(),
		LinearConsistencyVariance:   t.GetLinearVelocityConsistencyVarianceThreshold(),

		TightDetectionNoise:        graph.Variances(t.GetTightlyCoupledDetectionVariance()),
		LooseDetectionNoise:        graph.Variances(t.GetLooselyCoupledDetectionVariance()),
		EarlyMatchingNoise:         graph.Variances(t.GetEarlyLooselyCoupledMatchingVariance()),
		MatchingNoise:              graph.Variances(t.GetLooselyCoupledMatchingVariance()),
		TightMatchingNoise:         graph.Variances(t.GetTightlyCoupledMatchingVariance()),
		AssociationNoise:           graph.Variances(t.GetDataAssociationVariance()),
		MotionNoise:                graph.Variances(t.GetMotionVariance()),
		ConstantVelocityNoise:      graph.Variances(t.GetConstantVelocityVariance()),
		EarlyConstantVelocityNoise: graph.Variances(t.GetEarlyConstantVelocityVariance()),
		InitialVelocityPriorNoise:  graph.Variances(initialVelocityPriorVariance),
	}
}

// Track is one object's state across epochs. Node keys point at the most
// recently solved pose and velocity variables.
type Track struct {
	ObjectIndex   int
	TrackingIndex int

	Pose     pose.Pose // map frame
	Velocity pose.Pose // per-second body-frame motion, as a pose

	PoseKey     graph.Key
	VelocityKey graph.Key

	TrackScore int
	LostCount  int
	PathLength int
	Confidence float64
	Tight      bool
	IsFirst    bool
	Retired    bool

	velocityKeys keyRing

	// Pending nodes allocated at propagation, bound at emission.
	pendingPoseKey graph.Key
	pendingVelKey  graph.Key
	hasPending     bool
	found          bool

	// Back references for diagnostics only; the graph owns the factors.
	detectionFactor *graph.DetectionFactor
	motionFactor    *graph.StablePose
	velocityFactor  *graph.Between
}

// keyRing keeps the last K velocity node keys of a track.
type keyRing struct {
	buf []graph.Key
	cap int
}

func (r *keyRing) push(k graph.Key) {
	if r.cap <= 0 {
		return
	}
	r.buf = append(r.buf, k)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

func (r *keyRing) items() []graph.Key { return r.buf }

// StepInput is the tracker's slice of one estimator step. Detections are in
// the frame of EgoPose, which on non-keyframe steps is the last keyframe pose
// with the detections re-expressed accordingly.
type StepInput struct {
	Dt              float64
	EgoPose         pose.Pose
	EgoKey          graph.Key
	Detections      []Detection
	DetectionActive bool
}

// StepSummary reports what one tracker step did.
type StepSummary struct {
	Detections int
	Matched    int
	Lost       int
	Births     int
	Retired    int
	TightCount int
	// TightEvent is true when any tight detection factor was emitted, which
	// obliges the estimator to rewrite keyframe poses after the solve.
	TightEvent bool
}

// Tracker runs the object state machine. It is not internally synchronized;
// the estimator serializes calls under its step lock.
type Tracker struct {
	cfg   Config
	alloc *graph.Allocator
	epoch []*Track

	nextObjectIndex   int
	nextTrackingIndex int

	logf func(format string, v ...interface{})
}

// New returns an empty tracker drawing node keys from alloc.
func New(cfg Config, alloc *graph.Allocator) *Tracker {
	return &Tracker{cfg: cfg, alloc: alloc, logf: monitoring.Prefixed("tracker")}
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int { return len(t.epoch) }

// Step advances every track by one epoch: propagate, associate, transition,
// emit factors into the driver, and birth tracks for unmatched detections.
// est is the solver estimate from the previous step, used by the velocity
// consistency test.
func (t *Tracker) Step(in StepInput, d *graph.Driver, est graph.Values) StepSummary {
	var sum StepSummary
	sum.Detections = len(in.Detections)

	t.propagate(in.Dt, &sum)

	if !in.DetectionActive || len(in.Detections) == 0 {
		for _, tr := range t.epoch {
			tr.LostCount++
			tr.Confidence = 0
			tr.TrackScore = 0
			tr.Tight = false
			tr.IsFirst = false
			tr.hasPending = false
			sum.Lost++
		}
		return sum
	}

	modes := make([]pose.Pose, len(in.Detections))
	for j, det := range in.Detections {
		modes[j] = det.Pose
	}

	matchedBy := make([]int, len(in.Detections))
	inherited := make(map[int]int)
	t.associate(in, matchedBy, inherited, est, &sum)
	t.emit(in, modes, d, &sum)
	t.birth(in, modes, matchedBy, inherited, d, &sum)

	return sum
}

func (t *Tracker) propagate(dt float64, sum *StepSummary) {
	live := t.epoch[:0]
	for _, tr := range t.epoch {
		if tr.Retired || tr.LostCount > t.cfg.LostSteps {
			tr.Retired = true
			sum.Retired++
			continue
		}
		xi := pose.Local(pose.Identity(), tr.Velocity).Scale(dt)
		tr.Pose = tr.Pose.Compose(pose.Expmap(xi))
		tr.PathLength++
		tr.found = false
		tr.hasPending = false
		tr.IsFirst = false
		if tr.LostCount == 0 {
			tr.pendingPoseKey = t.alloc.Next()
			tr.pendingVelKey = t.alloc.Next()
			tr.hasPending = true
		}
		live = append(live, tr)
	}
	t.epoch = live
}

// matchResidual is the tangent-space gap between a predicted ego-frame track
// pose and a detection.
func matchResidual(predicted pose.Pose, det Detection) pose.Twist {
	return pose.Local(predicted, det.Pose)
}

// bestMatch returns the lowest-error detection under the given profile. Ties
// break toward the lower detection index.
func bestMatch(predicted pose.Pose, dets []Detection, noise graph.Noise) (int, float64) {
	best := -1
	bestErr := math.Inf(1)
	for j, det := range dets {
		e := noise.Error(matchResidual(predicted, det))
		if e < bestErr {
			best, bestErr = j, e
		}
	}
	return best, bestErr
}

// matchNoise selects the gating profile: mature tracks gate under the
// standard matching noise, young tracks under the wider early profile.
func (t *Tracker) matchNoise(tr *Track) graph.Noise {
	if tr.TrackScore >= t.cfg.PreLooseSteps {
		return t.cfg.MatchingNoise
	}
	if tr.PathLength <= t.cfg.EarlySteps {
		return t.cfg.EarlyMatchingNoise
	}
	return t.cfg.MatchingNoise
}

func (t *Tracker) associate(in StepInput, matchedBy []int, inherited map[int]int, est graph.Values, sum *StepSummary) {
	egoInv := in.EgoPose.Inverse()
	for _, tr := range t.epoch {
		predicted := egoInv.Compose(tr.Pose)
		j, err := bestMatch(predicted, in.Detections, t.matchNoise(tr))

		if j >= 0 && err < t.cfg.DetectionMatchThreshold {
			if tr.LostCount > 0 {
				// A lost track is never re-attached: the detection takes
				// over its identity and the track retires.
				inherited[j] = tr.TrackingIndex
				tr.Retired = true
				sum.Retired++
				continue
			}
			matchedBy[j]++
			tr.found = true
			tr.LostCount = 0
			tr.Confidence = in.Detections[j].Score
			if tr.TrackScore < t.cfg.PreLooseSteps+1 {
				tr.TrackScore++
			}

			if tr.TrackScore >= t.cfg.PreLooseSteps+1 {
				tightErr := t.cfg.TightMatchingNoise.Error(matchResidual(predicted, in.Detections[j]))
				if tightErr <= t.cfg.TightCouplingErrorThreshold && t.velocityConsistent(tr, est) {
					tr.Tight = true
				} else {
					tr.TrackScore -= t.cfg.InterLooseSteps
					if tr.TrackScore < 0 {
						tr.TrackScore = 0
					}
					tr.Tight = false
				}
			} else {
				tr.Tight = false
			}
			sum.Matched++
			continue
		}

		tr.LostCount++
		tr.Confidence = 0
		tr.TrackScore = 0
		tr.Tight = false
		sum.Lost++

		jda, errDA := bestMatch(predicted, in.Detections, t.cfg.AssociationNoise)
		if jda >= 0 && errDA < t.cfg.DetectionMatchThreshold {
			inherited[jda] = tr.TrackingIndex
			tr.Retired = true
			sum.Retired++
		}
	}

	// Drop tracks retired during association before emission.
	live := t.epoch[:0]
	for _, tr := range t.epoch {
		if !tr.Retired {
			live = append(live, tr)
		}
	}
	t.epoch = live
}

func (t *Tracker) emit(in StepInput, modes []pose.Pose, d *graph.Driver, sum *StepSummary) {
	for _, tr := range t.epoch {
		if !tr.found || !tr.hasPending {
			tr.IsFirst = false
			tr.hasPending = false
			continue
		}

		insert := d.InsertLoose
		addTo := d.AddLoose
		if tr.Tight {
			insert = d.InsertMain
			addTo = d.AddMain
		}

		insert(tr.pendingPoseKey, tr.Pose)
		insert(tr.pendingVelKey, tr.Velocity)

		var df *graph.DetectionFactor
		if tr.Tight {
			df = graph.NewTightlyCoupledDetection(in.EgoKey, tr.pendingPoseKey, modes, t.cfg.TightDetectionNoise)
			d.AddMain(df)
			sum.TightCount++
			sum.TightEvent = true
		} else {
			df = graph.NewLooselyCoupledDetection(in.EgoKey, tr.pendingPoseKey, modes, t.cfg.LooseDetectionNoise)
			d.AddLoose(df)
		}
		tr.detectionFactor = df

		if !tr.IsFirst {
			cvNoise := t.cfg.ConstantVelocityNoise
			if tr.PathLength <= t.cfg.EarlySteps {
				cvNoise = t.cfg.EarlyConstantVelocityNoise
			}
			cv := graph.NewConstantVelocity(tr.VelocityKey, tr.pendingVelKey, cvNoise)
			sp := graph.NewStablePose(tr.PoseKey, tr.pendingVelKey, tr.pendingPoseKey, in.Dt, t.cfg.MotionNoise)
			addTo(cv)
			addTo(sp)
			tr.velocityFactor = cv
			tr.motionFactor = sp
		}

		tr.velocityKeys.push(tr.pendingVelKey)
		tr.PoseKey = tr.pendingPoseKey
		tr.VelocityKey = tr.pendingVelKey
		tr.IsFirst = false
		tr.hasPending = false
	}
}

func (t *Tracker) birth(in StepInput, modes []pose.Pose, matchedBy []int, inherited map[int]int, d *graph.Driver, sum *StepSummary) {
	for j, det := range in.Detections {
		if matchedBy[j] > 0 {
			continue
		}

		trackingIndex, ok := inherited[j]
		if !ok {
			trackingIndex = t.nextTrackingIndex
			t.nextTrackingIndex++
		}

		tr := &Track{
			ObjectIndex:   t.nextObjectIndex,
			TrackingIndex: trackingIndex,
			Pose:          in.EgoPose.Compose(det.Pose),
			Velocity:      pose.Identity(),
			PoseKey:       t.alloc.Next(),
			VelocityKey:   t.alloc.Next(),
			Confidence:    det.Score,
			IsFirst:       true,
			velocityKeys:  keyRing{cap: t.cfg.ConsistencySteps},
		}
		t.nextObjectIndex++

		d.InsertLoose(tr.PoseKey, tr.Pose)
		d.InsertLoose(tr.VelocityKey, tr.Velocity)

		df := graph.NewLooselyCoupledDetection(in.EgoKey, tr.PoseKey, modes, t.cfg.LooseDetectionNoise)
		d.AddLoose(df)
		d.AddLoose(graph.NewPrior(tr.VelocityKey, pose.Identity(), t.cfg.InitialVelocityPriorNoise))
		tr.detectionFactor = df
		tr.velocityKeys.push(tr.VelocityKey)

		t.epoch = append(t.epoch, tr)
		sum.Births++
		if ok {
			t.logf("track %d reborn as object %d", trackingIndex, tr.ObjectIndex)
		}
	}
}

// velocityConsistent implements the temporal test gating tight coupling: the
// last K velocity estimates must scatter within the configured variances.
func (t *Tracker) velocityConsistent(tr *Track, est graph.Values) bool {
	keys := tr.velocityKeys.items()
	if len(keys) < t.cfg.ConsistencySteps {
		return false
	}

	var series [6][]float64
	for _, k := range keys {
		if !est.Has(k) {
			return false
		}
		v := pose.Local(pose.Identity(), est.At(k))
		for i := range v {
			series[i] = append(series[i], v[i])
		}
	}

	var variances [6]float64
	for i := 0; i < 3; i++ {
		variances[i] = t.cfg.AngularConsistencyVariance
		variances[i+3] = t.cfg.LinearConsistencyVariance
	}

	// Population scatter of each twist component, normalized by the
	// configured tolerance.
	n := float64(len(keys))
	var total float64
	for i := range series {
		total += stat.Variance(series[i], nil) * (n - 1) / n / variances[i]
	}
	return total < 1
}

// ReadBack refreshes every currently bound track from the solver estimate.
func (t *Tracker) ReadBack(est graph.Values) {
	for _, tr := range t.epoch {
		if tr.LostCount > 0 {
			continue
		}
		if est.Has(tr.PoseKey) {
			tr.Pose = est.At(tr.PoseKey)
		}
		if est.Has(tr.VelocityKey) {
			tr.Velocity = est.At(tr.VelocityKey)
		}
	}
}

// ObjectState is a per-track diagnostic snapshot.
type ObjectState struct {
	ObjectIndex   int
	TrackingIndex int
	Pose          pose.Pose
	Velocity      pose.Pose
	TrackScore    int
	LostCount     int
	PathLength    int
	Confidence    float64
	Tight         bool

	// Factor errors against the supplied estimate; NaN when the factor was
	// not emitted this step.
	DetectionError    float64
	MotionError       float64
	SelectedDetection int
}

// Snapshot returns diagnostic states for every live track, evaluating the
// step's factors against the given solver estimate.
func (t *Tracker) Snapshot(est graph.Values) []ObjectState {
	out := make([]ObjectState, 0, len(t.epoch))
	for _, tr := range t.epoch {
		st := ObjectState{
			ObjectIndex:       tr.ObjectIndex,
			TrackingIndex:     tr.TrackingIndex,
			Pose:              tr.Pose,
			Velocity:          tr.Velocity,
			TrackScore:        tr.TrackScore,
			LostCount:         tr.LostCount,
			PathLength:        tr.PathLength,
			Confidence:        tr.Confidence,
			Tight:             tr.Tight,
			DetectionError:    math.NaN(),
			MotionError:       math.NaN(),
			SelectedDetection: -1,
		}
		if tr.detectionFactor != nil && factorEvaluable(tr.detectionFactor, est) {
			st.DetectionError = graph.FactorError(tr.detectionFactor, est)
			st.SelectedDetection = tr.detectionFactor.Selected()
		}
		if tr.motionFactor != nil && factorEvaluable(tr.motionFactor, est) {
			st.MotionError = graph.FactorError(tr.motionFactor, est)
		}
		out = append(out, st)
	}
	return out
}

func factorEvaluable(f graph.Factor, est graph.Values) bool {
	for _, k := range f.Keys() {
		if !est.Has(k) {
			return false
		}
	}
	return true
}
