// Package estimator runs the per-sweep estimation step: scan-to-map
// matching, keyframe management, factor emission for odometry, GPS and loop
// constraints, object tracking, and the incremental solve. One exclusive
// lock guards the keyframe store, the solver and the pose state; Step holds
// it end to end.
package estimator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/detection"
	"github.com/banshee-data/fgtrack.report/internal/gps"
	"github.com/banshee-data/fgtrack.report/internal/graph"
	"github.com/banshee-data/fgtrack.report/internal/keyframes"
	"github.com/banshee-data/fgtrack.report/internal/loop"
	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
	"github.com/banshee-data/fgtrack.report/internal/scanmatch"
	"github.com/banshee-data/fgtrack.report/internal/tracker"
)

var logf = monitoring.Prefixed("estimator")

const (
	// GPS fixes are ignored until the platform has moved far enough for
	// drift to matter, and accepted fixes must be spatially distinct.
	gpsMinTravel     = 5.0
	gpsMinSeparation = 5.0
	gpsVarianceFloor = 1.0
	gpsPinnedZVar    = 0.01

	// recentSubmapSpan unions the last seconds of keyframes into the
	// sub-map regardless of distance.
	recentSubmapSpan = 10.0
	submapCacheLimit = 1000

	predictionHorizon = 0.5
)

// Config holds the estimator-level knobs.
type Config struct {
	AddDistThreshold  float64
	AddAngleThreshold float64
	ProcessInterval   float64

	SearchRadius   float64
	Density        float64
	CornerLeafSize float64
	SurfLeafSize   float64

	PriorNoise    graph.Noise
	OdometryNoise graph.Noise

	PoseCovThreshold float64
	GPSCovThreshold  float64
	UseGPSElevation  bool

	SimultaneousTracking bool
	DetectionTimeout     time.Duration

	LoopEnabled       bool
	LoopFrequency     float64
	GlobalMapInterval time.Duration
}

// ConfigFromTuning extracts the estimator knobs from the tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		AddDistThreshold:  t.GetAddDistThreshold(),
		AddAngleThreshold: t.GetAddAngleThreshold(),
		ProcessInterval:   t.GetMappingProcessInterval(),

		SearchRadius:   t.GetSurroundingKeyframeSearchRadius(),
		Density:        t.GetSurroundingKeyframeDensity(),
		CornerLeafSize: t.GetMappingCornerLeafSize(),
		SurfLeafSize:   t.GetMappingSurfLeafSize(),

		PriorNoise:    graph.Variances(t.GetPriorOdometryVariance()),
		OdometryNoise: graph.Variances(t.GetOdometryVariance()),

		PoseCovThreshold: t.GetPoseCovThreshold(),
		GPSCovThreshold:  t.GetGPSCovThreshold(),
		UseGPSElevation:  t.GetUseGPSElevation(),

		SimultaneousTracking: t.GetSimultaneousTracking(),
		DetectionTimeout:     t.GetDetectionTimeout(),

		LoopEnabled:       t.GetLoopClosureEnabled(),
		LoopFrequency:     t.GetLoopClosureFrequency(),
		GlobalMapInterval: t.GetGlobalMapInterval(),
	}
}

// FrameInput is one LiDAR sweep after deskewing and feature extraction.
// Initial is the external odometry guess for the sweep's world pose.
type FrameInput struct {
	Stamp float64
	Edge  cloud.Cloud
	Plane cloud.Cloud
	Raw   cloud.Cloud

	IMUAvailable              bool
	IMURoll, IMUPitch, IMUYaw float64

	OdomAvailable bool
	Initial       pose.Pose
}

// ObjectDiagnostic extends a track snapshot with a short-horizon motion
// extrapolation.
type ObjectDiagnostic struct {
	tracker.ObjectState
	Predicted pose.Pose
}

// StepDiagnosis summarizes one step for monitoring and persistence.
type StepDiagnosis struct {
	Detections     int
	Matched        int
	Births         int
	Retired        int
	TightlyCoupled int
	Elapsed        time.Duration
}

// StepOutput is the published result of one processed sweep.
type StepOutput struct {
	Stamp       float64
	Pose        pose.Pose
	Incremental pose.Pose
	Degenerate  bool

	Keyframe   bool
	KeyframeID int
	LoopClosed bool

	Path      []pose.Pose
	Objects   []ObjectDiagnostic
	Diagnosis StepDiagnosis
}

type cloudPair struct {
	edge  cloud.Cloud
	plane cloud.Cloud
}

// Estimator owns the full per-sweep pipeline and all state behind it.
type Estimator struct {
	cfg Config

	mu      sync.Mutex
	matcher *scanmatch.Matcher
	track   *tracker.Tracker
	driver  *graph.Driver
	alloc   *graph.Allocator
	store   *keyframes.Store
	loopDet *loop.Detector

	gpsQ  *gps.Queue
	loopQ *loop.Queue
	svc   detection.Service

	egoKeys []graph.Key
	est     graph.Values
	cache   map[int]cloudPair

	started     bool
	lastStamp   float64
	lastPose    pose.Pose
	lastGuess   pose.Pose
	hasGuess    bool
	lastIMU     pose.Quat
	hasIMU      bool
	incremental pose.Pose

	travel  float64
	lastGPS pose.Vec3
	hasGPS  bool

	mapMu     sync.Mutex
	globalMap cloud.Cloud
}

// New wires an estimator from the tuning file. svc may be nil to run
// without object detection.
func New(t *config.TuningConfig, svc detection.Service) *Estimator {
	alloc := graph.NewAllocator()
	return &Estimator{
		cfg:         ConfigFromTuning(t),
		matcher:     scanmatch.New(scanmatch.ConfigFromTuning(t)),
		track:       tracker.New(tracker.ConfigFromTuning(t), alloc),
		driver:      graph.NewDriver(graph.NewSolver(graph.DefaultParams())),
		alloc:       alloc,
		store:       keyframes.NewStore(),
		loopDet:     loop.NewDetector(loop.ConfigFromTuning(t)),
		gpsQ:        gps.NewQueue(),
		loopQ:       loop.NewQueue(),
		svc:         svc,
		est:         graph.NewValues(),
		cache:       make(map[int]cloudPair),
		lastPose:    pose.Identity(),
		incremental: pose.Identity(),
	}
}

// GPSQueue is the inbox for projected GPS fixes.
func (e *Estimator) GPSQueue() *gps.Queue { return e.gpsQ }

// LoopQueue is the inbox for loop-closure candidates, internal or external.
func (e *Estimator) LoopQueue() *loop.Queue { return e.loopQ }

// Keyframes returns the number of keyframes accumulated so far.
func (e *Estimator) Keyframes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Len()
}

// Trajectory returns copies of the keyframe poses and stamps.
func (e *Estimator) Trajectory() ([]pose.Pose, []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PoseSnapshot(), e.store.StampSnapshot()
}

// Step processes one sweep. It returns false when the frame arrived within
// the mapping process interval of the previous one and was skipped.
func (e *Estimator) Step(ctx context.Context, in FrameInput) (StepOutput, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started && in.Stamp-e.lastStamp < e.cfg.ProcessInterval {
		return StepOutput{}, false
	}
	watch := monitoring.NewStopwatch()

	var job *detection.Job
	if e.svc != nil {
		job = detection.Launch(ctx, e.svc, in.Stamp, in.Raw, e.cfg.DetectionTimeout)
	}

	guess := e.initialGuess(in)
	edge := cloud.VoxelDownsample(in.Edge, e.cfg.CornerLeafSize)
	plane := cloud.VoxelDownsample(in.Plane, e.cfg.SurfLeafSize)

	matched := guess
	degenerate := false
	if e.store.Len() > 0 {
		res := e.matcher.Align(edge, plane, guess, e.submap(in.Stamp))
		matched = e.matcher.BlendIMU(res.Pose, in.IMUAvailable, in.IMURoll, in.IMUPitch)
		degenerate = res.Degenerate
	}

	dt := 0.0
	if e.started {
		dt = in.Stamp - e.lastStamp
	}
	e.incremental = e.matcher.BlendIMU(
		e.incremental.Compose(e.lastPose.Between(matched)),
		in.IMUAvailable, in.IMURoll, in.IMUPitch)

	isKey := e.isKeyframe(matched)
	dets, active := joinDetections(ctx, job)

	loopClosed := false
	runTracker := false
	keyframeID := -1
	var stepIn tracker.StepInput

	if isKey {
		kf := e.store.Add(in.Stamp, matched, edge, plane)
		keyframeID = kf.ID
		key := e.alloc.Next()
		e.egoKeys = append(e.egoKeys, key)
		e.driver.InsertMain(key, matched)

		if kf.ID == 0 {
			e.driver.AddMain(graph.NewPrior(key, matched, e.cfg.PriorNoise))
		} else {
			prev := e.store.At(kf.ID - 1)
			e.driver.AddMain(graph.NewBetween(
				e.egoKeys[kf.ID-1], key, prev.Pose.Between(matched), e.cfg.OdometryNoise))
			e.travel += prev.Pose.TranslationDistance(matched)
		}
		if e.gpsFactor(in.Stamp, key, matched) {
			loopClosed = true
		}
		if e.loopFactors() {
			loopClosed = true
		}

		stepIn = tracker.StepInput{
			Dt: dt, EgoPose: matched, EgoKey: key,
			Detections: dets, DetectionActive: active,
		}
		runTracker = true
	} else if e.cfg.SimultaneousTracking {
		last, _ := e.store.Last()
		key := e.egoKeys[len(e.egoKeys)-1]
		e.driver.InsertMain(key, last.Pose)

		// Re-express the detections relative to the pinned keyframe by
		// the small ego motion since it.
		rel := last.Pose.Between(matched)
		mock := make([]tracker.Detection, len(dets))
		for i, d := range dets {
			d.Pose = rel.Compose(d.Pose)
			mock[i] = d
		}
		stepIn = tracker.StepInput{
			Dt: dt, EgoPose: last.Pose, EgoKey: key,
			Detections: mock, DetectionActive: active,
		}
		runTracker = true
	}

	var sum tracker.StepSummary
	if runTracker {
		sum = e.track.Step(stepIn, e.driver, e.est)
	}
	if runTracker && !isKey {
		// The pinned ego key already exists in the solver; only its
		// re-inserted value must go, not the new object nodes.
		e.driver.EraseMainInitial(e.egoKeys[len(e.egoKeys)-1])
	}

	if isKey || e.driver.PendingMain() > 0 || e.driver.PendingLoose() > 0 {
		if err := e.driver.Step(loopClosed); err != nil {
			logf("solver step failed: %v", err)
		} else {
			e.est = e.driver.Solver().Estimate()
		}
		e.track.ReadBack(e.est)
		e.correctPoses(loopClosed || sum.TightEvent)
	}

	outPose := matched
	if isKey {
		outPose = e.store.Pose(keyframeID)
	}

	e.started = true
	e.lastStamp = in.Stamp
	e.lastPose = matched
	e.lastGuess = in.Initial
	e.hasGuess = in.OdomAvailable
	if in.IMUAvailable {
		e.lastIMU = pose.QuatFromEuler(in.IMURoll, in.IMUPitch, in.IMUYaw)
	}
	e.hasIMU = in.IMUAvailable

	states := e.track.Snapshot(e.est)
	objs := make([]ObjectDiagnostic, len(states))
	for i, st := range states {
		objs[i] = ObjectDiagnostic{ObjectState: st, Predicted: predict(st)}
	}

	return StepOutput{
		Stamp:       in.Stamp,
		Pose:        outPose,
		Incremental: e.incremental,
		Degenerate:  degenerate,
		Keyframe:    isKey,
		KeyframeID:  keyframeID,
		LoopClosed:  loopClosed,
		Path:        e.store.PoseSnapshot(),
		Objects:     objs,
		Diagnosis: StepDiagnosis{
			Detections:     sum.Detections,
			Matched:        sum.Matched,
			Births:         sum.Births,
			Retired:        sum.Retired,
			TightlyCoupled: sum.TightCount,
			Elapsed:        watch.Elapsed(),
		},
	}, true
}

// initialGuess chains the external odometry increment onto the last matched
// pose, falling back to the IMU attitude increment and then to the last
// pose.
func (e *Estimator) initialGuess(in FrameInput) pose.Pose {
	if !e.started {
		if in.OdomAvailable {
			return in.Initial
		}
		if in.IMUAvailable {
			return pose.Pose{R: pose.QuatFromEuler(in.IMURoll, in.IMUPitch, in.IMUYaw)}
		}
		return pose.Identity()
	}
	if in.OdomAvailable && e.hasGuess {
		return e.lastPose.Compose(e.lastGuess.Between(in.Initial))
	}
	if in.IMUAvailable && e.hasIMU {
		inc := e.lastIMU.Conj().Mul(pose.QuatFromEuler(in.IMURoll, in.IMUPitch, in.IMUYaw))
		return pose.Pose{R: e.lastPose.R.Mul(inc).Normalize(), T: e.lastPose.T}
	}
	return e.lastPose
}

func (e *Estimator) isKeyframe(p pose.Pose) bool {
	last, ok := e.store.Last()
	if !ok {
		return true
	}
	rel := last.Pose.Between(p)
	roll, pitch, yaw := rel.R.Euler()
	if math.Abs(roll) >= e.cfg.AddAngleThreshold ||
		math.Abs(pitch) >= e.cfg.AddAngleThreshold ||
		math.Abs(yaw) >= e.cfg.AddAngleThreshold {
		return true
	}
	return rel.T.Norm() >= e.cfg.AddDistThreshold
}

// submap assembles the local feature map around the latest keyframe,
// reusing per-keyframe transformed clouds from the cache.
func (e *Estimator) submap(stamp float64) *scanmatch.SubMap {
	last, _ := e.store.Last()
	ids := e.surroundingIDs(last.Pose.T, stamp)

	if len(e.cache) > submapCacheLimit {
		e.cache = make(map[int]cloudPair)
	}

	var edge, plane cloud.Cloud
	for _, id := range ids {
		cp, ok := e.cache[id]
		if !ok {
			kf := e.store.At(id)
			cp = cloudPair{
				edge:  kf.EdgeCloud.Transform(kf.Pose),
				plane: kf.PlaneCloud.Transform(kf.Pose),
			}
			e.cache[id] = cp
		}
		edge = edge.Append(cp.edge)
		plane = plane.Append(cp.plane)
	}
	edge = cloud.VoxelDownsample(edge, e.cfg.CornerLeafSize)
	plane = cloud.VoxelDownsample(plane, e.cfg.SurfLeafSize)
	return scanmatch.NewSubMap(edge, plane)
}

// surroundingIDs picks keyframes near the center thinned to one per density
// cell, plus everything from the recent span.
func (e *Estimator) surroundingIDs(center cloud.Point, stamp float64) []int {
	keep := make(map[int]bool)
	if e.cfg.Density > 0 {
		buckets := make(map[[3]int]int)
		for _, id := range e.store.Within(center, e.cfg.SearchRadius) {
			p := e.store.Pose(id).T
			k := [3]int{
				int(math.Floor(p.X / e.cfg.Density)),
				int(math.Floor(p.Y / e.cfg.Density)),
				int(math.Floor(p.Z / e.cfg.Density)),
			}
			if prev, ok := buckets[k]; !ok || id > prev {
				buckets[k] = id
			}
		}
		for _, id := range buckets {
			keep[id] = true
		}
	} else {
		for _, id := range e.store.Within(center, e.cfg.SearchRadius) {
			keep[id] = true
		}
	}
	for _, id := range e.store.Since(stamp - recentSubmapSpan) {
		keep[id] = true
	}

	ids := make([]int, 0, len(keep))
	for id := range keep {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// gpsFactor applies the GPS gating sequence and emits at most one prior per
// step. It reports whether a factor was added, which obliges the extra
// refinement sweeps and the pose rewrite.
func (e *Estimator) gpsFactor(stamp float64, key graph.Key, matched pose.Pose) bool {
	if e.travel <= gpsMinTravel {
		return false
	}
	if e.store.Len() >= 2 {
		prevKey := e.egoKeys[e.store.Len()-2]
		if cov, err := e.driver.Solver().MarginalCovariance(prevKey); err == nil {
			if cov.At(3, 3) < e.cfg.PoseCovThreshold && cov.At(4, 4) < e.cfg.PoseCovThreshold {
				return false
			}
		}
	}

	fix, ok := e.gpsQ.Pop(stamp)
	if !ok {
		return false
	}
	if noise := math.Max(fix.Var[0], fix.Var[1]); noise > e.cfg.GPSCovThreshold {
		logf("dropped gps fix at %.3f: variance %.2f", fix.Stamp, noise)
		return false
	}

	z, zVar := fix.P.Z, fix.Var[2]
	if !e.cfg.UseGPSElevation {
		z, zVar = matched.T.Z, gpsPinnedZVar
	}
	if fix.P.X == 0 && fix.P.Y == 0 {
		return false
	}
	p := pose.Vec3{X: fix.P.X, Y: fix.P.Y, Z: z}
	if e.hasGPS && p.Sub(e.lastGPS).Norm() < gpsMinSeparation {
		return false
	}

	vx := math.Max(fix.Var[0], gpsVarianceFloor)
	vy := math.Max(fix.Var[1], gpsVarianceFloor)
	vz := math.Max(zVar, gpsVarianceFloor)
	e.lastGPS = p
	e.hasGPS = true

	// The fix constrains translation only; the rotation block is left
	// effectively free.
	noise := graph.Variances([6]float64{1e4, 1e4, 1e4, vx, vy, vz})
	e.driver.AddMain(graph.NewPrior(key, pose.Pose{R: matched.R, T: p}, noise))
	logf("gps factor at keyframe %d", e.store.Len()-1)
	return true
}

// loopFactors drains the loop queue into between factors.
func (e *Estimator) loopFactors() bool {
	added := false
	for _, c := range e.loopQ.Drain() {
		if c.Cur < 0 || c.Cur >= len(e.egoKeys) || c.Pre < 0 || c.Pre >= len(e.egoKeys) {
			continue
		}
		sigma := math.Sqrt(math.Max(c.Noise, 1e-6))
		e.driver.AddMain(graph.NewBetween(
			e.egoKeys[c.Cur], e.egoKeys[c.Pre], c.Rel, graph.Isotropic(sigma)))
		logf("loop factor %d->%d", c.Cur, c.Pre)
		added = true
	}
	return added
}

// correctPoses refreshes keyframe poses from the solver estimate. A full
// rewrite flushes the sub-map cache since every cached cloud moved.
func (e *Estimator) correctPoses(full bool) {
	n := e.store.Len()
	if n == 0 {
		return
	}
	if full {
		for id := 0; id < n; id++ {
			if e.est.Has(e.egoKeys[id]) {
				e.store.SetPose(id, e.est.At(e.egoKeys[id]))
			}
		}
		e.cache = make(map[int]cloudPair)
		return
	}
	if e.est.Has(e.egoKeys[n-1]) {
		e.store.SetPose(n-1, e.est.At(e.egoKeys[n-1]))
	}
}

func joinDetections(ctx context.Context, job *detection.Job) ([]tracker.Detection, bool) {
	if job == nil {
		return nil, false
	}
	dets, ok := job.Join(ctx)
	if !ok {
		logf("detection service missed the step deadline")
	}
	return dets, ok
}

// predict extrapolates a track half a second along its body velocity.
func predict(st tracker.ObjectState) pose.Pose {
	xi := pose.Local(pose.Identity(), st.Velocity).Scale(predictionHorizon)
	return pose.Retract(st.Pose, xi)
}
