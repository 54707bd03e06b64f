package estimator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/gps"
	"github.com/banshee-data/fgtrack.report/internal/loop"
	"github.com/banshee-data/fgtrack.report/internal/pose"
	"github.com/banshee-data/fgtrack.report/internal/tracker"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }
func sptr(v string) *string   { return &v }

func testTuning() *config.TuningConfig {
	return &config.TuningConfig{
		EdgeFeatureMinValidNum:          iptr(5),
		SurfFeatureMinValidNum:          iptr(5),
		MappingCornerLeafSize:           fptr(0.1),
		MappingSurfLeafSize:             fptr(0.1),
		SurroundingKeyframeSearchRadius: fptr(50),
		SurroundingKeyframeDensity:      fptr(2.0),

		AddDistThreshold:       fptr(1.0),
		AddAngleThreshold:      fptr(0.2),
		MappingProcessInterval: fptr(0.15),

		PriorOdometryVariance: []float64{1e-4, 1e-4, 1e-4, 1e-4, 1e-4, 1e-4},

		SimultaneousTracking:    bptr(true),
		DetectionTimeout:        sptr("200ms"),
		DetectionMatchThreshold: fptr(25),

		PoseCovThreshold: fptr(0.0),
		GPSCovThreshold:  fptr(2.0),

		LoopClosureEnabled: bptr(false),
		GlobalMapInterval:  sptr("5s"),
	}
}

// worldClouds is a static scene observed from a sensor two meters above the
// ground: a ground grid and a wall as planar features, vertical poles as
// edge features. Nothing passes through the origin, so the plane fits stay
// well conditioned.
func worldClouds() (edge, plane cloud.Cloud) {
	for x := -5.0; x <= 5.0; x += 0.5 {
		for y := -5.0; y <= 5.0; y += 0.5 {
			plane = append(plane, cloud.Point{X: x, Y: y, Z: -2})
		}
	}
	for x := -5.0; x <= 5.0; x += 0.5 {
		for z := -2.0; z <= 2.0; z += 0.5 {
			plane = append(plane, cloud.Point{X: x, Y: 6, Z: z})
		}
	}
	poles := []cloud.Point{
		{X: -4, Y: -4}, {X: 4, Y: -4}, {X: -4, Y: 4},
		{X: 4, Y: 4}, {X: 0, Y: -4}, {X: 5, Y: 0},
	}
	for _, p := range poles {
		for z := -2.0; z <= 2.0; z += 0.2 {
			edge = append(edge, cloud.Point{X: p.X, Y: p.Y, Z: z})
		}
	}
	return edge, plane
}

func frameAt(stamp float64, p pose.Pose) FrameInput {
	edge, plane := worldClouds()
	inv := p.Inverse()
	return FrameInput{
		Stamp:         stamp,
		Edge:          edge.Transform(inv),
		Plane:         plane.Transform(inv),
		Raw:           plane.Transform(inv),
		OdomAvailable: true,
		Initial:       p,
	}
}

func drive(t *testing.T, e *Estimator, stamps []float64, xs []float64) []StepOutput {
	t.Helper()
	outs := make([]StepOutput, 0, len(xs))
	for i := range xs {
		out, ok := e.Step(context.Background(), frameAt(stamps[i], pose.FromEuler(xs[i], 0, 0, 0, 0, 0)))
		require.True(t, ok)
		outs = append(outs, out)
	}
	return outs
}

func TestFirstFrameIsKeyframe(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	out, ok := e.Step(context.Background(), frameAt(0, pose.Identity()))
	require.True(t, ok)

	assert.True(t, out.Keyframe)
	assert.Equal(t, 0, out.KeyframeID)
	assert.InDelta(t, 0, out.Pose.T.Norm(), 1e-6)
	assert.Equal(t, 1, e.Keyframes())
	assert.Len(t, out.Path, 1)
}

func TestThrottleSkipsCloseFrames(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	_, ok := e.Step(context.Background(), frameAt(0, pose.Identity()))
	require.True(t, ok)

	_, ok = e.Step(context.Background(), frameAt(0.01, pose.Identity()))
	assert.False(t, ok)
}

func TestDriveCreatesKeyframes(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	outs := drive(t, e, []float64{0, 1, 2}, []float64{0, 2, 4})

	assert.Equal(t, 3, e.Keyframes())
	for i, out := range outs {
		assert.True(t, out.Keyframe)
		assert.InDelta(t, float64(2*i), out.Pose.T.X, 0.1, "keyframe %d", i)
	}

	// A short hop stays below both keyframe thresholds.
	out, ok := e.Step(context.Background(), frameAt(3, pose.FromEuler(4.2, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.False(t, out.Keyframe)
	assert.Equal(t, -1, out.KeyframeID)
	assert.Equal(t, 3, e.Keyframes())
}

func TestIncrementalOdometryChains(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	outs := drive(t, e, []float64{0, 1, 2}, []float64{0, 2, 4})
	assert.InDelta(t, 4, outs[2].Incremental.T.X, 0.2)
}

func TestGPSFactorGating(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)

	// Travel stays at or below the activation distance for the first
	// three keyframes, so an early fix is never consumed.
	e.GPSQueue().Push(gps.Fix{Stamp: 1, P: pose.Vec3{X: 2}, Var: [3]float64{1, 1, 4}})
	outs := drive(t, e, []float64{0, 1, 2}, []float64{0, 2, 4})
	for _, out := range outs {
		assert.False(t, out.LoopClosed)
	}

	// Past five meters of travel the in-window fix is accepted.
	e.GPSQueue().Push(gps.Fix{Stamp: 3, P: pose.Vec3{X: 6.5, Y: 0.5}, Var: [3]float64{1, 1, 4}})
	out, ok := e.Step(context.Background(), frameAt(3, pose.FromEuler(6, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.True(t, out.LoopClosed)

	// A fix at the origin is rejected.
	e.GPSQueue().Push(gps.Fix{Stamp: 4, P: pose.Vec3{}, Var: [3]float64{1, 1, 4}})
	out, ok = e.Step(context.Background(), frameAt(4, pose.FromEuler(8, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.False(t, out.LoopClosed)

	// A noisy fix is rejected.
	e.GPSQueue().Push(gps.Fix{Stamp: 5, P: pose.Vec3{X: 12}, Var: [3]float64{9, 9, 9}})
	out, ok = e.Step(context.Background(), frameAt(5, pose.FromEuler(10, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.False(t, out.LoopClosed)
}

func TestLoopFactorFromQueue(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	drive(t, e, []float64{0, 1, 2}, []float64{0, 2, 4})

	p0 := pose.Identity()
	p2 := pose.FromEuler(4, 0, 0, 0, 0, 0)
	e.LoopQueue().Push(loop.Candidate{Cur: 2, Pre: 0, Rel: p2.Between(p0), Noise: 0.1})

	out, ok := e.Step(context.Background(), frameAt(3, pose.FromEuler(6, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.True(t, out.LoopClosed)
	assert.InDelta(t, 0, out.Path[0].T.Norm(), 0.1)
}

func TestLoopFactorRejectsUnknownKeyframes(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	drive(t, e, []float64{0, 1}, []float64{0, 2})

	e.LoopQueue().Push(loop.Candidate{Cur: 99, Pre: 0, Rel: pose.Identity(), Noise: 0.1})
	out, ok := e.Step(context.Background(), frameAt(2, pose.FromEuler(4, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	assert.False(t, out.LoopClosed)
}

type serviceFunc func(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error)

func (f serviceFunc) Detect(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error) {
	return f(ctx, stamp, raw)
}

func staticDetector(p pose.Pose) serviceFunc {
	return func(context.Context, float64, cloud.Cloud) ([]tracker.Detection, error) {
		return []tracker.Detection{{
			Pose:       p,
			Dimensions: pose.Vec3{X: 4, Y: 2, Z: 1.5},
			Label:      "car",
			Score:      0.9,
		}}, nil
	}
}

func TestDetectionBirthsTrack(t *testing.T) {
	t.Parallel()
	det := pose.FromEuler(3, 1, -1, 0, 0, 0)
	e := New(testTuning(), staticDetector(det))

	out, ok := e.Step(context.Background(), frameAt(0, pose.Identity()))
	require.True(t, ok)

	assert.Equal(t, 1, out.Diagnosis.Detections)
	assert.Equal(t, 1, out.Diagnosis.Births)
	require.Len(t, out.Objects, 1)
	assert.InDelta(t, 3, out.Objects[0].Pose.T.X, 0.1)
	assert.Equal(t, 0, out.Objects[0].ObjectIndex)
}

func TestNonKeyframeStepStillTracks(t *testing.T) {
	t.Parallel()
	det := pose.FromEuler(3, 1, -1, 0, 0, 0)
	e := New(testTuning(), staticDetector(det))

	_, ok := e.Step(context.Background(), frameAt(0, pose.Identity()))
	require.True(t, ok)

	out, ok := e.Step(context.Background(), frameAt(1, pose.FromEuler(0.2, 0, 0, 0, 0, 0)))
	require.True(t, ok)

	assert.False(t, out.Keyframe)
	assert.Equal(t, 1, e.Keyframes())
	require.Len(t, out.Objects, 1)
	assert.Equal(t, 1, out.Diagnosis.Matched)
	// Same world object seen from the pinned keyframe.
	assert.InDelta(t, 3, out.Objects[0].Pose.T.X, 0.3)
}

func TestDetectionOutageMarksTracksLost(t *testing.T) {
	t.Parallel()
	det := pose.FromEuler(3, 1, -1, 0, 0, 0)
	calls := 0
	svc := serviceFunc(func(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error) {
		calls++
		if calls > 1 {
			return nil, context.DeadlineExceeded
		}
		return staticDetector(det)(ctx, stamp, raw)
	})
	e := New(testTuning(), svc)

	_, ok := e.Step(context.Background(), frameAt(0, pose.Identity()))
	require.True(t, ok)

	out, ok := e.Step(context.Background(), frameAt(1, pose.FromEuler(2, 0, 0, 0, 0, 0)))
	require.True(t, ok)
	require.Len(t, out.Objects, 1)
	assert.Equal(t, 1, out.Objects[0].LostCount)
	assert.Equal(t, 0.0, out.Objects[0].Confidence)
}

func TestSearchLoopQuietOnShortDrive(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	drive(t, e, []float64{0, 1, 2}, []float64{0, 2, 4})

	// All keyframes are inside the time-separation exclusion window.
	e.SearchLoop()
	assert.Equal(t, 0, e.LoopQueue().Len())
}

func TestGlobalMapSnapshot(t *testing.T) {
	t.Parallel()
	e := New(testTuning(), nil)
	assert.Empty(t, e.GlobalMap())

	drive(t, e, []float64{0, 1}, []float64{0, 2})
	e.RefreshGlobalMap()
	assert.NotEmpty(t, e.GlobalMap())
}

func TestWorkersShutdown(t *testing.T) {
	t.Parallel()
	cfg := testTuning()
	cfg.LoopClosureEnabled = bptr(true)
	cfg.LoopClosureFrequency = fptr(50)
	cfg.GlobalMapInterval = sptr("20ms")
	e := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wait := e.StartWorkers(ctx)
	cancel()
	wait()
}
