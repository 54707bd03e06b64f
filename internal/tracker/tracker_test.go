package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fgtrack.report/internal/graph"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

func testConfig() Config {
	return Config{
		LostSteps:        2,
		PreLooseSteps:    2,
		InterLooseSteps:  1,
		EarlySteps:       1,
		ConsistencySteps: 2,

		DetectionMatchThreshold:     25,
		TightCouplingErrorThreshold: 16,
		AngularConsistencyVariance:  0.5,
		LinearConsistencyVariance:   2.0,

		TightDetectionNoise:        graph.Isotropic(0.1),
		LooseDetectionNoise:        graph.Isotropic(0.1),
		EarlyMatchingNoise:         graph.Isotropic(1),
		MatchingNoise:              graph.Isotropic(1),
		TightMatchingNoise:         graph.Isotropic(0.5),
		AssociationNoise:           graph.Isotropic(2),
		MotionNoise:                graph.Isotropic(0.1),
		ConstantVelocityNoise:      graph.Isotropic(1),
		EarlyConstantVelocityNoise: graph.Isotropic(3),
		InitialVelocityPriorNoise:  graph.Variances(initialVelocityPriorVariance),
	}
}

// harness wires a tracker to a real solver so steps exercise the full
// emit-solve-readback cycle.
type harness struct {
	tracker *Tracker
	driver  *graph.Driver
	egoKey  graph.Key
	est     graph.Values
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	alloc := graph.NewAllocator()
	driver := graph.NewDriver(graph.NewSolver(graph.DefaultParams()))

	egoKey := alloc.Next()
	driver.AddMain(graph.NewPrior(egoKey, pose.Identity(), graph.Isotropic(1e-3)))
	driver.InsertMain(egoKey, pose.Identity())

	return &harness{
		tracker: New(cfg, alloc),
		driver:  driver,
		egoKey:  egoKey,
		est:     graph.NewValues(),
	}
}

func (h *harness) step(t *testing.T, dt float64, dets []Detection, active bool) StepSummary {
	t.Helper()
	sum := h.tracker.Step(StepInput{
		Dt:              dt,
		EgoPose:         pose.Identity(),
		EgoKey:          h.egoKey,
		Detections:      dets,
		DetectionActive: active,
	}, h.driver, h.est)
	require.NoError(t, h.driver.Step(false))
	h.est = h.driver.Solver().Estimate()
	h.tracker.ReadBack(h.est)
	return sum
}

func detAt(x float64) Detection {
	return Detection{Pose: pose.FromEuler(x, 0, 0, 0, 0, 0), Score: 0.9}
}

func TestBirthOnUnmatchedDetection(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())

	sum := h.step(t, 0.1, []Detection{detAt(10)}, true)
	assert.Equal(t, 1, sum.Births)
	assert.Equal(t, 0, sum.Matched)
	require.Equal(t, 1, h.tracker.Len())

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	assert.Equal(t, 0, states[0].ObjectIndex)
	assert.Equal(t, 0, states[0].TrackingIndex)
	assert.InDelta(t, 10.0, states[0].Pose.T.X, 0.1)
	assert.InDelta(t, 0.0, states[0].Velocity.T.Norm(), 1e-6)
}

func TestVelocityFromDisplacement(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())

	h.step(t, 0.1, []Detection{detAt(10.0)}, true)
	sum := h.step(t, 0.1, []Detection{detAt(10.1)}, true)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 0, sum.Births)

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	// 0.1 m over 0.1 s.
	assert.InDelta(t, 1.0, states[0].Velocity.T.X, 0.05)
}

func TestPromotionToTightCoupling(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	h := newHarness(t, cfg)

	var tightAt int
	for i := 0; i < 8; i++ {
		x := 10.0 + 0.1*float64(i)
		sum := h.step(t, 0.1, []Detection{detAt(x)}, true)

		for _, st := range h.tracker.Snapshot(h.est) {
			assert.GreaterOrEqual(t, st.TrackScore, 0)
			assert.LessOrEqual(t, st.TrackScore, cfg.PreLooseSteps+1)
		}
		if sum.TightEvent && tightAt == 0 {
			tightAt = i
		}
	}
	require.NotZero(t, tightAt, "track never promoted")
	// Score reaches P+1 on the third match after birth.
	assert.Equal(t, 3, tightAt)

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	assert.True(t, states[0].Tight)
	assert.False(t, math.IsNaN(states[0].DetectionError))
	assert.Equal(t, 0, states[0].SelectedDetection)
}

func TestDemotionOnDisplacedDetection(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	h := newHarness(t, cfg)

	for i := 0; i < 4; i++ {
		h.step(t, 0.1, []Detection{detAt(10.0 + 0.1*float64(i))}, true)
	}
	require.True(t, h.tracker.Snapshot(h.est)[0].Tight)

	// Displaced past the tight gate but still inside the match gate.
	sum := h.step(t, 0.1, []Detection{detAt(10.4 + 4.0)}, true)
	assert.False(t, sum.TightEvent)
	assert.Equal(t, 1, sum.Matched)

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	assert.False(t, states[0].Tight)
	assert.Equal(t, cfg.PreLooseSteps+1-cfg.InterLooseSteps, states[0].TrackScore)
}

func TestRetirementAndIdentityInheritance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())

	h.step(t, 0.1, []Detection{detAt(10)}, true)

	// Two empty steps leave the track lost but alive.
	h.step(t, 0.1, nil, true)
	sum := h.step(t, 0.1, nil, true)
	assert.Equal(t, 1, sum.Lost)
	require.Equal(t, 1, h.tracker.Len())
	assert.Equal(t, 2, h.tracker.Snapshot(h.est)[0].LostCount)

	// The reappearing detection takes over the identity; the old track is
	// retired, a fresh object index is allocated.
	sum = h.step(t, 0.1, []Detection{detAt(10)}, true)
	assert.Equal(t, 1, sum.Retired)
	assert.Equal(t, 1, sum.Births)
	require.Equal(t, 1, h.tracker.Len())

	states := h.tracker.Snapshot(h.est)
	assert.Equal(t, 1, states[0].ObjectIndex)
	assert.Equal(t, 0, states[0].TrackingIndex)
	assert.Equal(t, 0, states[0].LostCount)
}

func TestRetiredTrackNeverReturns(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	h := newHarness(t, cfg)

	h.step(t, 0.1, []Detection{detAt(10)}, true)
	for i := 0; i <= cfg.LostSteps+1; i++ {
		h.step(t, 0.1, nil, true)
	}
	assert.Equal(t, 0, h.tracker.Len())

	// A detection far from the dead track's haunt births a clean identity.
	sum := h.step(t, 0.1, []Detection{detAt(50)}, true)
	assert.Equal(t, 1, sum.Births)
	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	assert.Equal(t, 1, states[0].TrackingIndex)
}

func TestDetectionOutageIncrementsLost(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())

	h.step(t, 0.1, []Detection{detAt(10)}, true)

	// Service down: the provided detections must be ignored.
	sum := h.step(t, 0.1, []Detection{detAt(10)}, false)
	assert.Equal(t, 0, sum.Births)
	assert.Equal(t, 0, sum.Matched)
	assert.Equal(t, 1, sum.Lost)

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 1)
	assert.Equal(t, 1, states[0].LostCount)
	assert.Equal(t, 0.0, states[0].Confidence)
	assert.Equal(t, 0, states[0].TrackScore)
}

func TestAmbiguousAssociationPicksLowerError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())

	h.step(t, 0.1, []Detection{detAt(10)}, true)

	// Both detections gate on the track; the closer one wins, the other
	// births its own track.
	sum := h.step(t, 0.1, []Detection{detAt(10.2), detAt(10.0)}, true)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 1, sum.Births)

	states := h.tracker.Snapshot(h.est)
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[0].SelectedDetection)
}

func TestVelocityConsistencyGate(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	alloc := graph.NewAllocator()
	tk := New(cfg, alloc)

	est := graph.NewValues()
	steady := pose.FromEuler(1, 0, 0, 0, 0, 0)
	k1, k2 := alloc.Next(), alloc.Next()
	est.Insert(k1, steady)
	est.Insert(k2, steady)

	tr := &Track{velocityKeys: keyRing{cap: cfg.ConsistencySteps}}
	tr.velocityKeys.push(k1)
	assert.False(t, tk.velocityConsistent(tr, est), "needs K samples")

	tr.velocityKeys.push(k2)
	assert.True(t, tk.velocityConsistent(tr, est))

	// A wildly different second sample fails the test.
	est.Insert(k2, pose.FromEuler(8, 0, 0, 0, 0, 0))
	assert.False(t, tk.velocityConsistent(tr, est))

	// Missing estimates are treated as inconsistent.
	est.Erase(k1)
	assert.False(t, tk.velocityConsistent(tr, est))
}

func TestKeyRingBounded(t *testing.T) {
	t.Parallel()
	r := keyRing{cap: 3}
	for i := 0; i < 10; i++ {
		r.push(graph.Key(i))
	}
	assert.Equal(t, []graph.Key{7, 8, 9}, r.items())
}
