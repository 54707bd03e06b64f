package loop

import (
	"math"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

var logf = monitoring.Prefixed("loop")

// Config holds the candidate search and acceptance knobs.
type Config struct {
	SearchRadius     float64
	SearchNum        int
	SearchTimeDiff   float64
	FitnessThreshold float64
	// SubmapLeafSize downsamples the assembled history sub-map before ICP.
	SubmapLeafSize float64
}

// ConfigFromTuning extracts the loop closure knobs.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		SearchRadius:     t.GetHistoryKeyframeSearchRadius(),
		SearchNum:        t.GetHistoryKeyframeSearchNum(),
		SearchTimeDiff:   t.GetHistoryKeyframeSearchTimeDiff(),
		FitnessThreshold: t.GetHistoryKeyframeFitnessScore(),
		SubmapLeafSize:   t.GetMappingSurfLeafSize(),
	}
}

// CloudAt returns the sensor-frame feature clouds of a keyframe. The slices
// are read-only.
type CloudAt func(id int) (edge, plane cloud.Cloud)

// Detector matches the newest keyframe against spatially close, temporally
// distant history. It runs on pose/stamp snapshots so ICP never holds the
// estimator lock. Each keyframe can close at most one loop, ever.
type Detector struct {
	cfg  Config
	seen map[int]int
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, seen: make(map[int]int)}
}

// Detect searches for a loop closure for the newest keyframe in the
// snapshot. It returns false when there is no acceptable candidate.
func (d *Detector) Detect(poses []pose.Pose, stamps []float64, clouds CloudAt) (Candidate, bool) {
	cur, pre, ok := d.findPair(poses, stamps)
	if !ok {
		return Candidate{}, false
	}

	source := keyframeCloud(clouds, cur).Transform(poses[cur])
	target := d.historySubmap(poses, pre, clouds)

	icp := AlignICP(source, target, ICPConfig{
		MaxCorrespondenceDistance: 2 * d.cfg.SearchRadius,
		MaxIterations:             100,
	})
	if !icp.Converged || icp.Fitness > d.cfg.FitnessThreshold {
		logf("rejected %d->%d: converged=%v fitness=%.3f", cur, pre, icp.Converged, icp.Fitness)
		return Candidate{}, false
	}

	// The ICP result corrects the drifted world pose of cur.
	corrected := icp.Transform.Compose(poses[cur])
	d.seen[cur] = pre
	logf("accepted %d->%d fitness=%.3f", cur, pre, icp.Fitness)
	return Candidate{
		Cur:   cur,
		Pre:   pre,
		Rel:   corrected.Between(poses[pre]),
		Noise: icp.Fitness,
	}, true
}

// findPair picks the newest keyframe and the closest old-enough neighbour.
func (d *Detector) findPair(poses []pose.Pose, stamps []float64) (cur, pre int, ok bool) {
	n := len(poses)
	if n == 0 {
		return 0, 0, false
	}
	cur = n - 1
	if _, dup := d.seen[cur]; dup {
		return 0, 0, false
	}

	best := -1
	bestDist := math.Inf(1)
	for id := 0; id < n-1; id++ {
		if math.Abs(stamps[id]-stamps[cur]) < d.cfg.SearchTimeDiff {
			continue
		}
		dist := poses[id].T.Sub(poses[cur].T).Norm()
		if dist <= d.cfg.SearchRadius && dist < bestDist {
			best, bestDist = id, dist
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return cur, best, true
}

// historySubmap assembles the world-frame feature cloud around pre.
func (d *Detector) historySubmap(poses []pose.Pose, pre int, clouds CloudAt) cloud.Cloud {
	var out cloud.Cloud
	for id := pre - d.cfg.SearchNum; id <= pre+d.cfg.SearchNum; id++ {
		if id < 0 || id >= len(poses) {
			continue
		}
		out = out.Append(keyframeCloud(clouds, id).Transform(poses[id]))
	}
	if d.cfg.SubmapLeafSize > 0 {
		out = cloud.VoxelDownsample(out, d.cfg.SubmapLeafSize)
	}
	return out
}

func keyframeCloud(clouds CloudAt, id int) cloud.Cloud {
	edge, plane := clouds(id)
	return edge.Append(plane)
}
