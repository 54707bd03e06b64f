package loop

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// ICPConfig bounds the point-to-point alignment.
type ICPConfig struct {
	MaxCorrespondenceDistance float64
	MaxIterations             int
}

// ICPResult reports the source-to-target transform and the mean squared
// correspondence distance after alignment.
type ICPResult struct {
	Transform  pose.Pose
	Fitness    float64
	Converged  bool
	Iterations int
}

const icpEpsilon = 1e-6

// AlignICP estimates the rigid transform that maps source onto target by
// iterated nearest-neighbour association and closed-form SVD alignment.
func AlignICP(source, target cloud.Cloud, cfg ICPConfig) ICPResult {
	res := ICPResult{Transform: pose.Identity(), Fitness: math.Inf(1)}
	if len(source) < 3 || len(target) < 3 {
		return res
	}

	tree := cloud.NewKDTree(target)
	maxSq := cfg.MaxCorrespondenceDistance * cfg.MaxCorrespondenceDistance
	current := source.Transform(pose.Identity())

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var src, tgt cloud.Cloud
		for _, p := range current {
			ids, d2 := tree.NearestK(p, 1)
			if len(ids) == 1 && d2[0] <= maxSq {
				src = append(src, p)
				tgt = append(tgt, target[ids[0]])
			}
		}
		if len(src) < 3 {
			return res
		}

		delta := rigidAlign(src, tgt)
		res.Transform = delta.Compose(res.Transform)
		current = current.Transform(delta)
		res.Iterations = iter + 1

		step := pose.Local(pose.Identity(), delta)
		var norm float64
		for _, x := range step {
			norm += x * x
		}
		if math.Sqrt(norm) < icpEpsilon {
			res.Converged = true
			break
		}
	}

	res.Fitness = fitness(current, tree, maxSq)
	return res
}

// fitness is the mean squared distance over matched points, infinity when
// nothing matches.
func fitness(current cloud.Cloud, tree *cloud.KDTree, maxSq float64) float64 {
	var sum float64
	var n int
	for _, p := range current {
		ids, d2 := tree.NearestK(p, 1)
		if len(ids) == 1 && d2[0] <= maxSq {
			sum += d2[0]
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}

// rigidAlign solves the paired point registration in closed form.
func rigidAlign(src, tgt cloud.Cloud) pose.Pose {
	cs := src.Centroid()
	ct := tgt.Centroid()

	h := mat.NewDense(3, 3, nil)
	for i := range src {
		s := src[i].Sub(cs)
		t := tgt[i].Sub(ct)
		sv := []float64{s.X, s.Y, s.Z}
		tv := []float64{t.X, t.Y, t.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+sv[r]*tv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return pose.Identity()
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	q := quatFromMatrix(&r)
	return pose.Pose{R: q, T: ct.Sub(q.Rotate(cs))}
}

// quatFromMatrix converts a proper rotation matrix to a unit quaternion.
func quatFromMatrix(r *mat.Dense) pose.Quat {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	var q pose.Quat
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = pose.Quat{
			W: s / 4,
			X: (r.At(2, 1) - r.At(1, 2)) / s,
			Y: (r.At(0, 2) - r.At(2, 0)) / s,
			Z: (r.At(1, 0) - r.At(0, 1)) / s,
		}
	case r.At(0, 0) > r.At(1, 1) && r.At(0, 0) > r.At(2, 2):
		s := math.Sqrt(1+r.At(0, 0)-r.At(1, 1)-r.At(2, 2)) * 2
		q = pose.Quat{
			W: (r.At(2, 1) - r.At(1, 2)) / s,
			X: s / 4,
			Y: (r.At(0, 1) + r.At(1, 0)) / s,
			Z: (r.At(0, 2) + r.At(2, 0)) / s,
		}
	case r.At(1, 1) > r.At(2, 2):
		s := math.Sqrt(1+r.At(1, 1)-r.At(0, 0)-r.At(2, 2)) * 2
		q = pose.Quat{
			W: (r.At(0, 2) - r.At(2, 0)) / s,
			X: (r.At(0, 1) + r.At(1, 0)) / s,
			Y: s / 4,
			Z: (r.At(1, 2) + r.At(2, 1)) / s,
		}
	default:
		s := math.Sqrt(1+r.At(2, 2)-r.At(0, 0)-r.At(1, 1)) * 2
		q = pose.Quat{
			W: (r.At(1, 0) - r.At(0, 1)) / s,
			X: (r.At(0, 2) + r.At(2, 0)) / s,
			Y: (r.At(1, 2) + r.At(2, 1)) / s,
			Z: s / 4,
		}
	}
	return q.Normalize()
}
