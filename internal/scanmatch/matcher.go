// Package scanmatch aligns the current sweep's edge and planar features
// against a local sub-map with an iterative least-squares solver. It detects
// degenerate geometry at the first iteration and projects later updates onto
// the well-constrained subspace.
package scanmatch

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

const (
	maxIterations     = 30
	neighborCount     = 5
	neighborMaxSqDist = 1.0
	planeMaxResidual  = 0.2
	weightFloor       = 0.1
	minSelected       = 50
	eigenThreshold    = 100.0
	convergenceRotDeg = 0.05
	convergenceTransC = 0.05 // translation scaled by 100
)

// Config carries the matcher knobs.
type Config struct {
	EdgeFeatureMinValidNum int
	SurfFeatureMinValidNum int
	RotationTolerance      float64
	ZTolerance             float64
	IMURPYWeight           float64
}

// ConfigFromTuning builds a matcher config from the tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		EdgeFeatureMinValidNum: t.GetEdgeFeatureMinValidNum(),
		SurfFeatureMinValidNum: t.GetSurfFeatureMinValidNum(),
		RotationTolerance:      t.GetRotationTolerance(),
		ZTolerance:             t.GetZTolerance(),
		IMURPYWeight:           t.GetIMURPYWeight(),
	}
}

// SubMap is the locally assembled, downsampled map the sweep is matched
// against, with prebuilt spatial indexes.
type SubMap struct {
	Edge  cloud.Cloud
	Plane cloud.Cloud

	edgeTree  *cloud.KDTree
	planeTree *cloud.KDTree
}

// NewSubMap indexes the given feature clouds.
func NewSubMap(edge, plane cloud.Cloud) *SubMap {
	return &SubMap{
		Edge:      edge,
		Plane:     plane,
		edgeTree:  cloud.NewKDTree(edge),
		planeTree: cloud.NewKDTree(plane),
	}
}

// Result reports the outcome of one alignment.
type Result struct {
	Pose            pose.Pose
	Degenerate      bool
	Converged       bool
	Iterations      int
	Correspondences int
}

// Matcher runs scan-to-map alignment.
type Matcher struct {
	cfg   Config
	warnf func(format string, v ...interface{})
}

// New returns a matcher with the given config.
func New(cfg Config) *Matcher {
	return &Matcher{cfg: cfg, warnf: monitoring.Prefixed("scanmatch")}
}

// transform mirrors the estimator's Euler state: roll, pitch, yaw, x, y, z.
type transform [6]float64

func transformFromPose(p pose.Pose) transform {
	x, y, z, r, pt, yw := p.Euler()
	return transform{r, pt, yw, x, y, z}
}

func (t transform) pose() pose.Pose {
	return pose.FromEuler(t[3], t[4], t[5], t[0], t[1], t[2])
}

// correspondence is one selected residual: the feature point in the sensor
// frame, the unit descent direction in the map frame, and the weighted
// distance value.
type correspondence struct {
	point cloud.Point
	coeff cloud.Point
	value float64
}

// Align matches the downsampled feature clouds against the sub-map starting
// from the initial pose guess. The returned pose is the initial guess when
// there are too few features or correspondences to optimize.
func (m *Matcher) Align(edge, plane cloud.Cloud, initial pose.Pose, sm *SubMap) Result {
	res := Result{Pose: initial}
	if len(edge) < m.cfg.EdgeFeatureMinValidNum || len(plane) < m.cfg.SurfFeatureMinValidNum {
		m.warnf("not enough features: %d edge, %d planar", len(edge), len(plane))
		return res
	}
	if sm.edgeTree.Len() < neighborCount || sm.planeTree.Len() < neighborCount {
		m.warnf("sub-map too sparse: %d edge, %d planar", sm.edgeTree.Len(), sm.planeTree.Len())
		return res
	}

	state := transformFromPose(initial)
	var degenerate bool
	var projection *mat.Dense

	for iter := 0; iter < maxIterations; iter++ {
		cur := state.pose()
		var sel []correspondence
		sel = appendEdgeCorrespondences(sel, edge, cur, sm)
		sel = appendPlaneCorrespondences(sel, plane, cur, sm)
		res.Correspondences = len(sel)
		res.Iterations = iter + 1

		if len(sel) < minSelected {
			if iter == 0 {
				m.warnf("only %d correspondences, keeping previous pose", len(sel))
				return res
			}
			break
		}

		delta, isDeg, proj := solveStep(state, sel, iter == 0, projection)
		if iter == 0 {
			degenerate = isDeg
			projection = proj
		}

		for i := 0; i < 6; i++ {
			state[i] += delta[i]
		}

		deltaR := math.Sqrt(
			math.Pow(rad2deg(delta[0]), 2) +
				math.Pow(rad2deg(delta[1]), 2) +
				math.Pow(rad2deg(delta[2]), 2))
		deltaT := math.Sqrt(delta[3]*delta[3]+delta[4]*delta[4]+delta[5]*delta[5]) * 100

		if deltaR < convergenceRotDeg && deltaT < convergenceTransC {
			res.Converged = true
			break
		}
	}

	res.Pose = state.pose()
	res.Degenerate = degenerate
	if degenerate {
		m.warnf("degenerate geometry detected")
	}
	return res
}

func rad2deg(r float64) float64 { return r * 180 / math.Pi }

func appendEdgeCorrespondences(sel []correspondence, edge cloud.Cloud, cur pose.Pose, sm *SubMap) []correspondence {
	for _, p := range edge {
		po := cur.TransformPoint(p)
		idx, d2 := sm.edgeTree.NearestK(po, neighborCount)
		if len(idx) < neighborCount || d2[neighborCount-1] >= neighborMaxSqDist {
			continue
		}

		// Covariance of the five neighbors.
		var cx, cy, cz float64
		for _, j := range idx {
			n := sm.Edge[j]
			cx += n.X
			cy += n.Y
			cz += n.Z
		}
		cx /= neighborCount
		cy /= neighborCount
		cz /= neighborCount

		var a11, a12, a13, a22, a23, a33 float64
		for _, j := range idx {
			n := sm.Edge[j]
			ax, ay, az := n.X-cx, n.Y-cy, n.Z-cz
			a11 += ax * ax
			a12 += ax * ay
			a13 += ax * az
			a22 += ay * ay
			a23 += ay * az
			a33 += az * az
		}
		cov := mat.NewSymDense(3, []float64{
			a11 / neighborCount, a12 / neighborCount, a13 / neighborCount,
			a12 / neighborCount, a22 / neighborCount, a23 / neighborCount,
			a13 / neighborCount, a23 / neighborCount, a33 / neighborCount,
		})
		var eig mat.EigenSym
		if !eig.Factorize(cov, true) {
			continue
		}
		vals := eig.Values(nil)
		if vals[2] <= 3*vals[1] {
			continue
		}
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		dir := cloud.Point{X: vecs.At(0, 2), Y: vecs.At(1, 2), Z: vecs.At(2, 2)}

		x1 := cloud.Point{X: cx + 0.1*dir.X, Y: cy + 0.1*dir.Y, Z: cz + 0.1*dir.Z}
		x2 := cloud.Point{X: cx - 0.1*dir.X, Y: cy - 0.1*dir.Y, Z: cz - 0.1*dir.Z}

		d01 := po.Sub(x1)
		d02 := po.Sub(x2)
		d12 := x1.Sub(x2)
		crossV := d01.Cross(d02)
		a012 := crossV.Norm()
		l12 := d12.Norm()
		if l12 == 0 || a012 == 0 {
			continue
		}

		la := (d12.Y*(d01.X*d02.Y-d02.X*d01.Y) + d12.Z*(d01.X*d02.Z-d02.X*d01.Z)) / (a012 * l12)
		lb := -(d12.X*(d01.X*d02.Y-d02.X*d01.Y) - d12.Z*(d01.Y*d02.Z-d02.Y*d01.Z)) / (a012 * l12)
		lc := -(d12.X*(d01.X*d02.Z-d02.X*d01.Z) + d12.Y*(d01.Y*d02.Z-d02.Y*d01.Z)) / (a012 * l12)

		ld2 := a012 / l12
		s := 1 - 0.9*math.Abs(ld2)
		if s <= weightFloor {
			continue
		}
		sel = append(sel, correspondence{
			point: p,
			coeff: cloud.Point{X: s * la, Y: s * lb, Z: s * lc},
			value: s * ld2,
		})
	}
	return sel
}

func appendPlaneCorrespondences(sel []correspondence, plane cloud.Cloud, cur pose.Pose, sm *SubMap) []correspondence {
	b := mat.NewVecDense(neighborCount, []float64{-1, -1, -1, -1, -1})
	for _, p := range plane {
		po := cur.TransformPoint(p)
		idx, d2 := sm.planeTree.NearestK(po, neighborCount)
		if len(idx) < neighborCount || d2[neighborCount-1] >= neighborMaxSqDist {
			continue
		}

		a := mat.NewDense(neighborCount, 3, nil)
		for r, j := range idx {
			n := sm.Plane[j]
			a.Set(r, 0, n.X)
			a.Set(r, 1, n.Y)
			a.Set(r, 2, n.Z)
		}
		var x mat.VecDense
		if err := x.SolveVec(a, b); err != nil {
			continue
		}
		pa, pb, pc := x.AtVec(0), x.AtVec(1), x.AtVec(2)
		pd := 1.0
		ps := math.Sqrt(pa*pa + pb*pb + pc*pc)
		if ps == 0 {
			continue
		}
		pa /= ps
		pb /= ps
		pc /= ps
		pd /= ps

		valid := true
		for _, j := range idx {
			n := sm.Plane[j]
			if math.Abs(pa*n.X+pb*n.Y+pc*n.Z+pd) > planeMaxResidual {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		pd2 := pa*po.X + pb*po.Y + pc*po.Z + pd
		s := 1 - 0.9*math.Abs(pd2)/math.Sqrt(po.Norm())
		if s <= weightFloor {
			continue
		}
		sel = append(sel, correspondence{
			point: p,
			coeff: cloud.Point{X: s * pa, Y: s * pb, Z: s * pc},
			value: s * pd2,
		})
	}
	return sel
}

// solveStep assembles and solves the Gauss-Newton normal equations in the
// camera-aligned chart and returns the state delta. At the first iteration it
// also eigen-checks AᵀA: directions below the eigenvalue threshold are
// projected out of this and every later update.
func solveStep(state transform, sel []correspondence, firstIter bool, projection *mat.Dense) (delta transform, degenerate bool, proj *mat.Dense) {
	srx := math.Sin(state[1])
	crx := math.Cos(state[1])
	sry := math.Sin(state[2])
	cry := math.Cos(state[2])
	srz := math.Sin(state[0])
	crz := math.Cos(state[0])

	n := len(sel)
	matA := mat.NewDense(n, 6, nil)
	matB := mat.NewVecDense(n, nil)
	for i, c := range sel {
		// Sensor axes are remapped to the historical camera chart.
		px, py, pz := c.point.Y, c.point.Z, c.point.X
		cx, cy, cz := c.coeff.Y, c.coeff.Z, c.coeff.X

		arx := (crx*sry*srz*px+crx*crz*sry*py-srx*sry*pz)*cx +
			(-srx*srz*px-crz*srx*py-crx*pz)*cy +
			(crx*cry*srz*px+crx*cry*crz*py-cry*srx*pz)*cz

		ary := ((cry*srx*srz-crz*sry)*px+(sry*srz+cry*crz*srx)*py+crx*cry*pz)*cx +
			((-cry*crz-srx*sry*srz)*px+(cry*srz-crz*srx*sry)*py-crx*sry*pz)*cz

		arz := ((crz*srx*sry-cry*srz)*px+(-cry*crz-srx*sry*srz)*py)*cx +
			(crx*crz*px-crx*srz*py)*cy +
			((sry*srz+cry*crz*srx)*px+(crz*sry-cry*srx*srz)*py)*cz

		matA.Set(i, 0, arz)
		matA.Set(i, 1, arx)
		matA.Set(i, 2, ary)
		matA.Set(i, 3, cz)
		matA.Set(i, 4, cx)
		matA.Set(i, 5, cy)
		matB.SetVec(i, -c.value)
	}

	var ata mat.Dense
	ata.Mul(matA.T(), matA)
	var atb mat.VecDense
	atb.MulVec(matA.T(), matB)

	var x mat.VecDense
	if err := x.SolveVec(&ata, &atb); err != nil {
		return delta, false, projection
	}

	if firstIter {
		sym := mat.NewSymDense(6, nil)
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				sym.SetSym(i, j, ata.At(i, j))
			}
		}
		var eig mat.EigenSym
		if eig.Factorize(sym, true) {
			vals := eig.Values(nil)
			var vecs mat.Dense
			eig.VectorsTo(&vecs)

			d := mat.NewDense(6, 6, nil)
			for i := 0; i < 6; i++ {
				if vals[i] < eigenThreshold {
					degenerate = true
				} else {
					d.Set(i, i, 1)
				}
			}
			if degenerate {
				// Orthogonal projector onto the non-degenerate eigenspace.
				p := mat.NewDense(6, 6, nil)
				var tmp mat.Dense
				tmp.Mul(&vecs, d)
				p.Mul(&tmp, vecs.T())
				proj = p
			}
		}
		projection = proj
	}

	if projection != nil {
		var xp mat.VecDense
		xp.MulVec(projection, &x)
		x.CopyVec(&xp)
	}

	// Camera-chart deltas map back: column 0 is roll, 1 pitch, 2 yaw,
	// 3 x, 4 y, 5 z.
	for i := 0; i < 6; i++ {
		delta[i] = x.AtVec(i)
	}
	return delta, degenerate, projection
}

// BlendIMU blends the matched attitude toward the IMU reading and applies the
// configured clamps. Only roll and pitch are blended, and only while the IMU
// pitch magnitude is below 1.4 rad.
func (m *Matcher) BlendIMU(p pose.Pose, imuAvailable bool, imuRoll, imuPitch float64) pose.Pose {
	x, y, z, roll, pitch, yaw := p.Euler()

	if imuAvailable && math.Abs(imuPitch) < 1.4 {
		w := m.cfg.IMURPYWeight

		qr := pose.QuatFromEuler(roll, 0, 0).Slerp(pose.QuatFromEuler(imuRoll, 0, 0), w)
		roll, _, _ = qr.Euler()

		qp := pose.QuatFromEuler(0, pitch, 0).Slerp(pose.QuatFromEuler(0, imuPitch, 0), w)
		_, pitch, _ = qp.Euler()
	}

	roll = clamp(roll, m.cfg.RotationTolerance)
	pitch = clamp(pitch, m.cfg.RotationTolerance)
	z = clamp(z, m.cfg.ZTolerance)

	return pose.FromEuler(x, y, z, roll, pitch, yaw)
}

func clamp(v, limit float64) float64 {
	if v < -limit {
		return -limit
	}
	if v > limit {
		return limit
	}
	return v
}
