package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Incremental is the solver contract the estimator drives. New factors and
// variables arrive through Update; Refine runs an extra re-linearization
// sweep without new content.
type Incremental interface {
	Update(g *Graph, initial Values) error
	Refine() error
	Estimate() Values
	MarginalCovariance(k Key) (*mat.SymDense, error)
}

// Params tunes the incremental solver.
type Params struct {
	// RelinearizeThreshold is the variable motion below which a sweep is
	// considered settled.
	RelinearizeThreshold float64
	// RelinearizeSkip is the number of updates between forced
	// re-linearizations.
	RelinearizeSkip int
	// MaxSweepIterations bounds one Update or Refine call.
	MaxSweepIterations int
}

// DefaultParams returns the estimator's solver settings.
func DefaultParams() Params {
	return Params{
		RelinearizeThreshold: 0.1,
		RelinearizeSkip:      1,
		MaxSweepIterations:   10,
	}
}

// Solver is an incremental Gauss-Newton solver over the accumulated factor
// graph. Jacobians are taken numerically on the SE(3) manifold. It is not
// internally synchronized.
type Solver struct {
	params      Params
	factors     []Factor
	estimate    Values
	updates     int
	lastMaxStep float64
}

// NewSolver returns an empty solver.
func NewSolver(params Params) *Solver {
	if params.MaxSweepIterations <= 0 {
		params.MaxSweepIterations = 10
	}
	return &Solver{params: params, estimate: NewValues()}
}

// Update extends the problem with the given factors and new variables, then
// re-optimizes. Every key referenced by a new factor must already be known or
// be introduced by initial.
func (s *Solver) Update(g *Graph, initial Values) error {
	for k, p := range initial {
		if !s.estimate.Has(k) {
			s.estimate.Insert(k, p)
		}
	}
	for _, f := range g.Factors() {
		for _, k := range f.Keys() {
			if !s.estimate.Has(k) {
				return fmt.Errorf("graph: factor references unknown variable %d", k)
			}
		}
	}
	s.factors = append(s.factors, g.Factors()...)
	s.updates++
	return s.optimize()
}

// Refine runs an additional sweep without new content. Sweeps are skipped
// when the last sweep already settled below the relinearization threshold and
// this update is not a forced re-linearization.
func (s *Solver) Refine() error {
	s.updates++
	forced := s.params.RelinearizeSkip <= 1 || s.updates%s.params.RelinearizeSkip == 0
	if !forced && s.lastMaxStep < s.params.RelinearizeThreshold {
		return nil
	}
	return s.optimize()
}

// Estimate returns a copy of the current MAP estimate.
func (s *Solver) Estimate() Values { return s.estimate.Copy() }

// Len returns the number of accumulated factors.
func (s *Solver) Len() int { return len(s.factors) }

const (
	jacobianStep  = 1e-6
	hessianJitter = 1e-9
	settledDelta  = 1e-10
)

func (s *Solver) optimize() error {
	if len(s.factors) == 0 {
		return nil
	}
	keys := s.estimate.Keys()
	offset := make(map[Key]int, len(keys))
	for i, k := range keys {
		offset[k] = 6 * i
	}
	dim := 6 * len(keys)

	for iter := 0; iter < s.params.MaxSweepIterations; iter++ {
		h, b := s.linearize(offset, dim)

		var delta mat.VecDense
		if err := delta.SolveVec(h, b); err != nil {
			return fmt.Errorf("graph: normal equations are singular: %w", err)
		}

		maxStep := 0.0
		for _, k := range keys {
			o := offset[k]
			var xi pose.Twist
			for i := 0; i < 6; i++ {
				xi[i] = delta.AtVec(o + i)
				if a := math.Abs(xi[i]); a > maxStep {
					maxStep = a
				}
			}
			s.estimate[k] = pose.Retract(s.estimate.At(k), xi)
		}
		s.lastMaxStep = maxStep
		if maxStep < settledDelta {
			break
		}
	}
	return nil
}

// linearize builds the dense normal equations H·delta = b around the current
// estimate.
func (s *Solver) linearize(offset map[Key]int, dim int) (*mat.SymDense, *mat.VecDense) {
	h := mat.NewSymDense(dim, nil)
	b := mat.NewVecDense(dim, nil)

	for _, f := range s.factors {
		fkeys := f.Keys()
		noise := f.Noise()
		r0 := noise.Whiten(f.Residual(s.estimate))

		// Whitened Jacobian block per key, 6x6, by central differences on
		// the retraction chart.
		jac := make([][6][6]float64, len(fkeys))
		for ki, k := range fkeys {
			base := s.estimate.At(k)
			for col := 0; col < 6; col++ {
				var xi pose.Twist
				xi[col] = jacobianStep
				s.estimate[k] = pose.Retract(base, xi)
				rp := noise.Whiten(f.Residual(s.estimate))
				xi[col] = -jacobianStep
				s.estimate[k] = pose.Retract(base, xi)
				rm := noise.Whiten(f.Residual(s.estimate))
				s.estimate[k] = base
				for row := 0; row < 6; row++ {
					jac[ki][row][col] = (rp[row] - rm[row]) / (2 * jacobianStep)
				}
			}
		}

		for ai, ak := range fkeys {
			ao := offset[ak]
			for bi, bk := range fkeys {
				bo := offset[bk]
				for i := 0; i < 6; i++ {
					for j := 0; j < 6; j++ {
						var sum float64
						for row := 0; row < 6; row++ {
							sum += jac[ai][row][i] * jac[bi][row][j]
						}
						if r, c := ao+i, bo+j; r <= c {
							h.SetSym(r, c, h.At(r, c)+sum)
						}
					}
				}
			}
			for i := 0; i < 6; i++ {
				var sum float64
				for row := 0; row < 6; row++ {
					sum += jac[ai][row][i] * r0[row]
				}
				b.SetVec(ao+i, b.AtVec(ao+i)-sum)
			}
		}
	}

	for i := 0; i < dim; i++ {
		h.SetSym(i, i, h.At(i, i)+hessianJitter)
	}
	return h, b
}

// MarginalCovariance returns the 6x6 marginal covariance of a variable under
// the current linearization.
func (s *Solver) MarginalCovariance(k Key) (*mat.SymDense, error) {
	if !s.estimate.Has(k) {
		return nil, fmt.Errorf("graph: unknown variable %d", k)
	}
	keys := s.estimate.Keys()
	offset := make(map[Key]int, len(keys))
	for i, kk := range keys {
		offset[kk] = 6 * i
	}
	dim := 6 * len(keys)

	h, _ := s.linearize(offset, dim)

	var chol mat.Cholesky
	if !chol.Factorize(h) {
		return nil, fmt.Errorf("graph: information matrix is not positive definite")
	}

	o := offset[k]
	rhs := mat.NewDense(dim, 6, nil)
	for i := 0; i < 6; i++ {
		rhs.Set(o+i, i, 1)
	}
	var cols mat.Dense
	if err := chol.SolveTo(&cols, rhs); err != nil {
		return nil, fmt.Errorf("graph: marginal solve: %w", err)
	}

	out := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			out.SetSym(i, j, cols.At(o+i, j))
		}
	}
	return out, nil
}
