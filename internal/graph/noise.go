package graph

import (
	"math"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Noise is a diagonal Gaussian noise model over a 6-dimensional residual in
// rotation-first twist order.
type Noise struct {
	variances [6]float64
}

// Variances builds a noise model from per-axis variances.
func Variances(v [6]float64) Noise {
	return Noise{variances: v}
}

// Sigmas builds a noise model from per-axis standard deviations.
func Sigmas(s [6]float64) Noise {
	var v [6]float64
	for i, x := range s {
		v[i] = x * x
	}
	return Noise{variances: v}
}

// Isotropic builds a noise model with the same standard deviation on every
// axis.
func Isotropic(sigma float64) Noise {
	var v [6]float64
	for i := range v {
		v[i] = sigma * sigma
	}
	return Noise{variances: v}
}

// Variance returns the variance on axis i.
func (n Noise) Variance(i int) float64 { return n.variances[i] }

// Whiten scales each residual component by its inverse standard deviation.
func (n Noise) Whiten(r pose.Twist) pose.Twist {
	var out pose.Twist
	for i := range r {
		out[i] = r[i] / math.Sqrt(n.variances[i])
	}
	return out
}

// Error returns half the squared Mahalanobis norm of the residual.
func (n Noise) Error(r pose.Twist) float64 {
	var sum float64
	for i := range r {
		sum += r[i] * r[i] / n.variances[i]
	}
	return 0.5 * sum
}
