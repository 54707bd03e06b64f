// Package cloud holds point-cloud containers and the spatial queries the
// matcher and loop-closure search rely on: voxel downsampling, k-nearest and
// radius lookups over a KD-tree.
package cloud

import (
	"math"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Point is a Cartesian sample in meters.
type Point = pose.Vec3

// Cloud is an ordered collection of points.
type Cloud []Point

// Transform returns a copy of c with every point mapped through p.
func (c Cloud) Transform(p pose.Pose) Cloud {
	out := make(Cloud, len(c))
	for i, pt := range c {
		out[i] = p.TransformPoint(pt)
	}
	return out
}

// Append returns c extended with all points of other.
func (c Cloud) Append(other Cloud) Cloud {
	return append(c, other...)
}

// Centroid returns the mean of the points, or the zero point for an empty cloud.
func (c Cloud) Centroid() Point {
	if len(c) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range c {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(c)))
}

type voxelKey struct {
	x, y, z int64
}

// VoxelDownsample reduces c to one centroid point per cubic cell of the given
// leaf size. A non-positive leaf returns a copy of the input. Output order
// follows the first appearance of each occupied cell.
func VoxelDownsample(c Cloud, leaf float64) Cloud {
	if leaf <= 0 {
		out := make(Cloud, len(c))
		copy(out, c)
		return out
	}

	type cell struct {
		sum   Point
		count int
		order int
	}
	cells := make(map[voxelKey]*cell)
	var order []voxelKey
	for _, p := range c {
		k := voxelKey{
			x: int64(math.Floor(p.X / leaf)),
			y: int64(math.Floor(p.Y / leaf)),
			z: int64(math.Floor(p.Z / leaf)),
		}
		cl, ok := cells[k]
		if !ok {
			cl = &cell{}
			cells[k] = cl
			order = append(order, k)
		}
		cl.sum = cl.sum.Add(p)
		cl.count++
	}

	out := make(Cloud, 0, len(order))
	for _, k := range order {
		cl := cells[k]
		out = append(out, cl.sum.Scale(1/float64(cl.count)))
	}
	return out
}
