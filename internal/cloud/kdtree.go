package cloud

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexed adapts a cloud point to the kdtree.Comparable contract while
// remembering its position in the source cloud.
type indexed struct {
	Point
	index int
}

func (p indexed) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexed)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		return p.Z - q.Z
	}
}

func (p indexed) Dims() int { return 3 }

func (p indexed) Distance(c kdtree.Comparable) float64 {
	q := c.(indexed)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

type indexedSet []indexed

func (s indexedSet) Index(i int) kdtree.Comparable { return s[i] }
func (s indexedSet) Len() int                      { return len(s) }
func (s indexedSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}
func (s indexedSet) Pivot(d kdtree.Dim) int {
	return plane{indexedSet: s, Dim: d}.Pivot()
}

type plane struct {
	indexedSet
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.indexedSet[i].X < p.indexedSet[j].X
	case 1:
		return p.indexedSet[i].Y < p.indexedSet[j].Y
	default:
		return p.indexedSet[i].Z < p.indexedSet[j].Z
	}
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedSet = p.indexedSet[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.indexedSet[i], p.indexedSet[j] = p.indexedSet[j], p.indexedSet[i]
}

// KDTree is an immutable spatial index over a cloud.
type KDTree struct {
	tree *kdtree.Tree
	n    int
}

// NewKDTree indexes the given cloud. The cloud must not be mutated while the
// tree is in use.
func NewKDTree(c Cloud) *KDTree {
	set := make(indexedSet, len(c))
	for i, p := range c {
		set[i] = indexed{Point: p, index: i}
	}
	return &KDTree{tree: kdtree.New(set, false), n: len(c)}
}

// Len returns the number of indexed points.
func (t *KDTree) Len() int { return t.n }

type neighbor struct {
	index int
	dist  float64
}

func collect(heap []kdtree.ComparableDist) []neighbor {
	out := make([]neighbor, 0, len(heap))
	for _, cd := range heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, neighbor{index: cd.Comparable.(indexed).index, dist: cd.Dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// NearestK returns the indices and squared distances of up to k nearest
// neighbors of q, closest first.
func (t *KDTree) NearestK(q Point, k int) (indices []int, sqDists []float64) {
	if t.n == 0 || k <= 0 {
		return nil, nil
	}
	keep := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keep, indexed{Point: q, index: -1})
	for _, nb := range collect(keep.Heap) {
		indices = append(indices, nb.index)
		sqDists = append(sqDists, nb.dist)
	}
	return indices, sqDists
}

// RadiusSearch returns the indices and squared distances of all points within
// radius of q, closest first.
func (t *KDTree) RadiusSearch(q Point, radius float64) (indices []int, sqDists []float64) {
	if t.n == 0 || radius <= 0 {
		return nil, nil
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	t.tree.NearestSet(keep, indexed{Point: q, index: -1})
	for _, nb := range collect(keep.Heap) {
		indices = append(indices, nb.index)
		sqDists = append(sqDists, nb.dist)
	}
	return indices, sqDists
}
