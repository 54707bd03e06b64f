// Package graph holds the nonlinear factor graph the estimator solves each
// step: SE(3) variables, Gaussian factors over them, a max-mixture detection
// factor for ambiguous data association, and an incremental solver driven in
// the fixed main-then-loose update order.
package graph

import (
	"sort"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Key identifies one SE(3) variable. Keys are never reused.
type Key uint64

// Allocator hands out fresh keys. Ego, object pose and object velocity
// variables all draw from the same sequence so ids stay globally unique.
type Allocator struct {
	next Key
}

// NewAllocator returns an allocator starting at zero.
func NewAllocator() *Allocator { return &Allocator{} }

// Next returns a fresh key.
func (a *Allocator) Next() Key {
	k := a.next
	a.next++
	return k
}

// Reserve skips ahead so the next key is at least n.
func (a *Allocator) Reserve(n Key) {
	if a.next < n {
		a.next = n
	}
}

// Values maps variable keys to their SE(3) estimates. Object velocities are
// stored as poses as well, interpreted as per-second body-frame motion.
type Values map[Key]pose.Pose

// NewValues returns an empty assignment.
func NewValues() Values { return Values{} }

// Insert sets the value for a key.
func (v Values) Insert(k Key, p pose.Pose) { v[k] = p }

// Erase removes a key if present.
func (v Values) Erase(k Key) { delete(v, k) }

// Has reports whether the key is assigned.
func (v Values) Has(k Key) bool {
	_, ok := v[k]
	return ok
}

// At returns the value for a key. The key must be assigned.
func (v Values) At(k Key) pose.Pose { return v[k] }

// Len returns the number of assigned keys.
func (v Values) Len() int { return len(v) }

// Copy returns an independent copy.
func (v Values) Copy() Values {
	out := make(Values, len(v))
	for k, p := range v {
		out[k] = p
	}
	return out
}

// Keys returns the assigned keys in ascending order.
func (v Values) Keys() []Key {
	out := make([]Key, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
