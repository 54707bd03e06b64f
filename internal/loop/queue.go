// Package loop detects loop closures between the current keyframe and
// historical keyframes and queues the resulting correction factors for the
// estimator.
package loop

import (
	"sync"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Candidate is one accepted loop closure: a relative-pose constraint
// between two keyframes with an isotropic variance from the ICP fitness.
type Candidate struct {
	Cur   int
	Pre   int
	Rel   pose.Pose
	Noise float64
}

// maxPending bounds the queue to the most recent candidates; the estimator
// drains it once per keyframe so a deeper backlog is never useful.
const maxPending = 5

// Queue hands candidates from the loop goroutine (and external sources) to
// the estimator. It has its own lock so pushes never contend with a step in
// progress.
type Queue struct {
	mu    sync.Mutex
	items []Candidate
}

func NewQueue() *Queue { return &Queue{} }

// Push appends a candidate, evicting the oldest entry when full.
func (q *Queue) Push(c Candidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, c)
	if len(q.items) > maxPending {
		q.items = q.items[len(q.items)-maxPending:]
	}
}

// Drain removes and returns all queued candidates in FIFO order.
func (q *Queue) Drain() []Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
