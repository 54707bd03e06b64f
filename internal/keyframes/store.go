// Package keyframes maintains the append-only log of sensor keyframes: their
// downsampled feature clouds and 6-DoF poses, indexed by integer id. Poses
// are the only mutable part; loop closures and retroactive tight coupling
// rewrite them through SetPose.
package keyframes

import (
	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// Keyframe couples a retained sensor pose with the downsampled feature clouds
// observed there. Clouds are stored in the sensor frame.
type Keyframe struct {
	ID         int
	Stamp      float64 // seconds
	Pose       pose.Pose
	EdgeCloud  cloud.Cloud
	PlaneCloud cloud.Cloud
}

// Store is the keyframe log. It is not internally synchronized: the estimator
// serializes all access under its step lock and hands read-only snapshots to
// background tasks.
type Store struct {
	frames []Keyframe
}

// NewStore returns an empty keyframe log.
func NewStore() *Store {
	return &Store{}
}

// Add appends a keyframe, assigning the next sequential id, and returns it.
func (s *Store) Add(stamp float64, p pose.Pose, edge, plane cloud.Cloud) Keyframe {
	kf := Keyframe{
		ID:         len(s.frames),
		Stamp:      stamp,
		Pose:       p,
		EdgeCloud:  edge,
		PlaneCloud: plane,
	}
	s.frames = append(s.frames, kf)
	return kf
}

// Len returns the number of stored keyframes.
func (s *Store) Len() int { return len(s.frames) }

// At returns the keyframe with the given id. Cloud slices are shared and must
// be treated as read-only.
func (s *Store) At(id int) Keyframe { return s.frames[id] }

// Last returns the most recent keyframe, or false when the log is empty.
func (s *Store) Last() (Keyframe, bool) {
	if len(s.frames) == 0 {
		return Keyframe{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Pose returns the current pose of a keyframe.
func (s *Store) Pose(id int) pose.Pose { return s.frames[id].Pose }

// SetPose rewrites the pose of a keyframe.
func (s *Store) SetPose(id int, p pose.Pose) { s.frames[id].Pose = p }

// Within returns the ids of keyframes whose positions lie inside radius of
// center, closest first.
func (s *Store) Within(center cloud.Point, radius float64) []int {
	if len(s.frames) == 0 {
		return nil
	}
	positions := make(cloud.Cloud, len(s.frames))
	for i, kf := range s.frames {
		positions[i] = kf.Pose.T
	}
	ids, _ := cloud.NewKDTree(positions).RadiusSearch(center, radius)
	return ids
}

// Since returns the ids of keyframes with stamps at or after the given time,
// in id order.
func (s *Store) Since(stamp float64) []int {
	var ids []int
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Stamp < stamp {
			break
		}
		ids = append(ids, s.frames[i].ID)
	}
	// Reverse into ascending id order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

// PoseSnapshot returns a deep copy of every keyframe pose, for use by
// background tasks that must not hold the estimator lock.
func (s *Store) PoseSnapshot() []pose.Pose {
	out := make([]pose.Pose, len(s.frames))
	for i, kf := range s.frames {
		out[i] = kf.Pose
	}
	return out
}

// StampSnapshot returns a copy of every keyframe stamp.
func (s *Store) StampSnapshot() []float64 {
	out := make([]float64, len(s.frames))
	for i, kf := range s.frames {
		out[i] = kf.Stamp
	}
	return out
}
