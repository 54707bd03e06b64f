package keyframes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

func TestAddAssignsSequentialIDs(t *testing.T) {
	t.Parallel()
	s := NewStore()

	a := s.Add(1.0, pose.Identity(), nil, nil)
	b := s.Add(1.5, pose.FromEuler(1, 0, 0, 0, 0, 0), nil, nil)

	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, b.ID)
	assert.Equal(t, 2, s.Len())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.ID)
}

func TestLastEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore()
	_, ok := s.Last()
	assert.False(t, ok)
}

func TestSetPose(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add(0, pose.Identity(), nil, nil)

	corrected := pose.FromEuler(2, 3, 0, 0, 0, 0.1)
	s.SetPose(0, corrected)
	assert.InDelta(t, 2.0, s.Pose(0).T.X, 1e-12)
	assert.InDelta(t, 3.0, s.Pose(0).T.Y, 1e-12)
}

func TestWithin(t *testing.T) {
	t.Parallel()
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.Add(float64(i), pose.FromEuler(float64(i)*2, 0, 0, 0, 0, 0), nil, nil)
	}

	ids := s.Within(cloud.Point{X: 0}, 5.0)
	require.NotEmpty(t, ids)
	// Keyframes at x = 0, 2, 4 fall inside the radius, closest first.
	assert.Equal(t, []int{0, 1, 2}, ids)
}

func TestSince(t *testing.T) {
	t.Parallel()
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Add(float64(i), pose.Identity(), nil, nil)
	}

	assert.Equal(t, []int{3, 4}, s.Since(3.0))
	assert.Empty(t, s.Since(10.0))
	assert.Len(t, s.Since(0.0), 5)
}

func TestPoseSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add(0, pose.Identity(), nil, nil)

	snap := s.PoseSnapshot()
	snap[0] = pose.FromEuler(9, 9, 9, 0, 0, 0)
	assert.Equal(t, 0.0, s.Pose(0).T.X)
}
