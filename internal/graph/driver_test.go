package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/fgtrack.report/internal/pose"
)

// recorder captures the call sequence the driver makes against the solver.
type recorder struct {
	calls []string
}

func (r *recorder) Update(g *Graph, initial Values) error {
	r.calls = append(r.calls, fmt.Sprintf("update(%d,%d)", g.Len(), initial.Len()))
	return nil
}

func (r *recorder) Refine() error {
	r.calls = append(r.calls, "refine")
	return nil
}

func (r *recorder) Estimate() Values { return NewValues() }

func (r *recorder) MarginalCovariance(Key) (*mat.SymDense, error) {
	return mat.NewSymDense(6, nil), nil
}

func TestDriverStepOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := NewDriver(rec)

	d.AddMain(NewPrior(0, pose.Identity(), Isotropic(1)))
	d.InsertMain(0, pose.Identity())
	d.AddLoose(NewPrior(1, pose.Identity(), Isotropic(1)))
	d.InsertLoose(1, pose.Identity())

	require.NoError(t, d.Step(false))
	assert.Equal(t, []string{
		"update(1,1)",
		"refine",
		"update(1,1)",
		"refine",
	}, rec.calls)

	// The queues are consumed by the step.
	assert.Equal(t, 0, d.PendingMain())
	assert.Equal(t, 0, d.PendingLoose())
}

func TestDriverLoopClosureSweeps(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := NewDriver(rec)

	d.AddMain(NewPrior(0, pose.Identity(), Isotropic(1)))
	d.InsertMain(0, pose.Identity())

	require.NoError(t, d.Step(true))
	assert.Equal(t, []string{
		"update(1,1)",
		"refine", "refine", "refine", "refine", "refine", "refine",
	}, rec.calls)
}

func TestDriverSkipsEmptyLooseUpdate(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := NewDriver(rec)

	d.AddMain(NewPrior(0, pose.Identity(), Isotropic(1)))
	d.InsertMain(0, pose.Identity())
	require.NoError(t, d.Step(false))

	assert.Equal(t, []string{"update(1,1)", "refine"}, rec.calls)
}

func TestDriverErasesPinnedInitial(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := NewDriver(rec)

	d.InsertMain(3, pose.FromEuler(1, 0, 0, 0, 0, 0))
	require.True(t, d.HasMainInitial(3))
	d.EraseMainInitial(3)
	assert.False(t, d.HasMainInitial(3))

	require.NoError(t, d.Step(false))
	assert.Equal(t, []string{"update(0,0)", "refine"}, rec.calls)
}

func TestAllocatorNeverReusesKeys(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	assert.Equal(t, Key(0), a.Next())
	assert.Equal(t, Key(1), a.Next())
	a.Reserve(10)
	assert.Equal(t, Key(10), a.Next())
	a.Reserve(5)
	assert.Equal(t, Key(11), a.Next())
}

func TestValuesCopyIsIndependent(t *testing.T) {
	t.Parallel()
	v := NewValues()
	v.Insert(0, pose.Identity())

	c := v.Copy()
	c.Insert(0, pose.FromEuler(1, 0, 0, 0, 0, 0))
	assert.Equal(t, 0.0, v.At(0).T.X)
	assert.Equal(t, []Key{0}, v.Keys())
}
