package estimator

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/keyframes"
)

// globalMapLeafSize downsamples the published global map.
const globalMapLeafSize = 0.5

// StartWorkers launches the loop-closure search and the global map snapshot
// goroutines. The returned function blocks until both exit after ctx is
// cancelled.
func (e *Estimator) StartWorkers(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	if e.cfg.LoopEnabled && e.cfg.LoopFrequency > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.loopClosureLoop(ctx)
		}()
	}
	if e.cfg.GlobalMapInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.globalMapLoop(ctx)
		}()
	}
	return wg.Wait
}

func (e *Estimator) loopClosureLoop(ctx context.Context) {
	period := time.Duration(float64(time.Second) / e.cfg.LoopFrequency)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.SearchLoop()
		}
	}
}

// SearchLoop runs one loop-closure search over a snapshot of the keyframe
// store and queues any accepted candidate. The snapshot is taken under the
// step lock; the ICP runs unlocked.
func (e *Estimator) SearchLoop() {
	e.mu.Lock()
	poses := e.store.PoseSnapshot()
	stamps := e.store.StampSnapshot()
	frames := make([]keyframes.Keyframe, e.store.Len())
	for i := range frames {
		frames[i] = e.store.At(i)
	}
	e.mu.Unlock()

	clouds := func(id int) (cloud.Cloud, cloud.Cloud) {
		return frames[id].EdgeCloud, frames[id].PlaneCloud
	}
	if c, ok := e.loopDet.Detect(poses, stamps, clouds); ok {
		e.loopQ.Push(c)
	}
}

func (e *Estimator) globalMapLoop(ctx context.Context) {
	t := time.NewTicker(e.cfg.GlobalMapInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.RefreshGlobalMap()
		}
	}
}

// RefreshGlobalMap rebuilds the downsampled world-frame feature map from
// the current keyframe poses.
func (e *Estimator) RefreshGlobalMap() {
	e.mu.Lock()
	frames := make([]keyframes.Keyframe, e.store.Len())
	for i := range frames {
		frames[i] = e.store.At(i)
	}
	e.mu.Unlock()

	var m cloud.Cloud
	for _, kf := range frames {
		m = m.Append(kf.EdgeCloud.Transform(kf.Pose))
		m = m.Append(kf.PlaneCloud.Transform(kf.Pose))
	}
	m = cloud.VoxelDownsample(m, globalMapLeafSize)

	e.mapMu.Lock()
	e.globalMap = m
	e.mapMu.Unlock()
}

// GlobalMap returns the most recent global map snapshot.
func (e *Estimator) GlobalMap() cloud.Cloud {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	return e.globalMap
}
