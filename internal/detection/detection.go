// Package detection adapts the external object detection service. The
// estimator launches one request per LiDAR step concurrently with scan
// matching and joins it before factor emission; a request that has not
// answered by the join deadline is treated as a detection-free step.
package detection

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/fgtrack.report/api/detectionpb"
	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
	"github.com/banshee-data/fgtrack.report/internal/tracker"
)

var logf = monitoring.Prefixed("detection")

// Service is the per-step request contract. Implementations must be safe
// for one in-flight call at a time.
type Service interface {
	Detect(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error)
}

// Client talks to a remote DetectionService over gRPC.
type Client struct {
	conn *grpc.ClientConn
	rpc  detectionpb.DetectionServiceClient
}

// Dial connects to the detection service at target (host:port). The
// connection is plaintext; the detector runs on the same vehicle network.
func Dial(target string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial detection service %s: %w", target, err)
	}
	return &Client{conn: conn, rpc: detectionpb.NewDetectionServiceClient(conn)}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Detect sends the raw sweep and converts the returned boxes.
func (c *Client) Detect(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error) {
	resp, err := c.rpc.Detect(ctx, &detectionpb.DetectRequest{Cloud: toPointCloud(stamp, raw)})
	if err != nil {
		return nil, err
	}
	dets := make([]tracker.Detection, 0, len(resp.GetBoxes()))
	for _, b := range resp.GetBoxes() {
		dets = append(dets, boxToDetection(b))
	}
	return dets, nil
}

func toPointCloud(stamp float64, raw cloud.Cloud) *detectionpb.PointCloud {
	pc := &detectionpb.PointCloud{
		Stamp:   stamp,
		FrameId: "lidar",
		Points:  make([]*detectionpb.Point, len(raw)),
	}
	for i, p := range raw {
		pc.Points[i] = &detectionpb.Point{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
	}
	return pc
}

func boxToDetection(b *detectionpb.Box) tracker.Detection {
	d := tracker.Detection{
		Pose:  pose.Identity(),
		Label: b.GetLabel(),
		Score: float64(b.GetValue()),
	}
	if p := b.GetPosition(); p != nil {
		d.Pose.T = pose.Vec3{X: p.GetX(), Y: p.GetY(), Z: p.GetZ()}
	}
	if q := b.GetOrientation(); q != nil {
		r := pose.Quat{W: q.GetW(), X: q.GetX(), Y: q.GetY(), Z: q.GetZ()}
		if r.W != 0 || r.X != 0 || r.Y != 0 || r.Z != 0 {
			d.Pose.R = r.Normalize()
		}
	}
	if dim := b.GetDimensions(); dim != nil {
		d.Dimensions = pose.Vec3{X: dim.GetX(), Y: dim.GetY(), Z: dim.GetZ()}
	}
	return d
}

// Job is the one-shot fork/join task for a single step.
type Job struct {
	ch      chan jobResult
	timeout time.Duration
}

type jobResult struct {
	dets []tracker.Detection
	err  error
}

// Launch starts the detection request in its own goroutine. The result is
// buffered so a late response after an abandoned join is discarded rather
// than leaking the goroutine.
func Launch(ctx context.Context, svc Service, stamp float64, raw cloud.Cloud, timeout time.Duration) *Job {
	j := &Job{ch: make(chan jobResult, 1), timeout: timeout}
	go func() {
		dets, err := svc.Detect(ctx, stamp, raw)
		j.ch <- jobResult{dets: dets, err: err}
	}()
	return j
}

// Join waits for the response up to the job timeout. The second return is
// false when the step must proceed detection-free.
func (j *Job) Join(ctx context.Context) ([]tracker.Detection, bool) {
	timer := time.NewTimer(j.timeout)
	defer timer.Stop()
	select {
	case r := <-j.ch:
		if r.err != nil {
			logf("request failed: %v", r.err)
			return nil, false
		}
		return r.dets, true
	case <-timer.C:
		logf("request timed out after %s", j.timeout)
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
