package detection

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/fgtrack.report/api/detectionpb"
	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/tracker"
)

type serviceFunc func(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error)

func (f serviceFunc) Detect(ctx context.Context, stamp float64, raw cloud.Cloud) ([]tracker.Detection, error) {
	return f(ctx, stamp, raw)
}

func TestJoinDeliversDetections(t *testing.T) {
	t.Parallel()
	want := []tracker.Detection{{Score: 0.7}}
	svc := serviceFunc(func(context.Context, float64, cloud.Cloud) ([]tracker.Detection, error) {
		return want, nil
	})

	j := Launch(context.Background(), svc, 1.0, nil, time.Second)
	dets, active := j.Join(context.Background())
	assert.True(t, active)
	assert.Equal(t, want, dets)
}

func TestJoinTimesOut(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	defer close(block)
	svc := serviceFunc(func(context.Context, float64, cloud.Cloud) ([]tracker.Detection, error) {
		<-block
		return nil, nil
	})

	j := Launch(context.Background(), svc, 1.0, nil, 10*time.Millisecond)
	dets, active := j.Join(context.Background())
	assert.False(t, active)
	assert.Nil(t, dets)
}

func TestJoinTreatsErrorAsInactive(t *testing.T) {
	t.Parallel()
	svc := serviceFunc(func(context.Context, float64, cloud.Cloud) ([]tracker.Detection, error) {
		return nil, errors.New("detector offline")
	})

	j := Launch(context.Background(), svc, 1.0, nil, time.Second)
	_, active := j.Join(context.Background())
	assert.False(t, active)
}

func TestJoinHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	defer close(block)
	svc := serviceFunc(func(context.Context, float64, cloud.Cloud) ([]tracker.Detection, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := Launch(context.Background(), svc, 1.0, nil, time.Minute)
	_, active := j.Join(ctx)
	assert.False(t, active)
}

func TestBoxConversion(t *testing.T) {
	t.Parallel()
	yaw := math.Pi / 2
	b := &detectionpb.Box{
		Position:    &detectionpb.Vector3{X: 4, Y: -1, Z: 0.5},
		Orientation: &detectionpb.Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)},
		Dimensions:  &detectionpb.Vector3{X: 4.2, Y: 1.8, Z: 1.6},
		Label:       "car",
		Value:       0.93,
	}

	d := boxToDetection(b)
	assert.Equal(t, 4.0, d.Pose.T.X)
	_, _, gotYaw := d.Pose.R.Euler()
	assert.InDelta(t, yaw, gotYaw, 1e-9)
	assert.Equal(t, "car", d.Label)
	assert.InDelta(t, 0.93, d.Score, 1e-6)
	assert.Equal(t, 1.8, d.Dimensions.Y)
}

func TestBoxConversionDefaults(t *testing.T) {
	t.Parallel()
	d := boxToDetection(&detectionpb.Box{})
	assert.Equal(t, 1.0, d.Pose.R.W, "zero quaternion falls back to identity")
	assert.Equal(t, 0.0, d.Pose.T.Norm())
}

// fakeDetector serves canned boxes for the wire round trip.
type fakeDetector struct {
	detectionpb.UnimplementedDetectionServiceServer
	lastPoints int
}

func (f *fakeDetector) Detect(ctx context.Context, req *detectionpb.DetectRequest) (*detectionpb.DetectResponse, error) {
	f.lastPoints = len(req.GetCloud().GetPoints())
	return &detectionpb.DetectResponse{Boxes: []*detectionpb.Box{
		{Position: &detectionpb.Vector3{X: 10}, Label: "pedestrian", Value: 0.5},
	}}, nil
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeDetector{}
	detectionpb.RegisterDetectionServiceServer(srv, fake)
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	c := &Client{conn: conn, rpc: detectionpb.NewDetectionServiceClient(conn)}
	raw := cloud.Cloud{{X: 1}, {X: 2}, {X: 3}}
	dets, err := c.Detect(context.Background(), 12.5, raw)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "pedestrian", dets[0].Label)
	assert.Equal(t, 10.0, dets[0].Pose.T.X)
	assert.Equal(t, 3, fake.lastPoints)
}
