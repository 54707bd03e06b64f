// fgtrack replays recorded sweeps through the estimation pipeline and
// persists the run to a sqlite database.
//
// The input is a JSON-lines file, one sweep per line:
//
//	{"stamp":12.4,"edge":[[x,y,z],...],"plane":[...],"raw":[...],
//	 "imu":{"roll":0.01,"pitch":0.0,"yaw":1.2},
//	 "odom":{"x":1.0,"y":0.0,"z":0.0,"roll":0,"pitch":0,"yaw":0.05},
//	 "gps":{"stamp":12.39,"e":1.1,"n":0.2,"u":0.0,"var":[2.5,2.5,10.0]}}
//
// edge/plane/raw and the imu/odom/gps blocks are all optional per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/fgtrack.report/internal/cloud"
	"github.com/banshee-data/fgtrack.report/internal/config"
	"github.com/banshee-data/fgtrack.report/internal/detection"
	"github.com/banshee-data/fgtrack.report/internal/estimator"
	"github.com/banshee-data/fgtrack.report/internal/gps"
	"github.com/banshee-data/fgtrack.report/internal/pose"
	"github.com/banshee-data/fgtrack.report/internal/storage/sqlite"
	"github.com/banshee-data/fgtrack.report/internal/version"
)

type imuRecord struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type odomRecord struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type gpsRecord struct {
	Stamp float64    `json:"stamp"`
	E     float64    `json:"e"`
	N     float64    `json:"n"`
	U     float64    `json:"u"`
	Var   [3]float64 `json:"var"`
}

type sweepRecord struct {
	Stamp float64      `json:"stamp"`
	Edge  [][3]float64 `json:"edge"`
	Plane [][3]float64 `json:"plane"`
	Raw   [][3]float64 `json:"raw"`
	IMU   *imuRecord   `json:"imu"`
	Odom  *odomRecord  `json:"odom"`
	GPS   *gpsRecord   `json:"gps"`
}

func toCloud(pts [][3]float64) cloud.Cloud {
	if len(pts) == 0 {
		return nil
	}
	c := make(cloud.Cloud, len(pts))
	for i, p := range pts {
		c[i] = cloud.Point{X: p[0], Y: p[1], Z: p[2]}
	}
	return c
}

func main() {
	var inputPath string
	var dbPath string
	var configPath string
	var detectorAddr string
	var gpsPort string
	var mapPath string
	var showVersion bool

	flag.StringVar(&inputPath, "input", "", "path to recorded sweeps (JSON lines)")
	flag.StringVar(&dbPath, "db", "fgtrack.db", "path to run database")
	flag.StringVar(&configPath, "config", "", "path to tuning config JSON (defaults when empty)")
	flag.StringVar(&detectorAddr, "detector", "", "gRPC address of the object detection service")
	flag.StringVar(&gpsPort, "gps-serial", "", "serial port with NMEA GGA sentences (overrides recorded fixes)")
	flag.StringVar(&mapPath, "map", "", "write the final global feature map as XYZ CSV")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}
	if inputPath == "" {
		log.Fatalf("input must be provided")
	}

	tuning := &config.TuningConfig{}
	if configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	var svc detection.Service
	if detectorAddr != "" {
		client, err := detection.Dial(detectorAddr)
		if err != nil {
			log.Fatalf("dial detector %s: %v", detectorAddr, err)
		}
		defer client.Close()
		svc = client
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatalf("open run database: %v", err)
	}
	defer db.Close()

	est := estimator.New(tuning, svc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	wait := est.StartWorkers(ctx)
	defer wait()
	defer cancel()

	if gpsPort != "" {
		reader, err := gps.Open(gpsPort, est.GPSQueue())
		if err != nil {
			log.Fatalf("open gps port %s: %v", gpsPort, err)
		}
		go func() {
			if err := reader.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("gps reader stopped: %v", err)
			}
		}()
	}

	tuningJSON, err := json.Marshal(tuning)
	if err != nil {
		log.Fatalf("serialize config: %v", err)
	}
	runID, err := db.BeginRun(string(tuningJSON))
	if err != nil {
		log.Fatalf("begin run: %v", err)
	}
	fmt.Printf("run %s -> %s\n", runID, dbPath)

	f, err := os.Open(inputPath)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	steps, err := replay(ctx, f, est, db, runID, gpsPort == "")
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if err := db.FinishRun(runID, steps); err != nil {
		log.Fatalf("finish run: %v", err)
	}
	if mapPath != "" {
		est.RefreshGlobalMap()
		if err := writeMapCSV(mapPath, est.GlobalMap()); err != nil {
			log.Fatalf("write map: %v", err)
		}
	}
	fmt.Printf("processed %d steps, %d keyframes\n", steps, est.Keyframes())
}

// replay feeds each recorded sweep through one estimation step and persists
// the result. Recorded GPS fixes are queued only when no live port is open.
func replay(ctx context.Context, f *os.File, est *estimator.Estimator, db *sqlite.DB, runID string, useRecordedGPS bool) (int, error) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

	steps := 0
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if ctx.Err() != nil {
			break
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec sweepRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return steps, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if rec.GPS != nil && useRecordedGPS {
			est.GPSQueue().Push(gps.Fix{
				Stamp: rec.GPS.Stamp,
				P:     pose.Vec3{X: rec.GPS.E, Y: rec.GPS.N, Z: rec.GPS.U},
				Var:   rec.GPS.Var,
			})
		}

		in := estimator.FrameInput{
			Stamp: rec.Stamp,
			Edge:  toCloud(rec.Edge),
			Plane: toCloud(rec.Plane),
			Raw:   toCloud(rec.Raw),
		}
		if rec.IMU != nil {
			in.IMUAvailable = true
			in.IMURoll, in.IMUPitch, in.IMUYaw = rec.IMU.Roll, rec.IMU.Pitch, rec.IMU.Yaw
		}
		if rec.Odom != nil {
			in.OdomAvailable = true
			in.Initial = pose.FromEuler(rec.Odom.X, rec.Odom.Y, rec.Odom.Z,
				rec.Odom.Roll, rec.Odom.Pitch, rec.Odom.Yaw)
		}

		out, ok := est.Step(ctx, in)
		if !ok {
			continue
		}
		steps++
		if err := persistStep(db, runID, est, out); err != nil {
			return steps, err
		}
	}
	if err := sc.Err(); err != nil {
		return steps, fmt.Errorf("read input: %w", err)
	}
	return steps, nil
}

func writeMapCSV(path string, m cloud.Cloud) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "x,y,z")
	for _, p := range m {
		fmt.Fprintf(w, "%.4f,%.4f,%.4f\n", p.X, p.Y, p.Z)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func persistStep(db *sqlite.DB, runID string, est *estimator.Estimator, out estimator.StepOutput) error {
	if err := db.InsertStep(runID, sqlite.StepRecord{
		Stamp:      out.Stamp,
		Keyframe:   out.Keyframe,
		KeyframeID: out.KeyframeID,
		LoopClosed: out.LoopClosed,
		Degenerate: out.Degenerate,
		Detections: out.Diagnosis.Detections,
		Matched:    out.Diagnosis.Matched,
		Births:     out.Diagnosis.Births,
		Retired:    out.Diagnosis.Retired,
		TightCount: out.Diagnosis.TightlyCoupled,
		ElapsedMS:  float64(out.Diagnosis.Elapsed.Microseconds()) / 1000,
	}); err != nil {
		return err
	}

	if len(out.Objects) > 0 {
		samples := make([]sqlite.ObjectSample, len(out.Objects))
		for i, o := range out.Objects {
			samples[i] = sqlite.ObjectSample{
				Stamp:         out.Stamp,
				ObjectIndex:   o.ObjectIndex,
				TrackingIndex: o.TrackingIndex,
				Pose:          o.Pose,
				Velocity:      o.Velocity,
				Confidence:    o.Confidence,
				Tight:         o.Tight,
				TrackScore:    o.TrackScore,
				LostCount:     o.LostCount,
			}
		}
		if err := db.InsertObjectSamples(runID, samples); err != nil {
			return err
		}
	}

	// Keyframe steps extend the trajectory; loop closures rewrite it.
	if out.Keyframe || out.LoopClosed {
		poses, stamps := est.Trajectory()
		pts := make([]sqlite.TrajectoryPoint, len(poses))
		for i := range poses {
			pts[i] = sqlite.TrajectoryPoint{KeyframeID: i, Stamp: stamps[i], Pose: poses[i]}
		}
		if err := db.SaveTrajectory(runID, pts); err != nil {
			return err
		}
	}
	return nil
}
