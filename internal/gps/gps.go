// Package gps turns NMEA sentences from a serial receiver into position
// fixes in the local tangent frame and buffers them for the estimator.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

var logf = monitoring.Prefixed("gps")

// Fix is one accepted position sample. P is east-north-up metres relative
// to the first fix of the run; Var is the per-axis variance estimate.
type Fix struct {
	Stamp float64
	P     pose.Vec3
	Var   [3]float64
}

// userEquivalentRangeError scales HDOP into a metre-level sigma.
const userEquivalentRangeError = 5.0

const earthRadius = 6378137.0

// gga is the subset of a GGA sentence the estimator needs.
type gga struct {
	lat, lon, alt float64
	hdop          float64
	quality       int
}

func checksumOK(line string) bool {
	star := strings.LastIndexByte(line, '*')
	if !strings.HasPrefix(line, "$") || star < 0 || star+3 > len(line) {
		return false
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	return err == nil && byte(want) == sum
}

// parseGGA parses a $--GGA sentence. Sentences without a fix (quality 0)
// or with a bad checksum are rejected.
func parseGGA(line string) (gga, error) {
	var g gga
	if !checksumOK(line) {
		return g, fmt.Errorf("bad checksum: %q", line)
	}
	line = line[1:strings.LastIndexByte(line, '*')]
	fields := strings.Split(line, ",")
	if len(fields) < 10 || !strings.HasSuffix(fields[0], "GGA") {
		return g, fmt.Errorf("not a GGA sentence: %q", fields[0])
	}

	var err error
	if g.quality, err = strconv.Atoi(fields[6]); err != nil || g.quality == 0 {
		return g, fmt.Errorf("no fix (quality %q)", fields[6])
	}
	if g.lat, err = parseAngle(fields[2], fields[3], 2); err != nil {
		return g, err
	}
	if g.lon, err = parseAngle(fields[4], fields[5], 3); err != nil {
		return g, err
	}
	if g.hdop, err = strconv.ParseFloat(fields[8], 64); err != nil {
		return g, fmt.Errorf("bad HDOP %q", fields[8])
	}
	if g.alt, err = strconv.ParseFloat(fields[9], 64); err != nil {
		return g, fmt.Errorf("bad altitude %q", fields[9])
	}
	return g, nil
}

// parseAngle converts ddmm.mmmm (or dddmm.mmmm) plus a hemisphere letter
// into signed decimal degrees.
func parseAngle(s, hemi string, degDigits int) (float64, error) {
	if len(s) < degDigits {
		return 0, fmt.Errorf("bad coordinate %q", s)
	}
	deg, err := strconv.ParseFloat(s[:degDigits], 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q", s)
	}
	min, err := strconv.ParseFloat(s[degDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q", s)
	}
	v := deg + min/60
	if hemi == "S" || hemi == "W" {
		v = -v
	}
	return v, nil
}

// projector maps geodetic coordinates to east-north-up metres around the
// first fix. Equirectangular is fine at run scale.
type projector struct {
	lat0, lon0, alt0 float64
	set              bool
}

func (p *projector) enu(lat, lon, alt float64) pose.Vec3 {
	if !p.set {
		p.lat0, p.lon0, p.alt0 = lat, lon, alt
		p.set = true
	}
	rad := math.Pi / 180
	return pose.Vec3{
		X: (lon - p.lon0) * rad * earthRadius * math.Cos(p.lat0*rad),
		Y: (lat - p.lat0) * rad * earthRadius,
		Z: alt - p.alt0,
	}
}

// Reader scans NMEA lines from a port and pushes fixes onto a Queue.
type Reader struct {
	port io.ReadCloser
	q    *Queue
	now  func() float64
	proj projector
}

// NewReader wraps an already open port. now supplies the stamp assigned to
// each fix in the estimator's clock.
func NewReader(port io.ReadCloser, q *Queue, now func() float64) *Reader {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	return &Reader{port: port, q: q, now: now}
}

// Open opens the receiver's serial port at the standard NMEA rate.
func Open(path string, q *Queue) (*Reader, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open gps port %s: %w", path, err)
	}
	return NewReader(port, q, nil), nil
}

// Run reads until the port closes or the context is cancelled. Malformed
// and fixless sentences are dropped silently; only read errors surface.
func (r *Reader) Run(ctx context.Context) error {
	defer r.port.Close()
	scan := bufio.NewScanner(r.port)
	for scan.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := strings.TrimSpace(scan.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		g, err := parseGGA(line)
		if err != nil {
			continue
		}
		r.q.Push(r.fix(g))
	}
	if err := scan.Err(); err != nil {
		logf("read: %v", err)
		return err
	}
	return nil
}

func (r *Reader) fix(g gga) Fix {
	sigma := g.hdop * userEquivalentRangeError
	return Fix{
		Stamp: r.now(),
		P:     r.proj.enu(g.lat, g.lon, g.alt),
		// Vertical error runs about twice horizontal for consumer receivers.
		Var: [3]float64{sigma * sigma, sigma * sigma, 4 * sigma * sigma},
	}
}
