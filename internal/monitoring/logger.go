package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logf bound to a component prefix, so estimator stages can
// tag their diagnostics without repeating the prefix at every call site.
func Prefixed(component string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(component+": "+format, v...)
	}
}

// Stopwatch measures elapsed wall time for per-step diagnosis records.
type Stopwatch struct {
	start time.Time
}

// NewStopwatch returns a running stopwatch.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now()}
}

// Restart resets the stopwatch to now.
func (s *Stopwatch) Restart() {
	s.start = time.Now()
}

// Elapsed returns the time since the stopwatch was started or restarted.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}
