// Package timing reports wall-clock time spent on a backend call.
package timing

import "time"

const millisPerMinute = 1000 * 60

// MinutesBetween converts two millisecond timestamps into elapsed minutes.
func MinutesBetween(startMillis, endMillis float64) float64 {
	return (endMillis - startMillis) / millisPerMinute
}

// Stopwatch measures elapsed wall-clock time from the moment it is started.
type Stopwatch struct {
	now   func() time.Time
	start time.Time
}

// Start returns a running stopwatch. A nil clock means time.Now.
func Start(now func() time.Time) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{now: now, start: now()}
}

// Elapsed returns the time since the stopwatch was started.
func (s *Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Minutes returns the elapsed time in minutes.
func (s *Stopwatch) Minutes() float64 {
	return Minutes(s.Elapsed())
}

// Minutes converts a duration into minutes.
func Minutes(d time.Duration) float64 {
	return MinutesBetween(0, float64(d)/float64(time.Millisecond))
}
