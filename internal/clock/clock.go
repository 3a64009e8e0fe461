// Package clock abstracts the wall-clock source so the expiry engine can
// be driven deterministically in tests.
package clock

import "time"

// Clock returns the current time as seconds since the Unix epoch, matching
// the utc_creation/utc_expiry column representation.
type Clock interface {
	NowUnix() int64
}

// System is the production Clock, backed by time.Now().
type System struct{}

// NowUnix implements Clock.
func (System) NowUnix() int64 { return time.Now().Unix() }

// Fake is a test Clock that only advances when told to. Zero value starts
// at unix time 0.
type Fake struct {
	now int64
}

// NewFake returns a Fake clock set to the given unix time.
func NewFake(startUnix int64) *Fake {
	return &Fake{now: startUnix}
}

// NowUnix implements Clock.
func (f *Fake) NowUnix() int64 { return f.now }

// Set pins the clock to an exact unix timestamp.
func (f *Fake) Set(unix int64) { f.now = unix }

// Advance moves the clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) int64 {
	f.now += int64(d.Seconds())
	return f.now
}
