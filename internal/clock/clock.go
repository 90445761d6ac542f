// Package clock abstracts time for components that compute date windows,
// so tests can pin "today".
package clock

import "time"

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed is a clock frozen at T.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
