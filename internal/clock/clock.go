// Package clock abstracts wall-clock access so scheduling decisions can be
// driven by a fake clock in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
