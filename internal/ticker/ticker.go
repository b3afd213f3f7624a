// Package ticker drives a controller's tick cycle: once immediately at
// startup, then on wall-clock boundaries aligned to the tick interval
// (minutes 0,5,10,... with a 5-minute interval).
package ticker

import (
	"context"
	"time"

	"github.com/thatsimonsguy/climate-scheduler/internal/clock"
)

// nextAligned returns the first instant after now that falls on an interval
// boundary. Truncation is relative to the epoch, which lands 5-minute
// intervals on :00/:05/... second zero.
func nextAligned(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// Run blocks, invoking tick at startup and then at every aligned boundary
// until ctx is cancelled. Ticks are delivered serially; a slow tick delays
// the next one rather than overlapping it.
func Run(ctx context.Context, clk clock.Clock, interval time.Duration, tick func(now time.Time)) {
	tick(clk.Now())

	for {
		next := nextAligned(clk.Now(), interval)
		timer := time.NewTimer(next.Sub(clk.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			tick(clk.Now())
		}
	}
}
