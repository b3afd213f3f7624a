package schedule

import "time"

// DefaultOverrideWindow is how long a manual preset change holds off
// schedule-driven changes.
const DefaultOverrideWindow = 30 * time.Minute

// ShouldSuppress reports whether a schedule-driven preset change must be
// held back because a manual change happened less than window ago. A zero
// lastManual means no manual change has occurred. Manual commands never
// consult this; they always apply and re-arm the window.
func ShouldSuppress(lastManual time.Time, now time.Time, window time.Duration) bool {
	if lastManual.IsZero() {
		return false
	}
	return now.Sub(lastManual) < window
}
