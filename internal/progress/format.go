package progress

import (
	"fmt"
	"time"
)

// NotAvailable is rendered in place of an estimate that cannot be computed yet.
const NotAvailable = "Calculating..."

// FormatDuration renders d the way the progress panel shows it:
// "1 hour 5 minutes", "2 minutes 1 second", "45 seconds".
// Sub-second and non-positive durations render as "0 seconds".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d %s %d %s", hours, plural("hour", hours), minutes%60, plural("minute", minutes%60))
	case minutes > 0:
		return fmt.Sprintf("%d %s %d %s", minutes, plural("minute", minutes), seconds%60, plural("second", seconds%60))
	default:
		return fmt.Sprintf("%d %s", seconds, plural("second", seconds))
	}
}

func plural(unit string, n int64) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
