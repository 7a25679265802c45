package portal

import (
	"fmt"
	"time"
)

// FormatCountdown renders a remaining duration as "2h 5m", "12m" or "40s".
// Partial seconds round up so the display reaches "0s" only at zero.
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	secs := int64((d + time.Second - 1) / time.Second)

	hours := secs / 3600
	minutes := (secs % 3600) / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
