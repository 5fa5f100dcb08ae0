package board

import (
	"fmt"
	"time"
)

// FormatAge formats how long ago t was relative to now as "just now",
// "Xm ago" or "Xh Ym ago".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	return FormatDuration(int64(d.Seconds())) + " ago"
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatProgress formats done of total as "D/T (P%)".
func FormatProgress(done, total int) string {
	if total == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", done, total, Ratio(done, total)*100)
}

// Ratio returns done/total clamped to [0, 1].
func Ratio(done, total int) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 1
	}
	return float64(done) / float64(total)
}
