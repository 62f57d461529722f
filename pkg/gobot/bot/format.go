package bot

import (
	"fmt"
	"time"
)

// FormatSeconds renders a number of seconds as HH:MM:SS. Hours are not
// wrapped at 24.
func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

// FormatDuration renders d as HH:MM:SS, truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	return FormatSeconds(int64(d / time.Second))
}
