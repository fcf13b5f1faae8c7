package cli

import (
	"fmt"
	"time"
)

// FormatDuration renders d compactly: 850ms, 12.5s, 3m4.0s.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// ShortID returns the first eight characters of a run id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
