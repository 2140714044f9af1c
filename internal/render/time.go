package render

import (
	"time"

	"github.com/dustin/go-humanize"
)

// TimeAgo formats t relative to now, e.g. "3 hours ago".
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.After(now) {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
