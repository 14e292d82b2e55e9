// Package progress turns byte counts into rounded percentages and log cadence.
package progress

import "math"

// DefaultLogInterval is the number of bytes between two progress log lines.
const DefaultLogInterval = 10 * 1024 * 1024

// Tracker accumulates written bytes against an optional total.
// It is not safe for concurrent use; callers serialize access.
type Tracker struct {
	total       int64
	written     int64
	lastPercent int
	sinceLog    int64
	logInterval int64
}

// NewTracker creates a tracker. total <= 0 means unknown; interval <= 0 uses DefaultLogInterval.
func NewTracker(total, interval int64) *Tracker {
	if interval <= 0 {
		interval = DefaultLogInterval
	}

	return &Tracker{total: total, lastPercent: -1, logInterval: interval}
}

// Add records n more bytes and returns the current rounded percent and
// whether it changed since the previous call that reported a change.
// Without a known total it always returns (-1, false).
func (t *Tracker) Add(n int64) (int, bool) {
	t.written += n
	t.sinceLog += n

	if t.total <= 0 {
		return -1, false
	}

	pct := Percent(t.written, t.total)
	if pct == t.lastPercent {
		return pct, false
	}

	t.lastPercent = pct

	return pct, true
}

// LogDue reports whether a log interval has elapsed and restarts the interval when it has.
func (t *Tracker) LogDue() bool {
	if t.sinceLog < t.logInterval {
		return false
	}

	t.sinceLog = 0

	return true
}

func (t *Tracker) Written() int64 { return t.written }

func (t *Tracker) Total() int64 { return t.total }

// Percent returns round(written/total*100) clamped to 0..100.
func Percent(written, total int64) int {
	if total <= 0 {
		return -1
	}

	pct := int(math.Round(float64(written) / float64(total) * 100))

	return min(max(pct, 0), 100)
}
