// Package timewindow decides whether an observation timestamp is recent.
//
// Producers stamp observations either with a bare time of day ("15:04:05") or a full
// date-time. A bare time of day is placed on now's calendar date before comparing, so
// an observation taken at 23:59:30 and evaluated at 00:00:30 the next day looks almost
// 24 hours old and is not recent. This cross-midnight gap is a known limitation of the
// time-of-day format and is kept as is.
//
// The comparison is symmetric: |now - observed| <= window. An observation exactly
// window old still counts, and so does one up to window in the future (producer
// clock skew). This is wider than a strict half-open (now-window, now] interval.
package timewindow

import (
	"strings"
	"time"
)

// Layouts tried in order for full date-time stamps
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// Layouts tried in order for bare time-of-day stamps
var timeOfDayLayouts = []string{
	"15:04:05",
	"15:04",
}

// ObservedAt is a parsed observation timestamp
type ObservedAt struct {
	// Time holds either the full instant or, for time-of-day values, the clock
	// reading on a zero date.
	Time     time.Time
	TimeOnly bool
	Valid    bool
}

// Parse parses a raw "observed-at" value. It never fails: an unparseable value
// yields an ObservedAt with Valid == false.
func Parse(raw string) ObservedAt {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ObservedAt{}
	}

	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return ObservedAt{Time: t, TimeOnly: true, Valid: true}
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ObservedAt{Time: t, Valid: true}
		}
	}
	return ObservedAt{}
}

// Instant resolves the observation to an absolute instant relative to now. Time-of-day
// values take now's calendar date and location.
func (o ObservedAt) Instant(now time.Time) (time.Time, bool) {
	if !o.Valid {
		return time.Time{}, false
	}
	if !o.TimeOnly {
		return o.Time, true
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, o.Time.Hour(), o.Time.Minute(), o.Time.Second(), o.Time.Nanosecond(), now.Location()), true
}

// IsRecent reports whether |now - observedAt| <= window. Invalid timestamps and
// negative windows are never recent.
func IsRecent(observedAt ObservedAt, now time.Time, window time.Duration) bool {
	if window < 0 {
		return false
	}
	candidate, ok := observedAt.Instant(now)
	if !ok {
		return false
	}
	diff := now.Sub(candidate)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// IsRecentRaw parses raw and applies IsRecent
func IsRecentRaw(raw string, now time.Time, window time.Duration) bool {
	return IsRecent(Parse(raw), now, window)
}

// Policy binds a window to the recency check
type Policy struct {
	Window time.Duration
}

// IsRecent applies the policy's window
func (p Policy) IsRecent(observedAt ObservedAt, now time.Time) bool {
	return IsRecent(observedAt, now, p.Window)
}
