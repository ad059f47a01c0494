package calendar

import (
	"strings"
	"time"
)

// DateLayout is the wire format of every date in the snapshot.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders a day in DateLayout.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// NextWeekday returns the first day on or after t that falls on wd.
func NextWeekday(t time.Time, wd time.Weekday) time.Time {
	t = Day(t)
	delta := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, delta)
}

// WeeklyAnchors lists every wd between from and to inclusive.
func WeeklyAnchors(from, to time.Time, wd time.Weekday) []time.Time {
	to = Day(to)
	var out []time.Time
	for a := NextWeekday(from, wd); !a.After(to); a = a.AddDate(0, 0, 7) {
		out = append(out, a)
	}
	return out
}

// ParseWeekday accepts English weekday names and three letter abbreviations.
func ParseWeekday(s string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := wd.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return wd, true
		}
	}
	return time.Sunday, false
}
