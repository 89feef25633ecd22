// Package render holds the artefact synthesiser: pure functions from store
// snapshots to rendered embeds with stable payload hashes. Nothing in this
// package mutates state.
package render

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	berlinOnce sync.Once
	berlinLoc  *time.Location
)

// Berlin returns the fixed display timezone of the system. Falls back to a
// static CET offset when the tz database is unavailable.
func Berlin() *time.Location {
	berlinOnce.Do(func() {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			loc = time.FixedZone("CET", 3600)
		}
		berlinLoc = loc
	})
	return berlinLoc
}

// ParseDay parses a day label. Accepted forms are "YYYY-MM-DD (Xx)" with an
// optional weekday suffix, and "DD.MM.YYYY". The result is midnight Berlin.
func ParseDay(label string) (time.Time, bool) {
	s := strings.TrimSpace(label)
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, s, Berlin()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseClock parses an "HH:MM" time label.
func ParseClock(label string) (hour, minute int, ok bool) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(label), "%d:%d", &h, &m); err != nil {
		return 0, 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// SlotStart resolves a (day, time) label pair to an absolute Berlin time.
func SlotStart(day, timeLabel string) (time.Time, bool) {
	d, ok := ParseDay(day)
	if !ok {
		return time.Time{}, false
	}
	h, m, ok := ParseClock(timeLabel)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, Berlin()), true
}

// FormatRelative renders a duration offset in the compact German form used
// across the embeds ("in 2 Std 10 Min", "vor 5 Min", "jetzt").
func FormatRelative(from, to time.Time) string {
	d := to.Sub(from).Round(time.Minute)
	prefix := "in"
	if d < 0 {
		prefix = "vor"
		d = -d
	}
	if d < time.Minute {
		return "jetzt"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%s %d Std %d Min", prefix, h, m)
	case h > 0:
		return fmt.Sprintf("%s %d Std", prefix, h)
	default:
		return fmt.Sprintf("%s %d Min", prefix, m)
	}
}
