// Package fhemtime provides parsing and formatting for FHEM timestamps.
//
// FHEM reports times as "YYYY-MM-DD HH:MM:SS" strings in the server's
// local time zone, both in jsonlist2 reading metadata and in event lines.
// Some event sources append fractional seconds ("YYYY-MM-DD HH:MM:SS.fff").
// This package is the single place that knows that layout.
//
// Zero Value Semantics:
//   - A zero time.Time means "unknown time"
//   - Format returns "" for the zero time
//   - Parse returns the zero time together with an error for malformed input
package fhemtime

import (
	"fmt"
	"regexp"
	"time"
)

// Layout is the timestamp layout FHEM uses on the wire.
const Layout = "2006-01-02 15:04:05"

var pattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`)

// Parse converts a FHEM timestamp string to a time.Time in the local
// time zone. An optional fractional second after the seconds field is
// accepted and preserved.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("fhemtime: parse %q: %w", s, err)
	}
	return t, nil
}

// MustParse is Parse that panics on malformed input. For tests and
// package-level constants only.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Format converts a time.Time to the FHEM wire layout.
// Returns "" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// IsTimestamp reports whether s looks like a FHEM timestamp, with or
// without a fractional second. Used to decide whether a reading value
// should be coerced to time.Time.
func IsTimestamp(s string) bool {
	return pattern.MatchString(s)
}
