// Package weekid builds and validates the ISO week identifiers used as the
// memory store's partition key (e.g. "2026-W07").
package weekid

import (
	"fmt"
	"regexp"
	"time"
)

var pattern = regexp.MustCompile(`^\d{4}-W\d{2}$`)

// At returns the ISO week id for the given time.
func At(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Current returns the ISO week id for the current time.
func Current() string {
	return At(time.Now())
}

// Valid reports whether s has the shape of an ISO week id. It checks the
// format and the week range, not the calendar (a 53rd week is accepted for
// every year).
func Valid(s string) bool {
	if !pattern.MatchString(s) {
		return false
	}
	week := int(s[6]-'0')*10 + int(s[7]-'0')
	return week >= 1 && week <= 53
}
