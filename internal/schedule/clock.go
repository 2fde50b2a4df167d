// Package schedule computes free booking windows for a place from its operating hours and existing bookings.
//
// All arithmetic is done on whole minutes since midnight. "HH:MM" strings are converted only at the
// boundary, by ParseClock and Minutes.String.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Minutes is a time of day expressed as minutes since midnight.
type Minutes int

const (
	// EndOfDay is 24:00, the only value past 23:59 that ParseClock accepts.
	EndOfDay Minutes = 24 * 60
	// Step is the granularity of selectable booking boundaries.
	Step Minutes = 30

	dateLayout = "2006-01-02"
)

var (
	ErrInvalidClock  = errors.New("invalid clock value, want HH:MM")
	ErrInvalidDate   = errors.New("invalid date, want YYYY-MM-DD")
	ErrEmptyInterval = errors.New("interval start must be before end")
)

// ParseClock converts a 24-hour "HH:MM" string into Minutes.
func ParseClock(s string) (Minutes, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h == 24 && m == 0 {
		return EndOfDay, nil
	}
	if h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Minutes(h*60 + m), nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// String formats m as "HH:MM".
func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// MarshalText encodes m as "HH:MM" so JSON payloads keep the boundary format.
func (m Minutes) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses "HH:MM".
func (m *Minutes) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD form (UTC, midnight).
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}
