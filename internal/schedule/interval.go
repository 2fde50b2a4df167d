package schedule

import "fmt"

// Interval is a half-open time range [Start, End) on one date.
type Interval struct {
	Start Minutes `json:"start"`
	End   Minutes `json:"end"`
}

// NewInterval returns [start, end) or ErrEmptyInterval when start >= end.
func NewInterval(start, end Minutes) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrEmptyInterval, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// ParseInterval parses a pair of "HH:MM" strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(s, e)
}

// Len is the interval length in minutes.
func (i Interval) Len() Minutes { return i.End - i.Start }

// Overlaps reports whether i and o share at least one minute.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}
