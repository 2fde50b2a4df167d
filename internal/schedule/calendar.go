package schedule

import "time"

// Calendar is a place's weekly availability and daily operating window.
type Calendar struct {
	OpenDays map[time.Weekday]bool
	Window   Interval
}

// NewCalendar builds a Calendar from weekday numbers (0=Sunday..6=Saturday) and "HH:MM" hours.
func NewCalendar(openDays []int, opensAt, closesAt string) (Calendar, error) {
	window, err := ParseInterval(opensAt, closesAt)
	if err != nil {
		return Calendar{}, err
	}
	days := make(map[time.Weekday]bool, len(openDays))
	for _, d := range openDays {
		if d >= 0 && d <= 6 {
			days[time.Weekday(d)] = true
		}
	}
	return Calendar{OpenDays: days, Window: window}, nil
}

// OpenOn reports whether the place accepts bookings on date's weekday.
func (c Calendar) OpenOn(date time.Time) bool {
	return c.OpenDays[date.Weekday()]
}

// SlotsOn returns the free slots on date given that date's bookings. Closed days have none.
func (c Calendar) SlotsOn(date time.Time, bookings []Interval) []Interval {
	if !c.OpenOn(date) {
		return nil
	}
	return FreeSlots(c.Window, bookings)
}
