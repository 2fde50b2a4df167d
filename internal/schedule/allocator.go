package schedule

import (
	"fmt"
	"slices"
)

// FreeSlots returns the parts of window not covered by any booking, in ascending order.
// Bookings may overlap each other, touch, or extend past the window; the result never
// contains zero-length intervals and never overlaps a booking.
func FreeSlots(window Interval, bookings []Interval) []Interval {
	sorted := slices.Clone(bookings)
	slices.SortFunc(sorted, func(a, b Interval) int { return int(a.Start - b.Start) })

	var free []Interval
	cursor := window.Start
	for _, b := range sorted {
		if cursor >= window.End {
			break
		}
		if b.Start > cursor {
			free = append(free, Interval{Start: cursor, End: min(b.Start, window.End)})
		}
		// max, not b.End: a booking nested inside an earlier one must not reopen covered time.
		cursor = max(cursor, b.End)
	}
	if cursor < window.End {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// StartOptions lists selectable start times for slot: every Step from slot.Start that still
// leaves room for one Step before slot.End. A slot shorter than Step has none.
func StartOptions(slot Interval) []Minutes {
	var out []Minutes
	for t := slot.Start; t+Step <= slot.End; t += Step {
		out = append(out, t)
	}
	return out
}

// EndOptions lists selectable end times for slot: every Step from slot.Start+Step up to and including slot.End.
func EndOptions(slot Interval) []Minutes {
	var out []Minutes
	for t := slot.Start + Step; t <= slot.End; t += Step {
		out = append(out, t)
	}
	return out
}

// SelectRange validates a sub-window [start, end) chosen from slot's start and end options.
func SelectRange(slot Interval, start, end Minutes) (Interval, error) {
	if !slices.Contains(StartOptions(slot), start) {
		return Interval{}, fmt.Errorf("start %s is not offered for slot %s", start, slot)
	}
	if !slices.Contains(EndOptions(slot), end) {
		return Interval{}, fmt.Errorf("end %s is not offered for slot %s", end, slot)
	}
	return NewInterval(start, end)
}

// SlotContaining returns the free slot that fully contains r.
func SlotContaining(free []Interval, r Interval) (Interval, bool) {
	for _, s := range free {
		if s.Contains(r) {
			return s, true
		}
	}
	return Interval{}, false
}
