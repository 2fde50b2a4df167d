package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iv(t *testing.T, start, end string) Interval {
	t.Helper()
	i, err := ParseInterval(start, end)
	require.NoError(t, err)
	return i
}

func TestFreeSlots(t *testing.T) {
	window := iv(t, "09:00", "17:00")

	tests := []struct {
		name     string
		bookings []Interval
		want     []Interval
	}{
		{
			name: "no bookings",
			want: []Interval{window},
		},
		{
			name:     "booking equals window",
			bookings: []Interval{window},
			want:     nil,
		},
		{
			name:     "single booking mid-day",
			bookings: []Interval{iv(t, "10:00", "11:00")},
			want:     []Interval{iv(t, "09:00", "10:00"), iv(t, "11:00", "17:00")},
		},
		{
			name:     "overlapping bookings collapse",
			bookings: []Interval{iv(t, "10:00", "12:00"), iv(t, "11:00", "13:00")},
			want:     []Interval{iv(t, "09:00", "10:00"), iv(t, "13:00", "17:00")},
		},
		{
			name:     "nested booking does not reopen covered time",
			bookings: []Interval{iv(t, "10:00", "14:00"), iv(t, "11:00", "12:00")},
			want:     []Interval{iv(t, "09:00", "10:00"), iv(t, "14:00", "17:00")},
		},
		{
			name:     "adjacent bookings leave no zero-length gap",
			bookings: []Interval{iv(t, "10:00", "11:00"), iv(t, "11:00", "12:00")},
			want:     []Interval{iv(t, "09:00", "10:00"), iv(t, "12:00", "17:00")},
		},
		{
			name:     "unsorted input",
			bookings: []Interval{iv(t, "15:00", "16:00"), iv(t, "09:30", "10:00")},
			want:     []Interval{iv(t, "09:00", "09:30"), iv(t, "10:00", "15:00"), iv(t, "16:00", "17:00")},
		},
		{
			name:     "booking at window start",
			bookings: []Interval{iv(t, "09:00", "09:30")},
			want:     []Interval{iv(t, "09:30", "17:00")},
		},
		{
			name:     "booking at window end",
			bookings: []Interval{iv(t, "16:00", "17:00")},
			want:     []Interval{iv(t, "09:00", "16:00")},
		},
		{
			name:     "bookings spilling past the window are clipped",
			bookings: []Interval{iv(t, "08:00", "09:30"), iv(t, "16:30", "18:00")},
			want:     []Interval{iv(t, "09:30", "16:30")},
		},
		{
			name:     "booking entirely after window",
			bookings: []Interval{iv(t, "18:00", "19:00")},
			want:     []Interval{window},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreeSlots(window, tt.bookings))
		})
	}
}

func TestFreeSlotsDoesNotMutateInput(t *testing.T) {
	bookings := []Interval{iv(t, "15:00", "16:00"), iv(t, "10:00", "11:00")}
	FreeSlots(iv(t, "09:00", "17:00"), bookings)
	assert.Equal(t, Minutes(15*60), bookings[0].Start)
}

// TestFreeSlotsPartitionsWindow checks minute by minute that the free slots are exactly
// the window minus the bookings, sorted, disjoint and non-empty.
func TestFreeSlotsPartitionsWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		s := Minutes(rng.Intn(12 * 60))
		e := s + 1 + Minutes(rng.Intn(12*60))
		window := Interval{Start: s, End: e}

		var bookings []Interval
		for n := rng.Intn(8); n > 0; n-- {
			bs := Minutes(rng.Intn(int(EndOfDay) - 1))
			be := bs + 1 + Minutes(rng.Intn(180))
			bookings = append(bookings, Interval{Start: bs, End: min(be, EndOfDay)})
		}

		free := FreeSlots(window, bookings)

		for i, f := range free {
			require.Less(t, f.Start, f.End, "round %d: empty slot %v", round, f)
			require.True(t, window.Contains(f), "round %d: %v outside window", round, f)
			if i > 0 {
				require.Less(t, free[i-1].End, f.Start+1, "round %d: unordered or overlapping", round)
			}
		}

		for m := window.Start; m < window.End; m++ {
			booked := false
			for _, b := range bookings {
				if b.Start <= m && m < b.End {
					booked = true
					break
				}
			}
			inFree := false
			for _, f := range free {
				if f.Start <= m && m < f.End {
					inFree = true
					break
				}
			}
			require.Equal(t, !booked, inFree, "round %d minute %s", round, m)
		}
	}
}

func TestStartAndEndOptions(t *testing.T) {
	slot := iv(t, "11:00", "17:00")

	starts := StartOptions(slot)
	ends := EndOptions(slot)

	require.Len(t, starts, 12)
	require.Len(t, ends, 12)
	assert.Equal(t, "11:00", starts[0].String())
	assert.Equal(t, "11:30", starts[1].String())
	assert.Equal(t, "16:30", starts[len(starts)-1].String())
	assert.Equal(t, "11:30", ends[0].String())
	assert.Equal(t, "17:00", ends[len(ends)-1].String())
}

func TestOptionsForShortSlot(t *testing.T) {
	slot := iv(t, "09:00", "09:45")

	assert.Equal(t, []Minutes{9 * 60}, StartOptions(slot), "09:30 would leave no bookable end")
	assert.Equal(t, []Minutes{9*60 + 30}, EndOptions(slot))

	tiny := iv(t, "10:00", "10:15")
	assert.Empty(t, StartOptions(tiny))
	assert.Empty(t, EndOptions(tiny))
	_, err := SelectRange(tiny, 10*60, 10*60+15)
	assert.Error(t, err)

	exact := iv(t, "10:00", "10:30")
	assert.Equal(t, []Minutes{10 * 60}, StartOptions(exact))
	assert.Equal(t, []Minutes{10*60 + 30}, EndOptions(exact))
}

func TestSelectRange(t *testing.T) {
	slot := iv(t, "11:00", "17:00")

	got, err := SelectRange(slot, 11*60+30, 13*60)
	require.NoError(t, err)
	assert.Equal(t, iv(t, "11:30", "13:00"), got)

	_, err = SelectRange(slot, 13*60, 13*60)
	assert.Error(t, err)

	_, err = SelectRange(slot, 14*60, 13*60)
	assert.ErrorIs(t, err, ErrEmptyInterval)

	_, err = SelectRange(slot, 11*60+15, 12*60)
	assert.Error(t, err)

	_, err = SelectRange(slot, 16*60+30, 17*60+30)
	assert.Error(t, err)
}

func TestSlotContaining(t *testing.T) {
	free := []Interval{iv(t, "09:00", "10:00"), iv(t, "11:00", "17:00")}

	s, ok := SlotContaining(free, iv(t, "12:00", "13:00"))
	assert.True(t, ok)
	assert.Equal(t, free[1], s)

	_, ok = SlotContaining(free, iv(t, "09:30", "11:30"))
	assert.False(t, ok)
}

func TestCalendarSlotsOn(t *testing.T) {
	cal, err := NewCalendar([]int{1, 2, 3, 4, 5}, "09:00", "17:00")
	require.NoError(t, err)

	monday := time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)
	sunday := monday.AddDate(0, 0, -1)

	assert.True(t, cal.OpenOn(monday))
	assert.False(t, cal.OpenOn(sunday))
	assert.Nil(t, cal.SlotsOn(sunday, nil))
	assert.Equal(t,
		[]Interval{iv(t, "09:00", "10:00"), iv(t, "11:00", "17:00")},
		cal.SlotsOn(monday, []Interval{iv(t, "10:00", "11:00")}),
	)

	_, err = NewCalendar(nil, "17:00", "09:00")
	assert.ErrorIs(t, err, ErrEmptyInterval)
}
