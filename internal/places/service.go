package places

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/schedule"
)

// Store reads places.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Place, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Place, error)
}

// BookingStore lists the time ranges already booked at a place on a date.
type BookingStore interface {
	ListBookings(ctx context.Context, placeID uuid.UUID, date time.Time) ([]models.Booking, error)
}

// DaySlots is the availability of a place on one date.
type DaySlots struct {
	PlaceID uuid.UUID           `json:"place_id"`
	Date    string              `json:"date"`
	Open    bool                `json:"open"`
	Window  schedule.Interval   `json:"window"`
	Slots   []schedule.Interval `json:"slots"`
}

// SlotOptions are the selectable start and end times within one free slot.
type SlotOptions struct {
	Slot   schedule.Interval  `json:"slot"`
	Starts []schedule.Minutes `json:"start_options"`
	Ends   []schedule.Minutes `json:"end_options"`
}

// Service computes free slots from places and their bookings.
type Service struct {
	places   Store
	bookings BookingStore
	logger   *zap.Logger
}

// NewService creates a slot service.
func NewService(places Store, bookings BookingStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{places: places, bookings: bookings, logger: logger}
}

// List returns a company's places.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]models.Place, error) {
	list, err := s.places.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, apperr.Collaborator("list places", err)
	}
	return list, nil
}

// Get returns one place.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Place, error) {
	p, err := s.places.GetByID(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Collaborator("get place", err)
	}
	return p, err
}

// Calendar returns the place and its parsed calendar.
func (s *Service) Calendar(ctx context.Context, placeID uuid.UUID) (*models.Place, schedule.Calendar, error) {
	p, err := s.Get(ctx, placeID)
	if err != nil {
		return nil, schedule.Calendar{}, err
	}
	cal, err := schedule.NewCalendar(p.OpenDays, p.OpensAt, p.ClosesAt)
	if err != nil {
		return nil, schedule.Calendar{}, apperr.Validation("place %s has invalid operating hours: %v", p.ID, err)
	}
	return p, cal, nil
}

// Slots returns the free slots of a place on date. A closed weekday has no slots.
func (s *Service) Slots(ctx context.Context, placeID uuid.UUID, date time.Time) (DaySlots, error) {
	_, cal, err := s.Calendar(ctx, placeID)
	if err != nil {
		return DaySlots{}, err
	}
	out := DaySlots{PlaceID: placeID, Date: schedule.FormatDate(date), Open: cal.OpenOn(date), Window: cal.Window, Slots: []schedule.Interval{}}
	if !out.Open {
		return out, nil
	}
	bookings, err := s.bookings.ListBookings(ctx, placeID, date)
	if err != nil {
		return DaySlots{}, apperr.Collaborator("list bookings", err)
	}
	booked, err := s.intervals(bookings)
	if err != nil {
		return DaySlots{}, err
	}
	if slots := cal.SlotsOn(date, booked); slots != nil {
		out.Slots = slots
	}
	return out, nil
}

// Options returns the start and end options of the free slot [start, end) on date.
// The range must be one of the currently free slots.
func (s *Service) Options(ctx context.Context, placeID uuid.UUID, date time.Time, slot schedule.Interval) (SlotOptions, error) {
	day, err := s.Slots(ctx, placeID, date)
	if err != nil {
		return SlotOptions{}, err
	}
	for _, free := range day.Slots {
		if free == slot {
			return SlotOptions{Slot: slot, Starts: schedule.StartOptions(slot), Ends: schedule.EndOptions(slot)}, nil
		}
	}
	return SlotOptions{}, apperr.Validation("%s is not a free slot on %s", slot, day.Date)
}

// intervals converts bookings to intervals. A malformed row fails the whole day: skipping it
// would report booked time as free.
func (s *Service) intervals(bookings []models.Booking) ([]schedule.Interval, error) {
	out := make([]schedule.Interval, 0, len(bookings))
	for _, b := range bookings {
		iv, err := schedule.ParseInterval(b.Start, b.End)
		if err != nil {
			s.logger.Error("malformed booking", zap.String("invitation_id", b.InvitationID.String()),
				zap.String("start", b.Start), zap.String("end", b.End), zap.Error(err))
			return nil, apperr.Collaborator(fmt.Sprintf("booking of invitation %s", b.InvitationID), err)
		}
		out = append(out, iv)
	}
	return out, nil
}

// CheckRange verifies that r can be booked on date: the place is open, r lies inside one free
// slot, and its bounds are among that slot's options.
func (s *Service) CheckRange(ctx context.Context, placeID uuid.UUID, date time.Time, r schedule.Interval) error {
	day, err := s.Slots(ctx, placeID, date)
	if err != nil {
		return err
	}
	if !day.Open {
		return apperr.Validation("place is closed on %s", day.Date)
	}
	if !day.Window.Contains(r) {
		return apperr.Validation("%s is outside operating hours %s", r, day.Window)
	}
	slot, ok := schedule.SlotContaining(day.Slots, r)
	if !ok {
		return fmt.Errorf("%w: %s overlaps an existing booking", apperr.ErrConflict, r)
	}
	if _, err := schedule.SelectRange(slot, r.Start, r.End); err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}
