package invitations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/schedule"
)

// Store persists invitations.
type Store interface {
	ListByPlaceAndDate(ctx context.Context, placeID uuid.UUID, date time.Time) ([]models.Invitation, error)
	ListByType(ctx context.Context, placeID uuid.UUID, date time.Time, meetingType string) ([]models.Invitation, error)
	Create(ctx context.Context, inv *models.Invitation) error
}

// RangeChecker validates that a range is bookable at a place. *places.Service implements it.
type RangeChecker interface {
	CheckRange(ctx context.Context, placeID uuid.UUID, date time.Time, r schedule.Interval) error
}

// BookRequest describes a new invitation.
type BookRequest struct {
	Date  string `json:"date" binding:"required"`
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
	Type  string `json:"type" binding:"required"`
	Title string `json:"title"`
}

// Service books and lists invitations.
type Service struct {
	store  Store
	ranges RangeChecker
	logger *zap.Logger
}

// NewService creates an invitations service.
func NewService(store Store, ranges RangeChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, ranges: ranges, logger: logger}
}

// Book reserves [start, end) at a place on a date as a new invitation created by operatorID.
func (s *Service) Book(ctx context.Context, placeID, operatorID uuid.UUID, req BookRequest) (*models.Invitation, error) {
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.Validation("invalid date %q", req.Date)
	}
	r, err := schedule.ParseInterval(req.Start, req.End)
	if err != nil {
		return nil, apperr.Validation("invalid range: %v", err)
	}
	meetingType := strings.TrimSpace(req.Type)
	if meetingType == "" {
		return nil, apperr.Validation("meeting type is required")
	}
	if err := s.ranges.CheckRange(ctx, placeID, date, r); err != nil {
		return nil, err
	}

	inv := &models.Invitation{
		PlaceID:   placeID,
		Date:      date,
		StartTime: r.Start.String(),
		EndTime:   r.End.String(),
		Type:      meetingType,
		Title:     strings.TrimSpace(req.Title),
		Status:    models.InvitationScheduled,
		CreatedBy: operatorID,
	}
	if err := s.store.Create(ctx, inv); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, apperr.Collaborator("create invitation", err)
	}
	s.logger.Info("invitation booked",
		zap.String("invitation_id", inv.ID.String()), zap.String("place_id", placeID.String()),
		zap.String("date", req.Date), zap.Stringer("range", r))
	return inv, nil
}

// List returns the invitations at a place on a date, optionally of one meeting type.
func (s *Service) List(ctx context.Context, placeID uuid.UUID, date time.Time, meetingType string) ([]models.Invitation, error) {
	var (
		list []models.Invitation
		err  error
	)
	if meetingType = strings.TrimSpace(meetingType); meetingType != "" {
		list, err = s.store.ListByType(ctx, placeID, date, meetingType)
	} else {
		list, err = s.store.ListByPlaceAndDate(ctx, placeID, date)
	}
	if err != nil {
		return nil, apperr.Collaborator("list invitations", err)
	}
	if list == nil {
		list = []models.Invitation{}
	}
	return list, nil
}
