package models

import (
	"time"

	"github.com/google/uuid"
)

// Place is a bookable physical space with weekly availability and daily operating hours.
type Place struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	OpenDays  []int     `json:"open_days"` // 0=Sun..6=Sat
	OpensAt   string    `json:"opens_at"`  // "HH:MM"
	ClosesAt  string    `json:"closes_at"` // "HH:MM"
	CreatedAt time.Time `json:"created_at"`
}

// Booking is the time range an invitation occupies at a place on a date.
type Booking struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	PlaceID      uuid.UUID `json:"place_id"`
	Date         time.Time `json:"date"`
	Start        string    `json:"start"` // "HH:MM"
	End          string    `json:"end"`   // "HH:MM"
}
