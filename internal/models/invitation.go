package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationScheduled InvitationStatus = "scheduled"
	InvitationCompleted InvitationStatus = "completed"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation is a scheduled meeting at a place. Non-cancelled invitations occupy their time range.
type Invitation struct {
	ID        uuid.UUID        `json:"id"`
	PlaceID   uuid.UUID        `json:"place_id"`
	Date      time.Time        `json:"date"`
	StartTime string           `json:"start_time"` // "HH:MM"
	EndTime   string           `json:"end_time"`   // "HH:MM"
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Status    InvitationStatus `json:"status"`
	CreatedBy uuid.UUID        `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// Booking returns the time range the invitation occupies.
func (i *Invitation) Booking() Booking {
	return Booking{InvitationID: i.ID, PlaceID: i.PlaceID, Date: i.Date, Start: i.StartTime, End: i.EndTime}
}
