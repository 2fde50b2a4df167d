package models

import (
	"time"

	"github.com/google/uuid"
)

// VisitorStatus tracks a participant through admission.
type VisitorStatus string

const (
	VisitorPending  VisitorStatus = "pending"
	VisitorAdmit    VisitorStatus = "admit"
	VisitorApproved VisitorStatus = "approved"
)

// Participant is an external visitor tied to an invitation. Email is unique per invitation.
type Participant struct {
	ID           *uuid.UUID    `json:"id,omitempty"`
	InvitationID uuid.UUID     `json:"invitation_id"`
	Email        string        `json:"email"`
	FullName     string        `json:"full_name"`
	Phone        string        `json:"phone,omitempty"`
	Company      string        `json:"company,omitempty"`
	IsApproved   bool          `json:"is_approved"`
	PassID       *string       `json:"pass_id,omitempty"`
	Status       VisitorStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

// ParticipantFields are the mutable fields written by an update.
type ParticipantFields struct {
	FullName string        `json:"full_name"`
	Phone    string        `json:"phone"`
	Company  string        `json:"company"`
	Status   VisitorStatus `json:"status"`
}

// ApprovalStatus is the approval authority's view of one participant.
type ApprovalStatus struct {
	ID         uuid.UUID `json:"id"`
	IsApproved bool      `json:"is_approved"`
	PassID     string    `json:"pass_id,omitempty"`
}
