package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/placepass/backend/internal/admission"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/pkg/queue"
)

// Enqueuer accepts pass issuance jobs. *queue.Queue implements it.
type Enqueuer interface {
	EnqueuePassIssued(ctx context.Context, payloads []queue.PassIssuedPayload) error
}

// Issuer hands approved participants of a session to the pass worker.
type Issuer struct {
	q   Enqueuer
	now func() time.Time
}

// NewIssuer creates an admission.PassIssuer backed by the job queue.
func NewIssuer(q Enqueuer) *Issuer {
	return &Issuer{q: q, now: time.Now}
}

// IssuePasses enqueues one job per approved participant.
func (i *Issuer) IssuePasses(ctx context.Context, sessionID uuid.UUID, inv models.Invitation, approved []admission.ApprovedParticipant) error {
	at := i.now().UTC()
	payloads := make([]queue.PassIssuedPayload, 0, len(approved))
	for _, a := range approved {
		payloads = append(payloads, queue.PassIssuedPayload{
			SessionID:     sessionID,
			InvitationID:  inv.ID,
			PlaceID:       inv.PlaceID,
			Date:          inv.Date.Format("2006-01-02"),
			ParticipantID: a.ID,
			Email:         a.Email,
			FullName:      a.FullName,
			PassID:        a.PassID,
			ApprovedAt:    at,
		})
	}
	return i.q.EnqueuePassIssued(ctx, payloads)
}
