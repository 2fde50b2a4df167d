package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/pkg/queue"
	"github.com/placepass/backend/pkg/storage"
)

// ApprovalMarker records an approved participant.
type ApprovalMarker interface {
	MarkApproved(ctx context.Context, id uuid.UUID, passID string) error
}

// ReceiptArchive stores pass receipts and their QR images.
type ReceiptArchive interface {
	PutReceipt(ctx context.Context, key string, v any) error
	PutPassImage(ctx context.Context, key string, png []byte) error
}

// qrSize is the pass QR image edge in pixels.
const qrSize = 256

// Jobs is the queue the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Receipt is the archived record of an issued pass.
type Receipt struct {
	PassID        string    `json:"pass_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	InvitationID  uuid.UUID `json:"invitation_id"`
	PlaceID       uuid.UUID `json:"place_id"`
	Date          string    `json:"date"`
	ApprovedAt    time.Time `json:"approved_at"`
	QRKey         string    `json:"qr_key"`
}

// PassProcessor processes pass issuance jobs: mark the participant approved, archive a receipt.
type PassProcessor struct {
	marker  ApprovalMarker
	archive ReceiptArchive
	jobs    Jobs
	backoff time.Duration
	logger  *zap.Logger
}

// NewPassProcessor creates a pass issuance processor. archive may be nil when S3 is not configured.
func NewPassProcessor(marker ApprovalMarker, archive ReceiptArchive, jobs Jobs, logger *zap.Logger) *PassProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassProcessor{marker: marker, archive: archive, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one pass issuance job.
func (p *PassProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePassIssued {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PassIssuedPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.PassID == "" {
		return fmt.Errorf("job %s: empty pass id", job.ID)
	}

	err := p.marker.MarkApproved(ctx, payload.ParticipantID, payload.PassID)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Warn("participant gone, skipping pass", zap.String("participant_id", payload.ParticipantID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark approved: %w", err)
	}

	if p.archive != nil {
		sessionID, participantID := payload.SessionID.String(), payload.ParticipantID.String()
		png, err := qrcode.Encode(payload.PassID, qrcode.Medium, qrSize)
		if err != nil {
			return fmt.Errorf("render pass qr: %w", err)
		}
		qrKey := storage.PassImageKey(sessionID, participantID)
		if err := p.archive.PutPassImage(ctx, qrKey, png); err != nil {
			return fmt.Errorf("archive pass image: %w", err)
		}
		key := storage.ReceiptKey(sessionID, participantID)
		receipt := Receipt{
			PassID:        payload.PassID,
			ParticipantID: payload.ParticipantID,
			Email:         payload.Email,
			FullName:      payload.FullName,
			InvitationID:  payload.InvitationID,
			PlaceID:       payload.PlaceID,
			Date:          payload.Date,
			ApprovedAt:    payload.ApprovedAt,
			QRKey:         qrKey,
		}
		if err := p.archive.PutReceipt(ctx, key, receipt); err != nil {
			return fmt.Errorf("archive receipt: %w", err)
		}
	}

	p.logger.Info("pass issued", zap.String("participant_id", payload.ParticipantID.String()), zap.String("pass_id", payload.PassID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PassProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pass worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *PassProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
