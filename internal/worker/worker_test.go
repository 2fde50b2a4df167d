package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepass/backend/internal/admission"
	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/pkg/queue"
	"github.com/placepass/backend/pkg/storage"
)

type fakeMarker struct {
	marked map[uuid.UUID]string
	err    error
}

func (f *fakeMarker) MarkApproved(_ context.Context, id uuid.UUID, passID string) error {
	if f.err != nil {
		return f.err
	}
	if f.marked == nil {
		f.marked = map[uuid.UUID]string{}
	}
	f.marked[id] = passID
	return nil
}

type fakeArchive struct {
	objects map[string]any
	images  map[string][]byte
}

func (f *fakeArchive) PutPassImage(_ context.Context, key string, png []byte) error {
	if f.images == nil {
		f.images = map[string][]byte{}
	}
	f.images[key] = png
	return nil
}

func (f *fakeArchive) PutReceipt(_ context.Context, key string, v any) error {
	if f.objects == nil {
		f.objects = map[string]any{}
	}
	f.objects[key] = v
	return nil
}

type fakeEnqueuer struct {
	got []queue.PassIssuedPayload
}

func (f *fakeEnqueuer) EnqueuePassIssued(_ context.Context, p []queue.PassIssuedPayload) error {
	f.got = append(f.got, p...)
	return nil
}

func passJob(t *testing.T, p queue.PassIssuedPayload) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypePassIssued, p)
	require.NoError(t, err)
	return job
}

func TestProcessMarksApprovedAndArchivesReceipt(t *testing.T) {
	marker := &fakeMarker{}
	archive := &fakeArchive{}
	p := NewPassProcessor(marker, archive, nil, nil)
	payload := queue.PassIssuedPayload{
		SessionID:     uuid.New(),
		ParticipantID: uuid.New(),
		Email:         "ana@example.com",
		PassID:        "PASS-1",
		Date:          "2026-10-15",
	}

	require.NoError(t, p.Process(context.Background(), passJob(t, payload)))

	assert.Equal(t, "PASS-1", marker.marked[payload.ParticipantID])
	key := storage.ReceiptKey(payload.SessionID.String(), payload.ParticipantID.String())
	require.Contains(t, archive.objects, key)
	receipt := archive.objects[key].(Receipt)
	assert.Equal(t, "ana@example.com", receipt.Email)
	assert.Equal(t, "2026-10-15", receipt.Date)

	qrKey := storage.PassImageKey(payload.SessionID.String(), payload.ParticipantID.String())
	assert.Equal(t, qrKey, receipt.QRKey)
	require.Contains(t, archive.images, qrKey)
	assert.True(t, bytes.HasPrefix(archive.images[qrKey], []byte("\x89PNG")), "pass image is a PNG")
}

func TestProcessSkipsMissingParticipant(t *testing.T) {
	archive := &fakeArchive{}
	p := NewPassProcessor(&fakeMarker{err: apperr.ErrNotFound}, archive, nil, nil)
	err := p.Process(context.Background(), passJob(t, queue.PassIssuedPayload{ParticipantID: uuid.New(), PassID: "X"}))
	require.NoError(t, err)
	assert.Empty(t, archive.objects)
}

func TestProcessFailures(t *testing.T) {
	p := NewPassProcessor(&fakeMarker{err: errors.New("db down")}, nil, nil, nil)

	err := p.Process(context.Background(), passJob(t, queue.PassIssuedPayload{ParticipantID: uuid.New(), PassID: "X"}))
	assert.ErrorContains(t, err, "mark approved")

	err = p.Process(context.Background(), passJob(t, queue.PassIssuedPayload{ParticipantID: uuid.New()}))
	assert.ErrorContains(t, err, "empty pass id")

	err = p.Process(context.Background(), &queue.Job{Type: "other", Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "unknown job type")
}

func TestIssuerEnqueuesOneJobPerParticipant(t *testing.T) {
	q := &fakeEnqueuer{}
	issuer := NewIssuer(q)
	issuer.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	sessionID := uuid.New()
	inv := models.Invitation{ID: uuid.New(), PlaceID: uuid.New(), Date: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)}
	approved := []admission.ApprovedParticipant{
		{ID: uuid.New(), Email: "a@example.com", PassID: "P1"},
		{ID: uuid.New(), Email: "b@example.com", PassID: "P2"},
	}

	require.NoError(t, issuer.IssuePasses(context.Background(), sessionID, inv, approved))

	require.Len(t, q.got, 2)
	for i, p := range q.got {
		assert.Equal(t, sessionID, p.SessionID)
		assert.Equal(t, inv.ID, p.InvitationID)
		assert.Equal(t, "2026-10-15", p.Date)
		assert.Equal(t, approved[i].ID, p.ParticipantID)
		assert.Equal(t, approved[i].PassID, p.PassID)
	}
}
