package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepass/backend/internal/approval"
	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

type fakePlaces struct {
	place *models.Place
}

func (f *fakePlaces) GetByID(_ context.Context, id uuid.UUID) (*models.Place, error) {
	if f.place == nil || f.place.ID != id {
		return nil, apperr.ErrNotFound
	}
	return f.place, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    apperr.Code     `json:"code"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakePlaces) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	places := &fakePlaces{place: &models.Place{ID: uuid.New(), OpenDays: []int{1, 2, 3, 4, 5}, OpensAt: "09:00", ClosesAt: "17:00"}}
	invitation := models.Invitation{ID: uuid.New(), PlaceID: places.place.ID, Type: "meeting", Status: models.InvitationScheduled}
	m := NewManager(Deps{
		Invitations:  &fakeInvitations{list: []models.Invitation{invitation}},
		Participants: &fakeParticipants{},
	}, func() Poller {
		return approval.NewPoller(&switchAuthority{}, approval.Config{}, nil, approval.WithTicker((&manualClock{}).NewTicker))
	})
	t.Cleanup(m.Shutdown)
	r := gin.New()
	NewHandler(m, places, nil, nil).Register(r.Group("/sessions"))
	return r, places
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestHandlerSessionFlow(t *testing.T) {
	r, places := newTestRouter(t)

	// 2026-10-15 is a Thursday.
	code, env := do(t, r, http.MethodPost, "/sessions", CreateSessionRequest{PlaceID: places.place.ID.String(), Date: "2026-10-15"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var view View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "welcome", view.StepName)
	base := "/sessions/" + view.SessionID.String()

	code, env = do(t, r, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	code, env = do(t, r, http.MethodPost, base+"/meeting-type", MeetingTypeRequest{Type: "meeting"})
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Invitations, 1)

	code, env = do(t, r, http.MethodPost, base+"/invitation", InvitationRequest{InvitationID: view.Invitations[0].ID.String()})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = do(t, r, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, apperr.CodeValidation, env.Code)

	code, env = do(t, r, http.MethodPost, base+"/participants", ParticipantRequest{Email: "not-an-email", FullName: "X"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, r, http.MethodPost, base+"/participants", ParticipantRequest{Email: "ana@example.com", FullName: "Ana"})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPost, base+"/participants/toggle", ToggleRequest{Email: "ana@example.com"})
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, r, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "awaiting_approval", view.StepName)

	code, env = do(t, r, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperr.CodeGuardedState, env.Code)

	code, _ = do(t, r, http.MethodPost, base+"/cancel", CancelRequest{Force: true})
	require.Equal(t, http.StatusOK, code)
	code, env = do(t, r, http.MethodPost, base+"/cancel/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "welcome", view.StepName)

	code, _ = do(t, r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlerCreateValidation(t *testing.T) {
	r, places := newTestRouter(t)

	// 2026-10-18 is a Sunday.
	code, env := do(t, r, http.MethodPost, "/sessions", CreateSessionRequest{PlaceID: places.place.ID.String(), Date: "2026-10-18"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "closed")

	code, _ = do(t, r, http.MethodPost, "/sessions", CreateSessionRequest{PlaceID: uuid.NewString(), Date: "2026-10-15"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPost, "/sessions", CreateSessionRequest{PlaceID: places.place.ID.String(), Date: "15/10/2026"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, r, http.MethodGet, "/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandlerReceiptWithoutStorage(t *testing.T) {
	r, places := newTestRouter(t)
	_, env := do(t, r, http.MethodPost, "/sessions", CreateSessionRequest{PlaceID: places.place.ID.String(), Date: "2026-10-15"})
	var view View
	require.NoError(t, json.Unmarshal(env.Data, &view))

	code, _ := do(t, r, http.MethodGet, "/sessions/"+view.SessionID.String()+"/passes/"+uuid.NewString()+"/receipt", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
