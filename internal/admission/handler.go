package admission

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/schedule"
	"github.com/placepass/backend/pkg/response"
	"github.com/placepass/backend/pkg/storage"
)

// PlaceLookup resolves the place a session is opened for.
type PlaceLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Place, error)
}

// ReceiptSigner returns download URLs for archived pass receipts.
type ReceiptSigner interface {
	PresignReceipt(ctx context.Context, key string) (string, error)
}

// CreateSessionRequest is the body for POST /sessions.
type CreateSessionRequest struct {
	PlaceID string `json:"place_id" binding:"required,uuid"`
	Date    string `json:"date" binding:"required"`
}

// MeetingTypeRequest is the body for POST /sessions/:id/meeting-type.
type MeetingTypeRequest struct {
	Type string `json:"type" binding:"required"`
}

// InvitationRequest is the body for POST /sessions/:id/invitation.
type InvitationRequest struct {
	InvitationID string `json:"invitation_id" binding:"required,uuid"`
}

// ParticipantRequest is the body for POST /sessions/:id/participants.
type ParticipantRequest struct {
	Email    string `json:"email" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
}

// ToggleRequest is the body for POST /sessions/:id/participants/toggle.
type ToggleRequest struct {
	Email string `json:"email" binding:"required"`
}

// CancelRequest is the body for POST /sessions/:id/cancel.
// Force must be set to cancel while approval is pending or granted; without it those steps
// answer 409 GUARDED_STATE.
type CancelRequest struct {
	Force bool `json:"force"`
}

// Handler exposes admission sessions over HTTP.
type Handler struct {
	manager  *Manager
	places   PlaceLookup
	receipts ReceiptSigner
	logger   *zap.Logger
}

// NewHandler creates an admission handler. receipts may be nil when S3 is not configured.
func NewHandler(manager *Manager, places PlaceLookup, receipts ReceiptSigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, places: places, receipts: receipts, logger: logger}
}

// Register mounts the session routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/start", h.Start)
	rg.POST("/:id/meeting-type", h.ChooseMeetingType)
	rg.POST("/:id/invitation", h.ChooseInvitation)
	rg.POST("/:id/participants", h.AddParticipant)
	rg.POST("/:id/participants/toggle", h.ToggleParticipant)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/finish", h.Finish)
	rg.POST("/:id/previous", h.Previous)
	rg.POST("/:id/cancel", h.RequestCancel)
	rg.POST("/:id/cancel/confirm", h.ConfirmCancel)
	rg.POST("/:id/cancel/dismiss", h.DismissCancel)
	rg.GET("/:id/passes/:participantId/receipt", h.Receipt)
}

func (h *Handler) session(c *gin.Context) (*Workflow, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	w, err := h.manager.Get(id)
	if err != nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	return w, true
}

// reply sends the session view, or err mapped to its status.
func (h *Handler) reply(c *gin.Context, w *Workflow, err error) {
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			h.logger.Error("session operation failed", zap.String("session_id", w.ID().String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, w.Snapshot())
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	placeID := uuid.MustParse(req.PlaceID)
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		response.Error(c, apperr.Validation("invalid date %q", req.Date))
		return
	}
	if h.places != nil {
		place, err := h.places.GetByID(c.Request.Context(), placeID)
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "place not found")
			return
		}
		if err != nil {
			response.Error(c, apperr.Collaborator("get place", err))
			return
		}
		cal, err := schedule.NewCalendar(place.OpenDays, place.OpensAt, place.ClosesAt)
		if err != nil {
			response.Internal(c, "place has invalid operating hours")
			return
		}
		if !cal.OpenOn(date) {
			response.Error(c, apperr.Validation("place is closed on %s", req.Date))
			return
		}
	}
	w := h.manager.Create(placeID, date)
	response.Created(c, w.Snapshot())
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	if w, ok := h.session(c); ok {
		response.OK(c, w.Snapshot())
	}
}

// Delete handles DELETE /sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.manager.Remove(id); err != nil {
		response.NotFound(c, "session not found")
		return
	}
	response.NoContent(c)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	if w, ok := h.session(c); ok {
		h.reply(c, w, w.Start(c.Request.Context()))
	}
}

// ChooseMeetingType handles POST /sessions/:id/meeting-type.
func (h *Handler) ChooseMeetingType(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	var req MeetingTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.reply(c, w, w.ChooseMeetingType(req.Type))
}

// ChooseInvitation handles POST /sessions/:id/invitation.
func (h *Handler) ChooseInvitation(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	var req InvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.reply(c, w, w.ChooseInvitation(c.Request.Context(), uuid.MustParse(req.InvitationID)))
}

// AddParticipant handles POST /sessions/:id/participants.
func (h *Handler) AddParticipant(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := w.AddParticipant(models.Participant{
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Company:  req.Company,
	})
	h.reply(c, w, err)
}

// ToggleParticipant handles POST /sessions/:id/participants/toggle.
func (h *Handler) ToggleParticipant(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	_, err := w.ToggleParticipant(req.Email)
	h.reply(c, w, err)
}

// Submit handles POST /sessions/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	if w, ok := h.session(c); ok {
		h.reply(c, w, w.Submit(c.Request.Context()))
	}
}

// Finish handles POST /sessions/:id/finish.
func (h *Handler) Finish(c *gin.Context) {
	if w, ok := h.session(c); ok {
		h.reply(c, w, w.Finish())
	}
}

// Previous handles POST /sessions/:id/previous.
func (h *Handler) Previous(c *gin.Context) {
	if w, ok := h.session(c); ok {
		h.reply(c, w, w.Previous())
	}
}

// RequestCancel handles POST /sessions/:id/cancel with an optional {"force": true} body.
// An empty body is an unforced request, rejected with 409 GUARDED_STATE during awaiting_approval
// and approved. A forced request still needs /cancel/confirm, and it lapses if the step changes
// before confirmation.
func (h *Handler) RequestCancel(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	h.reply(c, w, w.RequestCancel(req.Force))
}

// ConfirmCancel handles POST /sessions/:id/cancel/confirm.
func (h *Handler) ConfirmCancel(c *gin.Context) {
	if w, ok := h.session(c); ok {
		h.reply(c, w, w.ConfirmCancel())
	}
}

// DismissCancel handles POST /sessions/:id/cancel/dismiss.
func (h *Handler) DismissCancel(c *gin.Context) {
	if w, ok := h.session(c); ok {
		w.DismissCancel()
		response.OK(c, w.Snapshot())
	}
}

// Receipt handles GET /sessions/:id/passes/:participantId/receipt.
func (h *Handler) Receipt(c *gin.Context) {
	w, ok := h.session(c)
	if !ok {
		return
	}
	if h.receipts == nil {
		response.ServiceUnavailable(c, "receipt storage not configured")
		return
	}
	participantID, err := uuid.Parse(c.Param("participantId"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	approved := false
	for _, a := range w.Snapshot().Approved {
		if a.ID == participantID {
			approved = true
			break
		}
	}
	if !approved {
		response.NotFound(c, "no pass issued for participant in this session")
		return
	}
	url, err := h.receipts.PresignReceipt(c.Request.Context(), storage.ReceiptKey(w.ID().String(), participantID.String()))
	if err != nil {
		h.logger.Warn("presign receipt failed", zap.Error(err), zap.String("participant_id", participantID.String()))
		response.Error(c, apperr.Collaborator("presign receipt", err))
		return
	}
	response.OK(c, gin.H{"url": url})
}
