package places

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/schedule"
	"github.com/placepass/backend/pkg/response"
)

// Handler handles place HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a places handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the place routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/slots", h.Slots)
	rg.GET("/:id/slots/options", h.Options)
}

// List handles GET /places?company_id=.
func (h *Handler) List(c *gin.Context) {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		response.BadRequest(c, "company_id is required")
		return
	}
	list, err := h.svc.List(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /places/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// Slots handles GET /places/:id/slots?date=YYYY-MM-DD.
func (h *Handler) Slots(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}
	date, err := schedule.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid date %q", c.Query("date")))
		return
	}
	day, err := h.svc.Slots(c.Request.Context(), id, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, day)
}

// Options handles GET /places/:id/slots/options?date=&start=HH:MM&end=HH:MM.
func (h *Handler) Options(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}
	date, err := schedule.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid date %q", c.Query("date")))
		return
	}
	slot, err := schedule.ParseInterval(c.Query("start"), c.Query("end"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid slot: %v", err))
		return
	}
	opts, err := h.svc.Options(c.Request.Context(), id, date, slot)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, opts)
}

func placeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid place id")
		return uuid.Nil, false
	}
	return id, true
}
