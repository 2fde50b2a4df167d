package invitations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/middleware"
	"github.com/placepass/backend/internal/schedule"
	"github.com/placepass/backend/pkg/response"
)

// Handler handles invitation HTTP endpoints under /places/:id/invitations.
type Handler struct {
	svc *Service
}

// NewHandler creates an invitations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the invitation routes on a /places group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/:id/invitations", h.Book)
	rg.GET("/:id/invitations", h.List)
}

// Book handles POST /places/:id/invitations.
func (h *Handler) Book(c *gin.Context) {
	placeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid place id")
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	operatorID, ok := c.Get(middleware.ContextUserID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	inv, err := h.svc.Book(c.Request.Context(), placeID, operatorID.(uuid.UUID), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inv)
}

// List handles GET /places/:id/invitations?date=&type=.
func (h *Handler) List(c *gin.Context) {
	placeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid place id")
		return
	}
	date, err := schedule.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid date %q", c.Query("date")))
		return
	}
	list, err := h.svc.List(c.Request.Context(), placeID, date, c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
