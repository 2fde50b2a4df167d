package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/pkg/response"
	"github.com/placepass/backend/pkg/utils"
)

// Context keys set by the JWT middleware.
const (
	ContextOperatorID = "operator_id"
	ContextCompanyID  = "company_id"
	ContextRole       = "operator_role"
)

// OperatorStore reads and creates operators. *Repository implements it.
type OperatorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Operator, error)
	GetByEmail(ctx context.Context, email string) (*models.Operator, error)
	Create(ctx context.Context, op *models.Operator) error
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateOperatorRequest is the body for POST /operators.
type CreateOperatorRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=admin reception"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token    string          `json:"token"`
	Operator models.Operator `json:"operator"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   OperatorStore
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo OperatorStore, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	op, err := h.repo.GetByEmail(c.Request.Context(), utils.NormalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Error("operator lookup failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, op.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(op.ID, op.CompanyID, op.Email, string(op.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: TokenResponse{Token: token, Operator: *op}})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	id := c.MustGet(ContextOperatorID).(uuid.UUID)
	op, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, op)
}

// CreateOperator handles POST /operators (admin only). The new operator joins the caller's company.
func (h *Handler) CreateOperator(c *gin.Context) {
	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	op := &models.Operator{
		CompanyID: c.MustGet(ContextCompanyID).(uuid.UUID),
		Email:     utils.NormalizeEmail(req.Email),
		Password:  hash,
		FullName:  req.FullName,
		Role:      models.Role(req.Role),
	}
	if err := h.repo.Create(c.Request.Context(), op); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			response.Error(c, fmt.Errorf("%w: email already registered", apperr.ErrConflict))
			return
		}
		response.Internal(c, "failed to create operator")
		return
	}
	h.logger.Info("operator created", zap.String("operator_id", op.ID.String()), zap.String("role", req.Role))
	response.Created(c, op)
}
