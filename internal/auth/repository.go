package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

const selectColumns = `id, company_id, email, password, full_name, role, created_at`

// Repository handles operator persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns an operator by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	return scanOperator(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM operators WHERE id = $1`, id))
}

// GetByEmail returns an operator by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Operator, error) {
	return scanOperator(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM operators WHERE email = lower($1)`, email))
}

// Create inserts an operator. op.Password must already be a bcrypt hash. A taken email is apperr.ErrConflict.
func (r *Repository) Create(ctx context.Context, op *models.Operator) error {
	const q = `INSERT INTO operators (id, company_id, email, password, full_name, role)
		VALUES (gen_random_uuid(), $1, lower($2), $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, op.CompanyID, op.Email, op.Password, op.FullName, string(op.Role)).Scan(&op.ID, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrConflict
	}
	return err
}

func scanOperator(row pgx.Row) (*models.Operator, error) {
	var (
		op   models.Operator
		role string
	)
	err := row.Scan(&op.ID, &op.CompanyID, &op.Email, &op.Password, &op.FullName, &role, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	op.Role = models.Role(role)
	return &op, nil
}
