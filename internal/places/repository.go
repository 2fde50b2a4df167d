// Package places exposes bookable places and their free time slots.
package places

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

const selectColumns = `id, company_id, name, open_days, opens_at, closes_at, created_at`

// Repository handles place persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a places repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a place.
func (r *Repository) Create(ctx context.Context, p *models.Place) error {
	const q = `INSERT INTO places (id, company_id, name, open_days, opens_at, closes_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, p.CompanyID, p.Name, p.OpenDays, p.OpensAt, p.ClosesAt).Scan(&p.ID, &p.CreatedAt)
}

// GetByID returns a place by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Place, error) {
	var p models.Place
	err := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM places WHERE id = $1`, id).
		Scan(&p.ID, &p.CompanyID, &p.Name, &p.OpenDays, &p.OpensAt, &p.ClosesAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByCompany returns the places of a company ordered by name.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Place, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM places WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Place
	for rows.Next() {
		var p models.Place
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.OpenDays, &p.OpensAt, &p.ClosesAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
