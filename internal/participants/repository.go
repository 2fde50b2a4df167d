// Package participants holds the visitors of an admission session and their persistence.
package participants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

const selectColumns = `id, invitation_id, email, full_name, phone, company, is_approved, pass_id, status, created_at, updated_at`

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUnapproved returns participants of an invitation not yet approved by the authority.
func (r *Repository) ListUnapproved(ctx context.Context, invitationID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM participants
		WHERE invitation_id = $1 AND is_approved = FALSE ORDER BY created_at`, invitationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Upsert inserts a participant (unique per invitation+email) and returns its id.
func (r *Repository) Upsert(ctx context.Context, p *models.Participant) (uuid.UUID, error) {
	const q = `INSERT INTO participants (id, invitation_id, email, full_name, phone, company, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		ON CONFLICT (invitation_id, email) DO UPDATE SET full_name = EXCLUDED.full_name, phone = EXCLUDED.phone,
			company = EXCLUDED.company, status = EXCLUDED.status, updated_at = NOW()
		RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, p.InvitationID, p.Email, p.FullName, p.Phone, p.Company, p.Status).Scan(&id)
	return id, err
}

// Update writes fields onto an existing participant.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, f models.ParticipantFields) error {
	const q = `UPDATE participants SET full_name = $1, phone = $2, company = $3, status = $4, updated_at = NOW() WHERE id = $5`
	tag, err := r.pool.Exec(ctx, q, f.FullName, f.Phone, f.Company, f.Status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// MarkApproved records the authority's approval and the issued pass id.
func (r *Repository) MarkApproved(ctx context.Context, id uuid.UUID, passID string) error {
	const q = `UPDATE participants SET is_approved = TRUE, pass_id = $1, status = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.pool.Exec(ctx, q, passID, models.VisitorApproved, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetByID returns a participant by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM participants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return p, err
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var (
		p  models.Participant
		id uuid.UUID
	)
	err := row.Scan(&id, &p.InvitationID, &p.Email, &p.FullName, &p.Phone, &p.Company, &p.IsApproved, &p.PassID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = &id
	return &p, nil
}
