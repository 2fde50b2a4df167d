// Package invitations stores the meetings booked at places and books new ones.
package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

const selectColumns = `id, place_id, date, start_time, end_time, type, title, status, created_by, created_at`

// Repository handles invitation persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an invitations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBookings returns the time ranges occupied by non-cancelled invitations at a place on date.
func (r *Repository) ListBookings(ctx context.Context, placeID uuid.UUID, date time.Time) ([]models.Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, place_id, date, start_time, end_time FROM invitations
		WHERE place_id = $1 AND date = $2 AND status <> $3 ORDER BY start_time`, placeID, date, models.InvitationCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.InvitationID, &b.PlaceID, &b.Date, &b.Start, &b.End); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// ListByPlaceAndDate returns all invitations at a place on date, ordered by start time.
func (r *Repository) ListByPlaceAndDate(ctx context.Context, placeID uuid.UUID, date time.Time) ([]models.Invitation, error) {
	return r.list(ctx, `WHERE place_id = $1 AND date = $2`, placeID, date)
}

// ListByType is ListByPlaceAndDate restricted to one meeting type.
func (r *Repository) ListByType(ctx context.Context, placeID uuid.UUID, date time.Time, meetingType string) ([]models.Invitation, error) {
	return r.list(ctx, `WHERE place_id = $1 AND date = $2 AND lower(type) = lower($3)`, placeID, date, meetingType)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]models.Invitation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM invitations `+where+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inv)
	}
	return list, rows.Err()
}

// Create inserts inv unless its range overlaps a non-cancelled invitation at the same place and
// date, in which case it returns apperr.ErrConflict. Concurrent bookings of one place are
// serialised with a transaction-scoped advisory lock.
func (r *Repository) Create(ctx context.Context, inv *models.Invitation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, inv.PlaceID.String()); err != nil {
		return fmt.Errorf("lock place: %w", err)
	}
	var overlapping int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM invitations
		WHERE place_id = $1 AND date = $2 AND status <> $3 AND start_time < $4 AND end_time > $5`,
		inv.PlaceID, inv.Date, models.InvitationCancelled, inv.EndTime, inv.StartTime).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return fmt.Errorf("%w: %s-%s overlaps %d booking(s)", apperr.ErrConflict, inv.StartTime, inv.EndTime, overlapping)
	}

	if inv.Status == "" {
		inv.Status = models.InvitationScheduled
	}
	const q = `INSERT INTO invitations (id, place_id, date, start_time, end_time, type, title, status, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`
	if err := tx.QueryRow(ctx, q, inv.PlaceID, inv.Date, inv.StartTime, inv.EndTime, inv.Type, inv.Title, inv.Status, inv.CreatedBy).
		Scan(&inv.ID, &inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return tx.Commit(ctx)
}

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation
	err := row.Scan(&inv.ID, &inv.PlaceID, &inv.Date, &inv.StartTime, &inv.EndTime, &inv.Type, &inv.Title, &inv.Status, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
