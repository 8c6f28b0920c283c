package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

// CheckinRegistrationKey allows a single live check-in per registration.
const CheckinRegistrationKey = "checkins_registration_id_key"

type CreateCheckinInput struct {
	RegistrationID int64
	MemberID       int64
	CheckinTime    time.Time
}

type CheckinRepository struct {
	db DBTX
}

func NewCheckinRepository(db DBTX) *CheckinRepository {
	return &CheckinRepository{db: db}
}

func (r *CheckinRepository) Create(ctx context.Context, input CreateCheckinInput) (*models.Checkin, error) {
	query := `
		INSERT INTO checkins (registration_id, member_id, checkin_time, session_consumed)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, registration_id, member_id, checkin_time, session_consumed
	`
	return scanCheckin(r.db.QueryRow(ctx, query, input.RegistrationID, input.MemberID, input.CheckinTime))
}

func (r *CheckinRepository) GetByRegistrationID(ctx context.Context, registrationID int64) (*models.Checkin, error) {
	query := `
		SELECT id, registration_id, member_id, checkin_time, session_consumed
		FROM checkins
		WHERE registration_id = $1
	`
	return scanCheckin(r.db.QueryRow(ctx, query, registrationID))
}

// DeleteByRegistrationID removes the check-in and returns it. pgx.ErrNoRows
// means there was nothing to remove.
func (r *CheckinRepository) DeleteByRegistrationID(ctx context.Context, registrationID int64) (*models.Checkin, error) {
	query := `
		DELETE FROM checkins
		WHERE registration_id = $1
		RETURNING id, registration_id, member_id, checkin_time, session_consumed
	`
	return scanCheckin(r.db.QueryRow(ctx, query, registrationID))
}

func scanCheckin(row pgx.Row) (*models.Checkin, error) {
	var checkin models.Checkin
	err := row.Scan(
		&checkin.ID,
		&checkin.RegistrationID,
		&checkin.MemberID,
		&checkin.CheckinTime,
		&checkin.SessionConsumed,
	)
	if err != nil {
		return nil, err
	}
	return &checkin, nil
}
