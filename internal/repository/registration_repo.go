package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

// LiveRegistrationIndex guards against two live bookings of one course by one member.
const LiveRegistrationIndex = "registrations_live_member_course_idx"

const registrationColumns = `
	r.id, r.member_id, r.course_id, r.subscription_id, r.status, r.qr_code,
	r.registration_date, r.cancelled_at, r.session_refunded, r.updated_at
`

type CreateRegistrationInput struct {
	MemberID         int64
	CourseID         int64
	SubscriptionID   int64
	QRCode           string
	RegistrationDate time.Time
}

type OverlapQuery struct {
	MemberID   int64
	CourseID   int64
	CourseDate string
	StartTime  string
	EndTime    string
}

// RegistrationListFilter narrows registration listings. Today and Clock are the
// gym-local date and time used by the upcoming/past timeframes. A zero Limit
// returns every match.
type RegistrationListFilter struct {
	MemberID  int64
	CourseID  int64
	Status    string
	Timeframe string
	Today     string
	Clock     string
	Limit     int
	Offset    int
}

type RegistrationRepository struct {
	db DBTX
}

func NewRegistrationRepository(db DBTX) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) Create(
	ctx context.Context,
	input CreateRegistrationInput,
) (*models.Registration, error) {
	query := `
		INSERT INTO registrations AS r (member_id, course_id, subscription_id, status, qr_code, registration_date)
		VALUES ($1, $2, $3, 'registered', $4, $5)
		RETURNING ` + registrationColumns
	return scanRegistration(r.db.QueryRow(
		ctx,
		query,
		input.MemberID,
		input.CourseID,
		input.SubscriptionID,
		input.QRCode,
		input.RegistrationDate,
	))
}

func (r *RegistrationRepository) GetByID(ctx context.Context, registrationID int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.id = $1`
	return scanRegistration(r.db.QueryRow(ctx, query, registrationID))
}

func (r *RegistrationRepository) GetByIDForUpdate(ctx context.Context, registrationID int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.id = $1 FOR UPDATE`
	return scanRegistration(r.db.QueryRow(ctx, query, registrationID))
}

func (r *RegistrationRepository) GetByQRCode(ctx context.Context, qrCode string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.qr_code = $1`
	return scanRegistration(r.db.QueryRow(ctx, query, qrCode))
}

// FindLive returns the member's registered, attended or absent booking of the course.
func (r *RegistrationRepository) FindLive(ctx context.Context, memberID int64, courseID int64) (*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations r
		WHERE r.member_id = $1
		  AND r.course_id = $2
		  AND r.status IN ('registered', 'attended', 'absent')
		LIMIT 1
	`
	return scanRegistration(r.db.QueryRow(ctx, query, memberID, courseID))
}

func (r *RegistrationRepository) HasOverlap(ctx context.Context, q OverlapQuery) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM registrations r
			JOIN courses c ON c.id = r.course_id
			WHERE r.member_id = $1
			  AND r.course_id <> $2
			  AND r.status IN ('registered', 'attended')
			  AND c.course_date = $3::date
			  AND c.start_time < $5::time
			  AND c.end_time > $4::time
		)
	`
	var overlaps bool
	err := r.db.QueryRow(ctx, query, q.MemberID, q.CourseID, q.CourseDate, q.StartTime, q.EndTime).Scan(&overlaps)
	if err != nil {
		return false, err
	}
	return overlaps, nil
}

func (r *RegistrationRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	registrationID int64,
	currentStatus string,
	nextStatus string,
) (*models.Registration, error) {
	query := `
		UPDATE registrations AS r
		SET status = $3, updated_at = NOW()
		WHERE r.id = $1 AND r.status = $2
		RETURNING ` + registrationColumns
	return scanRegistration(r.db.QueryRow(ctx, query, registrationID, currentStatus, nextStatus))
}

// MarkCancelled moves a registered booking to cancelled. pgx.ErrNoRows means the
// registration is no longer in the registered state.
func (r *RegistrationRepository) MarkCancelled(
	ctx context.Context,
	registrationID int64,
	refunded bool,
	cancelledAt time.Time,
) (*models.Registration, error) {
	query := `
		UPDATE registrations AS r
		SET status = 'cancelled', cancelled_at = $2, session_refunded = $3, updated_at = NOW()
		WHERE r.id = $1 AND r.status = 'registered'
		RETURNING ` + registrationColumns
	return scanRegistration(r.db.QueryRow(ctx, query, registrationID, cancelledAt, refunded))
}

// MarkAbsentForFinishedCourses flips up to limit registered bookings of courses
// whose end time is before today/clock and have no check-in. Rows locked by a
// concurrent transaction are skipped and picked up by a later pass.
func (r *RegistrationRepository) MarkAbsentForFinishedCourses(
	ctx context.Context,
	today string,
	clock string,
	limit int,
) (int64, error) {
	query := `
		WITH stale AS (
			SELECT r.id
			FROM registrations r
			JOIN courses c ON c.id = r.course_id
			WHERE r.status = 'registered'
			  AND (c.course_date < $1::date OR (c.course_date = $1::date AND c.end_time < $2::time))
			  AND NOT EXISTS (SELECT 1 FROM checkins ck WHERE ck.registration_id = r.id)
			ORDER BY r.id
			LIMIT $3
			FOR UPDATE OF r SKIP LOCKED
		)
		UPDATE registrations r
		SET status = 'absent', updated_at = NOW()
		FROM stale
		WHERE r.id = stale.id AND r.status = 'registered'
	`
	tag, err := r.db.Exec(ctx, query, today, clock, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns one page of matching registrations with their course and
// check-in, plus the total number of matches.
func (r *RegistrationRepository) List(
	ctx context.Context,
	filter RegistrationListFilter,
) ([]models.RegistrationDetail, int, error) {
	args := []any{}
	whereParts := []string{}

	if filter.MemberID > 0 {
		args = append(args, filter.MemberID)
		whereParts = append(whereParts, fmt.Sprintf("r.member_id = $%d", len(args)))
	}
	if filter.CourseID > 0 {
		args = append(args, filter.CourseID)
		whereParts = append(whereParts, fmt.Sprintf("r.course_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("r.status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		args = append(args, filter.Today, filter.Clock)
		whereParts = append(whereParts, fmt.Sprintf(
			"(c.course_date > $%d::date OR (c.course_date = $%d::date AND c.end_time >= $%d::time))",
			len(args)-1, len(args)-1, len(args),
		))
	case "past":
		args = append(args, filter.Today, filter.Clock)
		whereParts = append(whereParts, fmt.Sprintf(
			"(c.course_date < $%d::date OR (c.course_date = $%d::date AND c.end_time < $%d::time))",
			len(args)-1, len(args)-1, len(args),
		))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}

	totalQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		%s
		JOIN registrations r ON r.course_id = c.id
		%s
	`, courseFrom, where)

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit, max(filter.Offset, 0))
		page = fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	query := fmt.Sprintf(`
		SELECT %s, %s,
		       ck.id, ck.checkin_time, ck.session_consumed
		%s
		JOIN registrations r ON r.course_id = c.id
		LEFT JOIN checkins ck ON ck.registration_id = r.id
		%s
		ORDER BY c.course_date ASC, c.start_time ASC, r.id ASC
		%s
	`, registrationColumns, courseColumns, courseFrom, where, page)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	details := make([]models.RegistrationDetail, 0)
	for rows.Next() {
		var (
			detail          models.RegistrationDetail
			course          models.Course
			checkinID       *int64
			checkinTime     *time.Time
			sessionConsumed *bool
		)
		if err := rows.Scan(
			&detail.ID,
			&detail.MemberID,
			&detail.CourseID,
			&detail.SubscriptionID,
			&detail.Status,
			&detail.QRCode,
			&detail.RegistrationDate,
			&detail.CancelledAt,
			&detail.SessionRefunded,
			&detail.UpdatedAt,
			&course.ID,
			&course.ClassID,
			&course.GroupID,
			&course.CourseDate,
			&course.StartTime,
			&course.EndTime,
			&course.MaxParticipants,
			&course.CurrentParticipants,
			&course.Status,
			&course.IsActive,
			&checkinID,
			&checkinTime,
			&sessionConsumed,
		); err != nil {
			return nil, 0, err
		}
		detail.Course = &course
		if checkinID != nil {
			detail.Checkin = &models.Checkin{
				ID:              *checkinID,
				RegistrationID:  detail.ID,
				MemberID:        detail.MemberID,
				CheckinTime:     *checkinTime,
				SessionConsumed: sessionConsumed != nil && *sessionConsumed,
			}
		}
		details = append(details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return details, total, nil
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var registration models.Registration
	err := row.Scan(
		&registration.ID,
		&registration.MemberID,
		&registration.CourseID,
		&registration.SubscriptionID,
		&registration.Status,
		&registration.QRCode,
		&registration.RegistrationDate,
		&registration.CancelledAt,
		&registration.SessionRefunded,
		&registration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &registration, nil
}
