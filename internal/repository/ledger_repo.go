package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

const groupSessionColumns = `id, subscription_id, group_id, total_sessions, sessions_remaining`

// LedgerRepository reads and writes subscription_group_sessions balances.
type LedgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// entitlementLockAttempts bounds how often FindEntitlementForUpdate re-reads
// after a concurrent booking drained the balance it was waiting on.
const entitlementLockAttempts = 8

// FindEntitlementForUpdate picks the balance that should pay for a course on
// courseDate: an active subscription covering the date with credits left,
// soonest-ending first. The chosen balance row is locked.
//
// A LIMIT 1 locking read returns no row when the row it waited on no longer
// has credits after the lock is granted; it does not move on to the next
// candidate. The lookup is repeated while another credited balance exists.
func (r *LedgerRepository) FindEntitlementForUpdate(
	ctx context.Context,
	memberID int64,
	groupID int64,
	courseDate string,
) (*models.Entitlement, error) {
	for attempt := 1; ; attempt++ {
		entitlement, err := r.lockFirstEntitlement(ctx, memberID, groupID, courseDate)
		if !errors.Is(err, pgx.ErrNoRows) || attempt == entitlementLockAttempts {
			return entitlement, err
		}

		credited, err := r.hasCreditedEntitlement(ctx, memberID, groupID, courseDate)
		if err != nil {
			return nil, err
		}
		if !credited {
			return nil, pgx.ErrNoRows
		}
	}
}

func (r *LedgerRepository) lockFirstEntitlement(
	ctx context.Context,
	memberID int64,
	groupID int64,
	courseDate string,
) (*models.Entitlement, error) {
	query := `
		SELECT sgs.id, sgs.subscription_id, sgs.group_id, sgs.total_sessions, sgs.sessions_remaining,
		       s.member_id, s.status, s.end_date::text
		FROM subscription_group_sessions sgs
		JOIN subscriptions s ON s.id = sgs.subscription_id
		WHERE s.member_id = $1
		  AND sgs.group_id = $2
		  AND s.status = 'active'
		  AND s.start_date <= $3::date
		  AND s.end_date >= $3::date
		  AND sgs.sessions_remaining > 0
		ORDER BY s.end_date ASC, s.id ASC
		LIMIT 1
		FOR UPDATE OF sgs
	`
	var entitlement models.Entitlement
	err := r.db.QueryRow(ctx, query, memberID, groupID, courseDate).Scan(
		&entitlement.ID,
		&entitlement.SubscriptionID,
		&entitlement.GroupID,
		&entitlement.TotalSessions,
		&entitlement.SessionsRemaining,
		&entitlement.MemberID,
		&entitlement.SubscriptionStatus,
		&entitlement.EndDate,
	)
	if err != nil {
		return nil, err
	}
	return &entitlement, nil
}

func (r *LedgerRepository) hasCreditedEntitlement(
	ctx context.Context,
	memberID int64,
	groupID int64,
	courseDate string,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM subscription_group_sessions sgs
			JOIN subscriptions s ON s.id = sgs.subscription_id
			WHERE s.member_id = $1
			  AND sgs.group_id = $2
			  AND s.status = 'active'
			  AND s.start_date <= $3::date
			  AND s.end_date >= $3::date
			  AND sgs.sessions_remaining > 0
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, memberID, groupID, courseDate).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// HasEntitlement reports whether the member holds any active subscription
// covering courseDate for the group, exhausted or not.
func (r *LedgerRepository) HasEntitlement(
	ctx context.Context,
	memberID int64,
	groupID int64,
	courseDate string,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM subscription_group_sessions sgs
			JOIN subscriptions s ON s.id = sgs.subscription_id
			WHERE s.member_id = $1
			  AND sgs.group_id = $2
			  AND s.status = 'active'
			  AND s.start_date <= $3::date
			  AND s.end_date >= $3::date
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, memberID, groupID, courseDate).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Debit subtracts amount when the balance covers it. pgx.ErrNoRows means the
// balance is short or the row does not exist; nothing is written in that case.
func (r *LedgerRepository) Debit(
	ctx context.Context,
	subscriptionID int64,
	groupID int64,
	amount int,
) (*models.SubscriptionGroupSession, error) {
	query := `
		UPDATE subscription_group_sessions
		SET sessions_remaining = sessions_remaining - $3, updated_at = NOW()
		WHERE subscription_id = $1 AND group_id = $2 AND sessions_remaining >= $3
		RETURNING ` + groupSessionColumns
	return scanGroupSession(r.db.QueryRow(ctx, query, subscriptionID, groupID, amount))
}

func (r *LedgerRepository) GetForUpdate(
	ctx context.Context,
	subscriptionID int64,
	groupID int64,
) (*models.SubscriptionGroupSession, error) {
	query := `
		SELECT ` + groupSessionColumns + `
		FROM subscription_group_sessions
		WHERE subscription_id = $1 AND group_id = $2
		FOR UPDATE
	`
	return scanGroupSession(r.db.QueryRow(ctx, query, subscriptionID, groupID))
}

// SetRemaining writes an already clamped balance.
func (r *LedgerRepository) SetRemaining(
	ctx context.Context,
	groupSessionID int64,
	remaining int,
) (*models.SubscriptionGroupSession, error) {
	query := `
		UPDATE subscription_group_sessions
		SET sessions_remaining = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + groupSessionColumns
	return scanGroupSession(r.db.QueryRow(ctx, query, groupSessionID, remaining))
}

func scanGroupSession(row pgx.Row) (*models.SubscriptionGroupSession, error) {
	var session models.SubscriptionGroupSession
	err := row.Scan(
		&session.ID,
		&session.SubscriptionID,
		&session.GroupID,
		&session.TotalSessions,
		&session.SessionsRemaining,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
