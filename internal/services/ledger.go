package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type DebitResult struct {
	SubscriptionID    int64 `json:"subscription_id"`
	GroupID           int64 `json:"group_id"`
	Debited           int   `json:"debited"`
	SessionsRemaining int   `json:"sessions_remaining"`
	TotalSessions     int   `json:"total_sessions"`
}

type CreditResult struct {
	SubscriptionID    int64 `json:"subscription_id"`
	GroupID           int64 `json:"group_id"`
	Requested         int   `json:"requested"`
	Credited          int   `json:"credited"`
	SessionsRemaining int   `json:"sessions_remaining"`
	TotalSessions     int   `json:"total_sessions"`
}

// SessionLedger moves session credits in and out of a subscription's group
// balance. It must be built on transaction-bound stores so its writes commit or
// roll back with the registration change that caused them.
type SessionLedger struct {
	store LedgerStore
}

func NewSessionLedger(store LedgerStore) *SessionLedger {
	return &SessionLedger{store: store}
}

// Debit removes amount credits or fails with ErrInsufficientSessions, leaving
// the balance untouched.
func (l *SessionLedger) Debit(ctx context.Context, subscriptionID, groupID int64, amount int) (*DebitResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidInput
	}

	balance, err := l.store.Debit(ctx, subscriptionID, groupID, amount)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		current, lookupErr := l.store.GetForUpdate(ctx, subscriptionID, groupID)
		if lookupErr != nil {
			return nil, notFoundAs(lookupErr, ErrEntitlementNotFound)
		}
		return nil, fmt.Errorf("%w: %d left, %d requested", ErrInsufficientSessions, current.SessionsRemaining, amount)
	}

	return &DebitResult{
		SubscriptionID:    subscriptionID,
		GroupID:           groupID,
		Debited:           amount,
		SessionsRemaining: balance.SessionsRemaining,
		TotalSessions:     balance.TotalSessions,
	}, nil
}

// Credit returns up to amount credits, clamped at total_sessions. A partial
// credit is not an error; the result says how much was applied. When nothing
// fits the result is still returned together with ErrCapacityExceeded.
func (l *SessionLedger) Credit(ctx context.Context, subscriptionID, groupID int64, amount int) (*CreditResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidInput
	}

	balance, err := l.store.GetForUpdate(ctx, subscriptionID, groupID)
	if err != nil {
		return nil, notFoundAs(err, ErrEntitlementNotFound)
	}

	result := &CreditResult{
		SubscriptionID:    subscriptionID,
		GroupID:           groupID,
		Requested:         amount,
		SessionsRemaining: balance.SessionsRemaining,
		TotalSessions:     balance.TotalSessions,
	}

	applied := min(amount, balance.TotalSessions-balance.SessionsRemaining)
	if applied <= 0 {
		return result, ErrCapacityExceeded
	}

	updated, err := l.store.SetRemaining(ctx, balance.ID, balance.SessionsRemaining+applied)
	if err != nil {
		return nil, err
	}

	result.Credited = applied
	result.SessionsRemaining = updated.SessionsRemaining
	result.TotalSessions = updated.TotalSessions
	return result, nil
}
