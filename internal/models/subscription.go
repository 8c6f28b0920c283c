package models

const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

type SubscriptionGroupSession struct {
	ID                int64 `json:"id"`
	SubscriptionID    int64 `json:"subscription_id"`
	GroupID           int64 `json:"group_id"`
	TotalSessions     int   `json:"total_sessions"`
	SessionsRemaining int   `json:"sessions_remaining"`
}

// Entitlement is a group session balance joined with the subscription it belongs to.
type Entitlement struct {
	SubscriptionGroupSession
	MemberID           int64  `json:"member_id"`
	SubscriptionStatus string `json:"subscription_status"`
	EndDate            string `json:"end_date"`
}
