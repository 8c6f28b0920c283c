package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventRegistrationCreated     = "registration.created"
	EventRegistrationCancelled   = "registration.cancelled"
	EventRegistrationCheckedIn   = "registration.checked_in"
	EventRegistrationCheckedOut  = "registration.checked_out"
	EventRegistrationApproved    = "registration.approved"
	EventRegistrationDisapproved = "registration.disapproved"
	EventSweepCompleted          = "sweep.completed"
)

type RegistrationMetrics interface {
	RegistrationCreated()
	RegistrationRejected(code string)
	RegistrationCancelled(refunded bool)
	CheckedIn()
	CheckedOut(status string)
	Reviewed(decision string)
	SweepCompleted(updated int, elapsed time.Duration)
	SweepFailed()
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

type RegistrationEvent struct {
	Type           string    `json:"type"`
	RegistrationID int64     `json:"registration_id"`
	MemberID       int64     `json:"member_id"`
	CourseID       int64     `json:"course_id"`
	Status         string    `json:"status"`
	Refunded       *bool     `json:"refunded,omitempty"`
	ActorID        int64     `json:"actor_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type SweepEvent struct {
	Type         string    `json:"type"`
	UpdatedCount int       `json:"updated_count"`
	RanAt        time.Time `json:"ran_at"`
}

type nopMetrics struct{}

func (nopMetrics) RegistrationCreated() {}
func (nopMetrics) RegistrationRejected(string) {}
func (nopMetrics) RegistrationCancelled(bool) {}
func (nopMetrics) CheckedIn() {}
func (nopMetrics) CheckedOut(string) {}
func (nopMetrics) Reviewed(string) {}
func (nopMetrics) SweepCompleted(int, time.Duration) {}
func (nopMetrics) SweepFailed() {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// publishAfterCommit emits a lifecycle event for an already committed change.
// Failures are logged only.
func publishAfterCommit(ctx context.Context, publisher EventPublisher, logger *zap.Logger, routingKey string, body any) {
	if err := publisher.Publish(ctx, routingKey, body); err != nil {
		logger.Warn("failed to publish booking event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}
