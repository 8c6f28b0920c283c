package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCourseFull             = errors.New("course is full")
	ErrInsufficientSessions   = errors.New("insufficient sessions")
	ErrAlreadyStarted         = errors.New("course has already started")
	ErrCapacityExceeded       = errors.New("session balance already at total")
)

var (
	ErrCourseNotFound       = fmt.Errorf("%w: course", ErrNotFound)
	ErrRegistrationNotFound = fmt.Errorf("%w: registration", ErrNotFound)
	ErrCheckinNotFound      = fmt.Errorf("%w: check-in", ErrNotFound)
	ErrEntitlementNotFound  = fmt.Errorf("%w: session entitlement", ErrNotFound)
	ErrNotCancellable       = fmt.Errorf("%w: no registered booking to cancel", ErrNotFound)

	ErrAlreadyRegistered = fmt.Errorf("%w: member already holds a booking for this course", ErrConflict)
	ErrAlreadyCheckedIn  = fmt.Errorf("%w: registration is already checked in", ErrConflict)
	ErrScheduleOverlap   = fmt.Errorf("%w: member is booked on an overlapping course", ErrConflict)

	ErrNoEntitlement     = fmt.Errorf("%w: no active subscription covers this class group", ErrInsufficientSessions)
	ErrCourseNotBookable = fmt.Errorf("%w: course is not open for booking", ErrInvalidStateTransition)
)

// notFoundAs turns pgx.ErrNoRows into target and leaves other errors alone.
func notFoundAs(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

// ErrorCode is the stable machine-readable name of err's family.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCourseFull):
		return "course_full"
	case errors.Is(err, ErrInsufficientSessions):
		return "insufficient_sessions"
	case errors.Is(err, ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	default:
		return "internal"
	}
}
