package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
	"github.com/mGhassen/WildEnergy-sub005/internal/repository"
	"go.uber.org/zap"
)

const DefaultRefundWindow = 24 * time.Hour

// Caller is the identity resolved by the auth layer. It is trusted as is.
type Caller struct {
	MemberID int64
	IsAdmin  bool
}

type RegistrationPolicy struct {
	Location       *time.Location
	RefundWindow   time.Duration
	PreventOverlap bool
}

type RegistrationService struct {
	tx        Transactor
	policy    RegistrationPolicy
	publisher EventPublisher
	metrics   RegistrationMetrics
	logger    *zap.Logger
	now       func() time.Time
	newQRCode func() string
}

func NewRegistrationService(
	tx Transactor,
	policy RegistrationPolicy,
	publisher EventPublisher,
	metrics RegistrationMetrics,
	logger *zap.Logger,
) *RegistrationService {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.RefundWindow <= 0 {
		policy.RefundWindow = DefaultRefundWindow
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		tx:        tx,
		policy:    policy,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newQRCode: uuid.NewString,
	}
}

type CreateRegistrationInput struct {
	MemberID int64
	CourseID int64
	// Force skips the overlap policy. Capacity and ledger checks still apply.
	Force bool
}

// CreateRegistration books a seat and pays for it with one session credit. The
// seat reservation, the debit and the insert commit together or not at all.
func (s *RegistrationService) CreateRegistration(
	ctx context.Context,
	caller Caller,
	input CreateRegistrationInput,
) (*models.Registration, error) {
	memberID := input.MemberID
	if memberID == 0 {
		memberID = caller.MemberID
	}
	if memberID <= 0 || input.CourseID <= 0 {
		return nil, ErrInvalidInput
	}
	if memberID != caller.MemberID && !caller.IsAdmin {
		return nil, ErrForbidden
	}
	if input.Force && !caller.IsAdmin {
		return nil, ErrForbidden
	}

	now := s.now()
	var created *models.Registration
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		course, err := st.Courses.GetByIDForUpdate(ctx, input.CourseID)
		if err != nil {
			return notFoundAs(err, ErrCourseNotFound)
		}
		if !course.IsActive || course.Status != models.CourseScheduled {
			return ErrCourseNotBookable
		}
		window, err := courseWindowFor(course, s.policy.Location)
		if err != nil {
			return err
		}
		if window.Started(now) {
			return ErrAlreadyStarted
		}

		if _, err := st.Registrations.FindLive(ctx, memberID, course.ID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if s.policy.PreventOverlap && !input.Force {
			overlaps, err := st.Registrations.HasOverlap(ctx, repository.OverlapQuery{
				MemberID:   memberID,
				CourseID:   course.ID,
				CourseDate: course.CourseDate,
				StartTime:  course.StartTime,
				EndTime:    course.EndTime,
			})
			if err != nil {
				return err
			}
			if overlaps {
				return ErrScheduleOverlap
			}
		}

		entitlement, err := st.Ledger.FindEntitlementForUpdate(ctx, memberID, course.GroupID, course.CourseDate)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			exists, err := st.Ledger.HasEntitlement(ctx, memberID, course.GroupID, course.CourseDate)
			if err != nil {
				return err
			}
			if exists {
				return ErrInsufficientSessions
			}
			return ErrNoEntitlement
		}

		if _, err := NewCapacityTracker(st.Courses).Reserve(ctx, course.ID); err != nil {
			return err
		}
		if _, err := NewSessionLedger(st.Ledger).Debit(ctx, entitlement.SubscriptionID, course.GroupID, 1); err != nil {
			return err
		}

		registration, err := st.Registrations.Create(ctx, repository.CreateRegistrationInput{
			MemberID:         memberID,
			CourseID:         course.ID,
			SubscriptionID:   entitlement.SubscriptionID,
			QRCode:           s.newQRCode(),
			RegistrationDate: now,
		})
		if err != nil {
			if repository.IsUniqueViolation(err, repository.LiveRegistrationIndex) {
				return ErrAlreadyRegistered
			}
			return err
		}
		created = registration
		return nil
	})
	if err != nil {
		s.metrics.RegistrationRejected(ErrorCode(err))
		return nil, err
	}

	s.metrics.RegistrationCreated()
	s.logger.Info("registration created",
		zap.Int64("registration_id", created.ID),
		zap.Int64("member_id", created.MemberID),
		zap.Int64("course_id", created.CourseID),
		zap.Int64("subscription_id", created.SubscriptionID),
		zap.Bool("forced", input.Force),
	)
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationCreated, s.event(EventRegistrationCreated, created, caller, nil))
	return created, nil
}

type CancelRegistrationInput struct {
	RegistrationID int64
	// ForceRefund overrides the refund window decision. Admins only.
	ForceRefund *bool
}

type CancelResult struct {
	Registration      *models.Registration `json:"registration"`
	Refunded          bool                 `json:"refunded"`
	WithinCutoff      bool                 `json:"within_cutoff"`
	SessionsRemaining *int                 `json:"sessions_remaining,omitempty"`
}

// CancelRegistration frees the seat and refunds the credit when the member
// cancels before the refund cutoff. Inside the cutoff the credit is forfeited.
func (s *RegistrationService) CancelRegistration(
	ctx context.Context,
	caller Caller,
	input CancelRegistrationInput,
) (*CancelResult, error) {
	if input.RegistrationID <= 0 {
		return nil, ErrInvalidInput
	}
	if input.ForceRefund != nil && !caller.IsAdmin {
		return nil, ErrForbidden
	}

	now := s.now()
	var result *CancelResult
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		registration, err := st.Registrations.GetByIDForUpdate(ctx, input.RegistrationID)
		if err != nil {
			return notFoundAs(err, ErrRegistrationNotFound)
		}
		if !caller.IsAdmin && registration.MemberID != caller.MemberID {
			return ErrForbidden
		}
		if registration.Status != models.RegistrationRegistered {
			return ErrNotCancellable
		}

		course, err := st.Courses.GetByIDForUpdate(ctx, registration.CourseID)
		if err != nil {
			return notFoundAs(err, ErrCourseNotFound)
		}
		window, err := courseWindowFor(course, s.policy.Location)
		if err != nil {
			return err
		}
		if window.Started(now) {
			return ErrAlreadyStarted
		}

		withinCutoff := window.WithinCutoff(now, s.policy.RefundWindow)
		refund := !withinCutoff
		if input.ForceRefund != nil && *input.ForceRefund != refund {
			s.logger.Warn("refund decision overridden by admin",
				zap.Int64("registration_id", registration.ID),
				zap.Int64("admin_id", caller.MemberID),
				zap.Bool("policy_refund", refund),
				zap.Bool("forced_refund", *input.ForceRefund),
			)
			refund = *input.ForceRefund
		}

		result = &CancelResult{WithinCutoff: withinCutoff}
		if refund {
			credit, err := NewSessionLedger(st.Ledger).Credit(ctx, registration.SubscriptionID, course.GroupID, 1)
			switch {
			case errors.Is(err, ErrCapacityExceeded):
				s.logger.Warn("refund skipped, balance already full",
					zap.Int64("registration_id", registration.ID),
					zap.Int64("subscription_id", registration.SubscriptionID),
				)
				result.SessionsRemaining = &credit.SessionsRemaining
			case err != nil:
				return err
			default:
				result.Refunded = credit.Credited > 0
				result.SessionsRemaining = &credit.SessionsRemaining
			}
		}

		if _, err := NewCapacityTracker(st.Courses).Release(ctx, course.ID); err != nil {
			return err
		}

		cancelled, err := st.Registrations.MarkCancelled(ctx, registration.ID, result.Refunded, now)
		if err != nil {
			return notFoundAs(err, ErrNotCancellable)
		}
		result.Registration = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RegistrationCancelled(result.Refunded)
	s.logger.Info("registration cancelled",
		zap.Int64("registration_id", result.Registration.ID),
		zap.Int64("member_id", result.Registration.MemberID),
		zap.Int64("course_id", result.Registration.CourseID),
		zap.Bool("refunded", result.Refunded),
		zap.Bool("within_cutoff", result.WithinCutoff),
	)
	refunded := result.Refunded
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationCancelled, s.event(EventRegistrationCancelled, result.Registration, caller, &refunded))
	return result, nil
}

// CheckIn records attendance. Credits and seats were settled at booking time so
// neither is touched here.
func (s *RegistrationService) CheckIn(ctx context.Context, registrationID int64) (*models.Checkin, error) {
	if registrationID <= 0 {
		return nil, ErrInvalidInput
	}

	now := s.now()
	var (
		checkin      *models.Checkin
		registration *models.Registration
	)
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		current, err := st.Registrations.GetByIDForUpdate(ctx, registrationID)
		if err != nil {
			return notFoundAs(err, ErrRegistrationNotFound)
		}

		if _, err := st.Checkins.GetByRegistrationID(ctx, current.ID); err == nil {
			return ErrAlreadyCheckedIn
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		switch current.Status {
		case models.RegistrationRegistered, models.RegistrationAbsent:
		case models.RegistrationAttended:
			return ErrAlreadyCheckedIn
		default:
			return ErrInvalidStateTransition
		}

		created, err := st.Checkins.Create(ctx, repository.CreateCheckinInput{
			RegistrationID: current.ID,
			MemberID:       current.MemberID,
			CheckinTime:    now,
		})
		if err != nil {
			if repository.IsUniqueViolation(err, repository.CheckinRegistrationKey) {
				return ErrAlreadyCheckedIn
			}
			return err
		}

		updated, err := st.Registrations.UpdateStatusIfCurrent(ctx, current.ID, current.Status, models.RegistrationAttended)
		if err != nil {
			return notFoundAs(err, ErrInvalidStateTransition)
		}
		checkin = created
		registration = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CheckedIn()
	s.logger.Info("registration checked in",
		zap.Int64("registration_id", registration.ID),
		zap.Int64("member_id", registration.MemberID),
		zap.Int64("course_id", registration.CourseID),
	)
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationCheckedIn, s.event(EventRegistrationCheckedIn, registration, Caller{}, nil))
	return checkin, nil
}

type CheckOutResult struct {
	Registration *models.Registration `json:"registration"`
	NewStatus    string               `json:"new_status"`
}

// CheckOut removes the check-in. The booking goes back to registered while the
// course is still running or upcoming, and to absent once it has ended.
func (s *RegistrationService) CheckOut(ctx context.Context, registrationID int64) (*CheckOutResult, error) {
	if registrationID <= 0 {
		return nil, ErrInvalidInput
	}

	now := s.now()
	var result *CheckOutResult
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		current, err := st.Registrations.GetByIDForUpdate(ctx, registrationID)
		if err != nil {
			return notFoundAs(err, ErrRegistrationNotFound)
		}
		if _, err := st.Checkins.DeleteByRegistrationID(ctx, current.ID); err != nil {
			return notFoundAs(err, ErrCheckinNotFound)
		}

		course, err := st.Courses.GetByID(ctx, current.CourseID)
		if err != nil {
			return notFoundAs(err, ErrCourseNotFound)
		}
		window, err := courseWindowFor(course, s.policy.Location)
		if err != nil {
			return err
		}

		next := models.RegistrationRegistered
		if window.Finished(now) {
			next = models.RegistrationAbsent
		}
		updated, err := st.Registrations.UpdateStatusIfCurrent(ctx, current.ID, current.Status, next)
		if err != nil {
			return notFoundAs(err, ErrInvalidStateTransition)
		}
		result = &CheckOutResult{Registration: updated, NewStatus: next}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CheckedOut(result.NewStatus)
	s.logger.Info("registration checked out",
		zap.Int64("registration_id", result.Registration.ID),
		zap.String("status", result.NewStatus),
	)
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationCheckedOut, s.event(EventRegistrationCheckedOut, result.Registration, Caller{}, nil))
	return result, nil
}

// Approve marks a registered booking attended without a check-in record.
func (s *RegistrationService) Approve(ctx context.Context, caller Caller, registrationID int64) (*models.Registration, error) {
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}
	if registrationID <= 0 {
		return nil, ErrInvalidInput
	}

	var approved *models.Registration
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		current, err := st.Registrations.GetByIDForUpdate(ctx, registrationID)
		if err != nil {
			return notFoundAs(err, ErrRegistrationNotFound)
		}
		if current.Status != models.RegistrationRegistered {
			return ErrInvalidStateTransition
		}
		approved, err = st.Registrations.UpdateStatusIfCurrent(ctx, current.ID, current.Status, models.RegistrationAttended)
		return notFoundAs(err, ErrInvalidStateTransition)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Reviewed("approved")
	s.logger.Info("registration approved",
		zap.Int64("registration_id", approved.ID),
		zap.Int64("admin_id", caller.MemberID),
	)
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationApproved, s.event(EventRegistrationApproved, approved, caller, nil))
	return approved, nil
}

// Disapprove cancels a registered booking without any refund. The seat is
// released so the counter keeps matching the live bookings.
func (s *RegistrationService) Disapprove(ctx context.Context, caller Caller, registrationID int64) (*models.Registration, error) {
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}
	if registrationID <= 0 {
		return nil, ErrInvalidInput
	}

	now := s.now()
	var rejected *models.Registration
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		current, err := st.Registrations.GetByIDForUpdate(ctx, registrationID)
		if err != nil {
			return notFoundAs(err, ErrRegistrationNotFound)
		}
		if current.Status != models.RegistrationRegistered {
			return ErrInvalidStateTransition
		}
		if _, err := NewCapacityTracker(st.Courses).Release(ctx, current.CourseID); err != nil {
			return err
		}
		rejected, err = st.Registrations.MarkCancelled(ctx, current.ID, false, now)
		return notFoundAs(err, ErrInvalidStateTransition)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Reviewed("disapproved")
	s.logger.Info("registration disapproved",
		zap.Int64("registration_id", rejected.ID),
		zap.Int64("admin_id", caller.MemberID),
	)
	refunded := false
	publishAfterCommit(ctx, s.publisher, s.logger, EventRegistrationDisapproved, s.event(EventRegistrationDisapproved, rejected, caller, &refunded))
	return rejected, nil
}

func (s *RegistrationService) GetRegistration(ctx context.Context, caller Caller, registrationID int64) (*models.RegistrationDetail, error) {
	if registrationID <= 0 {
		return nil, ErrInvalidInput
	}
	st := s.tx.Stores()

	registration, err := st.Registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, notFoundAs(err, ErrRegistrationNotFound)
	}
	if !caller.IsAdmin && registration.MemberID != caller.MemberID {
		return nil, ErrForbidden
	}

	detail := &models.RegistrationDetail{Registration: *registration}
	course, err := st.Courses.GetByID(ctx, registration.CourseID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	detail.Course = course

	checkin, err := st.Checkins.GetByRegistrationID(ctx, registration.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	detail.Checkin = checkin
	return detail, nil
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	// MaxListPage bounds the offset a caller can request.
	MaxListPage = 10000
)

type RegistrationListInput struct {
	Status    string
	Timeframe string
	// Page is 1-based. Zero values fall back to the first page and the
	// default limit.
	Page  int
	Limit int
}

// ListMemberRegistrations returns one page of the caller's registrations and
// the total number of matches.
func (s *RegistrationService) ListMemberRegistrations(
	ctx context.Context,
	caller Caller,
	input RegistrationListInput,
) ([]models.RegistrationDetail, int, error) {
	if caller.MemberID <= 0 {
		return nil, 0, ErrInvalidInput
	}
	filter, err := s.listFilter(input)
	if err != nil {
		return nil, 0, err
	}
	filter.MemberID = caller.MemberID
	return s.tx.Stores().Registrations.List(ctx, filter)
}

func (s *RegistrationService) ListCourseRoster(
	ctx context.Context,
	caller Caller,
	courseID int64,
	input RegistrationListInput,
) ([]models.RegistrationDetail, int, error) {
	if !caller.IsAdmin {
		return nil, 0, ErrForbidden
	}
	if courseID <= 0 {
		return nil, 0, ErrInvalidInput
	}
	filter, err := s.listFilter(input)
	if err != nil {
		return nil, 0, err
	}
	filter.CourseID = courseID
	return s.tx.Stores().Registrations.List(ctx, filter)
}

func (s *RegistrationService) listFilter(input RegistrationListInput) (repository.RegistrationListFilter, error) {
	status := strings.ToLower(strings.TrimSpace(input.Status))
	switch status {
	case "", models.RegistrationRegistered, models.RegistrationAttended,
		models.RegistrationAbsent, models.RegistrationCancelled:
	default:
		return repository.RegistrationListFilter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, input.Status)
	}

	timeframe := strings.ToLower(strings.TrimSpace(input.Timeframe))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return repository.RegistrationListFilter{}, fmt.Errorf("%w: timeframe must be upcoming or past", ErrInvalidInput)
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxListPage {
		return repository.RegistrationListFilter{}, fmt.Errorf("%w: page must be at most %d", ErrInvalidInput, MaxListPage)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	today, clock := localDateClock(s.now(), s.policy.Location)
	return repository.RegistrationListFilter{
		Status:    status,
		Timeframe: timeframe,
		Today:     today,
		Clock:     clock,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}, nil
}

func (s *RegistrationService) event(kind string, registration *models.Registration, caller Caller, refunded *bool) RegistrationEvent {
	return RegistrationEvent{
		Type:           kind,
		RegistrationID: registration.ID,
		MemberID:       registration.MemberID,
		CourseID:       registration.CourseID,
		Status:         registration.Status,
		Refunded:       refunded,
		ActorID:        caller.MemberID,
		OccurredAt:     s.now().UTC(),
	}
}
