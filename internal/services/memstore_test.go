package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
	"github.com/mGhassen/WildEnergy-sub005/internal/repository"
)

type memSubscription struct {
	ID        int64
	MemberID  int64
	Status    string
	StartDate string
	EndDate   string
}

// memDB is an in-memory stand-in for the booking tables. WithinTx serializes
// transactions and restores a snapshot when fn fails, which is enough to check
// atomicity and the concurrency guarantees of the services.
type memDB struct {
	mu sync.Mutex

	courses       map[int64]models.Course
	subscriptions map[int64]memSubscription
	balances      map[int64]models.SubscriptionGroupSession
	registrations map[int64]models.Registration
	checkins      map[int64]models.Checkin

	nextID int64

	// failRegistrationCreate makes the next registration insert fail.
	failRegistrationCreate error
	txCount                int
}

func newMemDB() *memDB {
	return &memDB{
		courses:       map[int64]models.Course{},
		subscriptions: map[int64]memSubscription{},
		balances:      map[int64]models.SubscriptionGroupSession{},
		registrations: map[int64]models.Registration{},
		checkins:      map[int64]models.Checkin{},
		nextID:        100,
	}
}

func (d *memDB) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *memDB) addCourse(course models.Course) models.Course {
	d.mu.Lock()
	defer d.mu.Unlock()
	if course.ID == 0 {
		course.ID = d.id()
	}
	if course.Status == "" {
		course.Status = models.CourseScheduled
		course.IsActive = true
	}
	d.courses[course.ID] = course
	return course
}

func (d *memDB) addSubscription(memberID, groupID int64, startDate, endDate string, total, remaining int) models.SubscriptionGroupSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub := memSubscription{
		ID:        d.id(),
		MemberID:  memberID,
		Status:    models.SubscriptionActive,
		StartDate: startDate,
		EndDate:   endDate,
	}
	d.subscriptions[sub.ID] = sub
	balance := models.SubscriptionGroupSession{
		ID:                d.id(),
		SubscriptionID:    sub.ID,
		GroupID:           groupID,
		TotalSessions:     total,
		SessionsRemaining: remaining,
	}
	d.balances[balance.ID] = balance
	return balance
}

func (d *memDB) course(id int64) models.Course {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.courses[id]
}

func (d *memDB) balance(id int64) models.SubscriptionGroupSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[id]
}

func (d *memDB) registration(id int64) models.Registration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registrations[id]
}

func (d *memDB) checkinFor(registrationID int64) (models.Checkin, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	checkin, ok := d.checkins[registrationID]
	return checkin, ok
}

func (d *memDB) setRegistrationStatus(id int64, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	registration := d.registrations[id]
	registration.Status = status
	d.registrations[id] = registration
}

func (d *memDB) snapshot() *memDB {
	clone := &memDB{
		courses:       make(map[int64]models.Course, len(d.courses)),
		subscriptions: make(map[int64]memSubscription, len(d.subscriptions)),
		balances:      make(map[int64]models.SubscriptionGroupSession, len(d.balances)),
		registrations: make(map[int64]models.Registration, len(d.registrations)),
		checkins:      make(map[int64]models.Checkin, len(d.checkins)),
		nextID:        d.nextID,
	}
	for k, v := range d.courses {
		clone.courses[k] = v
	}
	for k, v := range d.subscriptions {
		clone.subscriptions[k] = v
	}
	for k, v := range d.balances {
		clone.balances[k] = v
	}
	for k, v := range d.registrations {
		clone.registrations[k] = v
	}
	for k, v := range d.checkins {
		clone.checkins[k] = v
	}
	return clone
}

func (d *memDB) restore(from *memDB) {
	d.courses = from.courses
	d.subscriptions = from.subscriptions
	d.balances = from.balances
	d.registrations = from.registrations
	d.checkins = from.checkins
	d.nextID = from.nextID
}

func (d *memDB) WithinTx(_ context.Context, fn func(Stores) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txCount++

	saved := d.snapshot()
	if err := fn(d.stores(false)); err != nil {
		d.restore(saved)
		return err
	}
	return nil
}

func (d *memDB) Stores() Stores {
	return d.stores(true)
}

func (d *memDB) stores(autoLock bool) Stores {
	return Stores{
		Courses:       &memCourses{db: d, autoLock: autoLock},
		Ledger:        &memLedger{db: d, autoLock: autoLock},
		Registrations: &memRegistrations{db: d, autoLock: autoLock},
		Checkins:      &memCheckins{db: d, autoLock: autoLock},
	}
}

func (d *memDB) enter(autoLock bool) func() {
	if !autoLock {
		return func() {}
	}
	d.mu.Lock()
	return d.mu.Unlock
}

type memCourses struct {
	db       *memDB
	autoLock bool
}

func (s *memCourses) GetByID(_ context.Context, courseID int64) (*models.Course, error) {
	defer s.db.enter(s.autoLock)()
	course, ok := s.db.courses[courseID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &course, nil
}

func (s *memCourses) GetByIDForUpdate(ctx context.Context, courseID int64) (*models.Course, error) {
	return s.GetByID(ctx, courseID)
}

func (s *memCourses) Reserve(_ context.Context, courseID int64) (int, error) {
	defer s.db.enter(s.autoLock)()
	course, ok := s.db.courses[courseID]
	if !ok || course.CurrentParticipants >= course.MaxParticipants {
		return 0, pgx.ErrNoRows
	}
	course.CurrentParticipants++
	s.db.courses[courseID] = course
	return course.CurrentParticipants, nil
}

func (s *memCourses) Release(_ context.Context, courseID int64) (int, error) {
	defer s.db.enter(s.autoLock)()
	course, ok := s.db.courses[courseID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	course.CurrentParticipants = max(course.CurrentParticipants-1, 0)
	s.db.courses[courseID] = course
	return course.CurrentParticipants, nil
}

type memLedger struct {
	db       *memDB
	autoLock bool
}

func (s *memLedger) covering(memberID, groupID int64, courseDate string) []models.Entitlement {
	var out []models.Entitlement
	for _, balance := range s.db.balances {
		sub := s.db.subscriptions[balance.SubscriptionID]
		if sub.MemberID != memberID || balance.GroupID != groupID || sub.Status != models.SubscriptionActive {
			continue
		}
		if sub.StartDate > courseDate || sub.EndDate < courseDate {
			continue
		}
		out = append(out, models.Entitlement{
			SubscriptionGroupSession: balance,
			MemberID:                 sub.MemberID,
			SubscriptionStatus:       sub.Status,
			EndDate:                  sub.EndDate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndDate != out[j].EndDate {
			return out[i].EndDate < out[j].EndDate
		}
		return out[i].SubscriptionID < out[j].SubscriptionID
	})
	return out
}

func (s *memLedger) FindEntitlementForUpdate(_ context.Context, memberID, groupID int64, courseDate string) (*models.Entitlement, error) {
	defer s.db.enter(s.autoLock)()
	for _, entitlement := range s.covering(memberID, groupID, courseDate) {
		if entitlement.SessionsRemaining > 0 {
			return &entitlement, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memLedger) HasEntitlement(_ context.Context, memberID, groupID int64, courseDate string) (bool, error) {
	defer s.db.enter(s.autoLock)()
	return len(s.covering(memberID, groupID, courseDate)) > 0, nil
}

func (s *memLedger) find(subscriptionID, groupID int64) (models.SubscriptionGroupSession, bool) {
	for _, balance := range s.db.balances {
		if balance.SubscriptionID == subscriptionID && balance.GroupID == groupID {
			return balance, true
		}
	}
	return models.SubscriptionGroupSession{}, false
}

func (s *memLedger) Debit(_ context.Context, subscriptionID, groupID int64, amount int) (*models.SubscriptionGroupSession, error) {
	defer s.db.enter(s.autoLock)()
	balance, ok := s.find(subscriptionID, groupID)
	if !ok || balance.SessionsRemaining < amount {
		return nil, pgx.ErrNoRows
	}
	balance.SessionsRemaining -= amount
	s.db.balances[balance.ID] = balance
	return &balance, nil
}

func (s *memLedger) GetForUpdate(_ context.Context, subscriptionID, groupID int64) (*models.SubscriptionGroupSession, error) {
	defer s.db.enter(s.autoLock)()
	balance, ok := s.find(subscriptionID, groupID)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &balance, nil
}

func (s *memLedger) SetRemaining(_ context.Context, groupSessionID int64, remaining int) (*models.SubscriptionGroupSession, error) {
	defer s.db.enter(s.autoLock)()
	balance, ok := s.db.balances[groupSessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if remaining < 0 || remaining > balance.TotalSessions {
		return nil, fmt.Errorf("balance %d out of bounds", remaining)
	}
	balance.SessionsRemaining = remaining
	s.db.balances[groupSessionID] = balance
	return &balance, nil
}

type memRegistrations struct {
	db       *memDB
	autoLock bool
}

func isLiveStatus(status string) bool {
	return status == models.RegistrationRegistered ||
		status == models.RegistrationAttended ||
		status == models.RegistrationAbsent
}

func (s *memRegistrations) Create(_ context.Context, input repository.CreateRegistrationInput) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	if err := s.db.failRegistrationCreate; err != nil {
		s.db.failRegistrationCreate = nil
		return nil, err
	}
	for _, existing := range s.db.registrations {
		if existing.MemberID == input.MemberID && existing.CourseID == input.CourseID && isLiveStatus(existing.Status) {
			return nil, uniqueViolation(repository.LiveRegistrationIndex)
		}
	}
	registration := models.Registration{
		ID:               s.db.id(),
		MemberID:         input.MemberID,
		CourseID:         input.CourseID,
		SubscriptionID:   input.SubscriptionID,
		Status:           models.RegistrationRegistered,
		QRCode:           input.QRCode,
		RegistrationDate: input.RegistrationDate,
		UpdatedAt:        input.RegistrationDate,
	}
	s.db.registrations[registration.ID] = registration
	return &registration, nil
}

func (s *memRegistrations) GetByID(_ context.Context, registrationID int64) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	registration, ok := s.db.registrations[registrationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &registration, nil
}

func (s *memRegistrations) GetByIDForUpdate(ctx context.Context, registrationID int64) (*models.Registration, error) {
	return s.GetByID(ctx, registrationID)
}

func (s *memRegistrations) GetByQRCode(_ context.Context, qrCode string) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	for _, registration := range s.db.registrations {
		if registration.QRCode == qrCode {
			return &registration, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memRegistrations) FindLive(_ context.Context, memberID, courseID int64) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	for _, registration := range s.db.registrations {
		if registration.MemberID == memberID && registration.CourseID == courseID && isLiveStatus(registration.Status) {
			return &registration, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memRegistrations) HasOverlap(_ context.Context, q repository.OverlapQuery) (bool, error) {
	defer s.db.enter(s.autoLock)()
	for _, registration := range s.db.registrations {
		if registration.MemberID != q.MemberID || registration.CourseID == q.CourseID {
			continue
		}
		if registration.Status != models.RegistrationRegistered && registration.Status != models.RegistrationAttended {
			continue
		}
		course := s.db.courses[registration.CourseID]
		if course.CourseDate == q.CourseDate && course.StartTime < q.EndTime && course.EndTime > q.StartTime {
			return true, nil
		}
	}
	return false, nil
}

func (s *memRegistrations) UpdateStatusIfCurrent(_ context.Context, registrationID int64, currentStatus, nextStatus string) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	registration, ok := s.db.registrations[registrationID]
	if !ok || registration.Status != currentStatus {
		return nil, pgx.ErrNoRows
	}
	registration.Status = nextStatus
	s.db.registrations[registrationID] = registration
	return &registration, nil
}

func (s *memRegistrations) MarkCancelled(_ context.Context, registrationID int64, refunded bool, cancelledAt time.Time) (*models.Registration, error) {
	defer s.db.enter(s.autoLock)()
	registration, ok := s.db.registrations[registrationID]
	if !ok || registration.Status != models.RegistrationRegistered {
		return nil, pgx.ErrNoRows
	}
	registration.Status = models.RegistrationCancelled
	registration.SessionRefunded = refunded
	registration.CancelledAt = &cancelledAt
	s.db.registrations[registrationID] = registration
	return &registration, nil
}

func (s *memRegistrations) MarkAbsentForFinishedCourses(_ context.Context, today, clock string, limit int) (int64, error) {
	defer s.db.enter(s.autoLock)()
	ids := make([]int64, 0)
	for id, registration := range s.db.registrations {
		if registration.Status != models.RegistrationRegistered {
			continue
		}
		if _, checkedIn := s.db.checkins[id]; checkedIn {
			continue
		}
		course := s.db.courses[registration.CourseID]
		if course.CourseDate < today || (course.CourseDate == today && course.EndTime < clock) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		registration := s.db.registrations[id]
		registration.Status = models.RegistrationAbsent
		s.db.registrations[id] = registration
	}
	return int64(len(ids)), nil
}

func (s *memRegistrations) List(_ context.Context, filter repository.RegistrationListFilter) ([]models.RegistrationDetail, int, error) {
	defer s.db.enter(s.autoLock)()
	details := make([]models.RegistrationDetail, 0)
	for _, registration := range s.db.registrations {
		if filter.MemberID > 0 && registration.MemberID != filter.MemberID {
			continue
		}
		if filter.CourseID > 0 && registration.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && registration.Status != filter.Status {
			continue
		}
		course := s.db.courses[registration.CourseID]
		past := course.CourseDate < filter.Today || (course.CourseDate == filter.Today && course.EndTime < filter.Clock)
		if (filter.Timeframe == "past" && !past) || (filter.Timeframe == "upcoming" && past) {
			continue
		}
		detail := models.RegistrationDetail{Registration: registration, Course: &course}
		if checkin, ok := s.db.checkins[registration.ID]; ok {
			detail.Checkin = &checkin
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })
	total := len(details)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		details = details[start:end]
	}
	return details, total, nil
}

type memCheckins struct {
	db       *memDB
	autoLock bool
}

func (s *memCheckins) Create(_ context.Context, input repository.CreateCheckinInput) (*models.Checkin, error) {
	defer s.db.enter(s.autoLock)()
	if _, exists := s.db.checkins[input.RegistrationID]; exists {
		return nil, uniqueViolation(repository.CheckinRegistrationKey)
	}
	checkin := models.Checkin{
		ID:              s.db.id(),
		RegistrationID:  input.RegistrationID,
		MemberID:        input.MemberID,
		CheckinTime:     input.CheckinTime,
		SessionConsumed: true,
	}
	s.db.checkins[input.RegistrationID] = checkin
	return &checkin, nil
}

func (s *memCheckins) GetByRegistrationID(_ context.Context, registrationID int64) (*models.Checkin, error) {
	defer s.db.enter(s.autoLock)()
	checkin, ok := s.db.checkins[registrationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &checkin, nil
}

func (s *memCheckins) DeleteByRegistrationID(_ context.Context, registrationID int64) (*models.Checkin, error) {
	defer s.db.enter(s.autoLock)()
	checkin, ok := s.db.checkins[registrationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	delete(s.db.checkins, registrationID)
	return &checkin, nil
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	bodies []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.bodies = append(p.bodies, body)
	return p.err
}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
