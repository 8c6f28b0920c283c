package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
	"github.com/mGhassen/WildEnergy-sub005/internal/repository"
)

type CourseStore interface {
	GetByID(ctx context.Context, courseID int64) (*models.Course, error)
	GetByIDForUpdate(ctx context.Context, courseID int64) (*models.Course, error)
	Reserve(ctx context.Context, courseID int64) (int, error)
	Release(ctx context.Context, courseID int64) (int, error)
}

type LedgerStore interface {
	FindEntitlementForUpdate(ctx context.Context, memberID, groupID int64, courseDate string) (*models.Entitlement, error)
	HasEntitlement(ctx context.Context, memberID, groupID int64, courseDate string) (bool, error)
	Debit(ctx context.Context, subscriptionID, groupID int64, amount int) (*models.SubscriptionGroupSession, error)
	GetForUpdate(ctx context.Context, subscriptionID, groupID int64) (*models.SubscriptionGroupSession, error)
	SetRemaining(ctx context.Context, groupSessionID int64, remaining int) (*models.SubscriptionGroupSession, error)
}

type RegistrationStore interface {
	Create(ctx context.Context, input repository.CreateRegistrationInput) (*models.Registration, error)
	GetByID(ctx context.Context, registrationID int64) (*models.Registration, error)
	GetByIDForUpdate(ctx context.Context, registrationID int64) (*models.Registration, error)
	GetByQRCode(ctx context.Context, qrCode string) (*models.Registration, error)
	FindLive(ctx context.Context, memberID, courseID int64) (*models.Registration, error)
	HasOverlap(ctx context.Context, q repository.OverlapQuery) (bool, error)
	UpdateStatusIfCurrent(ctx context.Context, registrationID int64, currentStatus, nextStatus string) (*models.Registration, error)
	MarkCancelled(ctx context.Context, registrationID int64, refunded bool, cancelledAt time.Time) (*models.Registration, error)
	MarkAbsentForFinishedCourses(ctx context.Context, today, clock string, limit int) (int64, error)
	List(ctx context.Context, filter repository.RegistrationListFilter) ([]models.RegistrationDetail, int, error)
}

type CheckinStore interface {
	Create(ctx context.Context, input repository.CreateCheckinInput) (*models.Checkin, error)
	GetByRegistrationID(ctx context.Context, registrationID int64) (*models.Checkin, error)
	DeleteByRegistrationID(ctx context.Context, registrationID int64) (*models.Checkin, error)
}

// Stores is one consistent view of the booking tables: either bound to a
// transaction or to the pool for plain reads.
type Stores struct {
	Courses       CourseStore
	Ledger        LedgerStore
	Registrations RegistrationStore
	Checkins      CheckinStore
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
	Stores() Stores
}

type PostgresTransactor struct {
	pool       *pgxpool.Pool
	maxRetries int
}

func NewPostgresTransactor(pool *pgxpool.Pool, maxRetries int) *PostgresTransactor {
	return &PostgresTransactor{pool: pool, maxRetries: maxRetries}
}

func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(Stores) error) error {
	return repository.RunInTx(ctx, t.pool, t.maxRetries, func(tx pgx.Tx) error {
		return fn(newStores(tx))
	})
}

func (t *PostgresTransactor) Stores() Stores {
	return newStores(t.pool)
}

func newStores(db repository.DBTX) Stores {
	return Stores{
		Courses:       repository.NewCourseRepository(db),
		Ledger:        repository.NewLedgerRepository(db),
		Registrations: repository.NewRegistrationRepository(db),
		Checkins:      repository.NewCheckinRepository(db),
	}
}
