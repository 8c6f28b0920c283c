package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultSweepBatchSize = 500

type SweepResult struct {
	UpdatedCount int           `json:"updated_count"`
	Batches      int           `json:"batches"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// AbsenceSweep moves registered bookings of finished courses without a
// check-in to absent. Each batch commits on its own, so a run can be
// interrupted and repeated without double effects.
type AbsenceSweep struct {
	tx        Transactor
	location  *time.Location
	batchSize int
	publisher EventPublisher
	metrics   RegistrationMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewAbsenceSweep(
	tx Transactor,
	location *time.Location,
	batchSize int,
	publisher EventPublisher,
	metrics RegistrationMetrics,
	logger *zap.Logger,
) *AbsenceSweep {
	if location == nil {
		location = time.UTC
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
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
	return &AbsenceSweep{
		tx:        tx,
		location:  location,
		batchSize: batchSize,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AbsenceSweep) Run(ctx context.Context) (*SweepResult, error) {
	started := s.now()
	today, clock := localDateClock(started, s.location)
	result := &SweepResult{}

	for {
		if err := ctx.Err(); err != nil {
			s.metrics.SweepFailed()
			return result, err
		}

		var affected int64
		err := s.tx.WithinTx(ctx, func(st Stores) error {
			n, err := st.Registrations.MarkAbsentForFinishedCourses(ctx, today, clock, s.batchSize)
			affected = n
			return err
		})
		if err != nil {
			s.metrics.SweepFailed()
			s.logger.Error("absence sweep batch failed",
				zap.Int("batch", result.Batches+1),
				zap.Int("updated_so_far", result.UpdatedCount),
				zap.Error(err),
			)
			return result, err
		}

		result.Batches++
		result.UpdatedCount += int(affected)
		if affected < int64(s.batchSize) {
			break
		}
	}

	result.Elapsed = s.now().Sub(started)
	s.metrics.SweepCompleted(result.UpdatedCount, result.Elapsed)
	s.logger.Info("absence sweep completed",
		zap.Int("updated", result.UpdatedCount),
		zap.Int("batches", result.Batches),
		zap.Duration("elapsed", result.Elapsed),
		zap.String("cutoff_date", today),
		zap.String("cutoff_clock", clock),
	)
	publishAfterCommit(ctx, s.publisher, s.logger, EventSweepCompleted, SweepEvent{
		Type:         EventSweepCompleted,
		UpdatedCount: result.UpdatedCount,
		RanAt:        started.UTC(),
	})
	return result, nil
}
