package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mGhassen/WildEnergy-sub005/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type absenceSweeper interface {
	Run(ctx context.Context) (*services.SweepResult, error)
}

// Scheduler runs the absence sweep on a cron schedule. Runs never overlap; a
// tick that fires while the previous sweep is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper absenceSweeper
	timeout time.Duration
	logger  *zap.Logger
}

func New(sweeper absenceSweeper, timeout time.Duration, logger *zap.Logger) *Scheduler {
	cronLogger := zapCronLogger{logger: logger.With(zap.String("component", "scheduler"))}
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{cron: c, sweeper: sweeper, timeout: timeout, logger: logger}
}

// ScheduleAbsenceSweep registers the sweep under spec, a standard five field
// cron expression.
func (s *Scheduler) ScheduleAbsenceSweep(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runAbsenceSweep); err != nil {
		return fmt.Errorf("schedule absence sweep %q: %w", spec, err)
	}
	s.logger.Info("scheduled absence sweep", zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) runAbsenceSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.sweeper.Run(ctx); err != nil {
		s.logger.Error("scheduled absence sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and returns a context that is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
