package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/config"
)

// ReminderSender is the part of the loan service the scheduler drives.
type ReminderSender interface {
	SendDueReminders(ctx context.Context) (int, error)
}

// Scheduler runs the periodic loan jobs in the library timezone.
type Scheduler struct {
	cron    *cron.Cron
	sender  ReminderSender
	logger  *zap.Logger
	timeout time.Duration
}

func New(cfg *config.Config, sender ReminderSender, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(cfg.GetLocation())),
		sender:  sender,
		logger:  logger,
		timeout: 5 * time.Minute,
	}

	if _, err := s.cron.AddFunc(cfg.Scheduler.ReminderCron, s.SendReminders); err != nil {
		return nil, err
	}

	return s, nil
}

// SendReminders is the reminder job. A run that fails is logged and retried on
// the next tick.
func (s *Scheduler) SendReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("running due reminder job")

	sent, err := s.sender.SendDueReminders(ctx)
	if err != nil {
		s.logger.Error("due reminder job failed", zap.Error(err), zap.Int("sent", sent))
		return
	}

	s.logger.Info("due reminder job finished",
		zap.Int("sent", sent), zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
