// Package scheduler runs the periodic approval digest.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account"
)

// DigestSender sends the approval digest.
type DigestSender interface {
	HasWaitingApproval(ctx context.Context) (bool, error)
	SendApprovalDigest(ctx context.Context) error
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	digest  DigestSender
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// cronLogger adapts the sugared logger to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...any) { c.l.Debugw(msg, keysAndValues...) }

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "err", err)...)
}

func New(digest DigestSender, timeout time.Duration, logger *zap.SugaredLogger) *Scheduler {
	cl := cronLogger{l: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		digest:  digest,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the digest job on schedule and starts the cron loop.
// An empty schedule disables the job and Start returns false.
func (s *Scheduler) Start(schedule string) (bool, error) {
	if schedule == "" {
		s.logger.Info("approval digest job disabled")
		return false, nil
	}
	if _, err := s.cron.AddFunc(schedule, s.runDigest); err != nil {
		return false, err
	}
	s.logger.Infow("scheduled approval digest job", "schedule", schedule)
	s.cron.Start()
	return true, nil
}

// Stop stops the cron loop; the returned context is done once a running
// job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// scheduled runs stay quiet while nobody waits
	has, err := s.digest.HasWaitingApproval(ctx)
	if err != nil {
		s.logger.Errorw("approval digest failed", "err", err)
		return
	}
	if !has {
		s.logger.Debug("approval digest skipped: no accounts waiting")
		return
	}

	err = s.digest.SendApprovalDigest(ctx)
	switch {
	case err == nil:
	case errors.Is(err, account.ErrNoAdmins):
		s.logger.Warn("approval digest skipped: no active administrators")
	default:
		s.logger.Errorw("approval digest failed", "err", err)
	}
}
