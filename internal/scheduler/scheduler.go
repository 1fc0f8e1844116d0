// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/logger"

	"github.com/robfig/cron/v3"
)

const (
	defaultExpirySpec  = "@every 1h"
	defaultReaperSpec  = "@every 5m"
	defaultStaleAfter  = 30 * time.Minute
	defaultTaskTimeout = 2 * time.Minute
)

type JobExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type SessionReaper interface {
	ReapStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs the periodic maintenance sweeps on robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.SchedulerConfig
	expirer    JobExpirer
	reaper     SessionReaper
	staleAfter time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func New(cfg config.SchedulerConfig, expirer JobExpirer, reaper SessionReaper, staleAfter time.Duration, log logger.Logger) *Scheduler {
	if cfg.JobExpirySpec == "" {
		cfg.JobExpirySpec = defaultExpirySpec
	}
	if cfg.SessionReaperSpec == "" {
		cfg.SessionReaperSpec = defaultReaperSpec
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		cfg:        cfg,
		expirer:    expirer,
		reaper:     reaper,
		staleAfter: staleAfter,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the sweeps and starts the cron loop. A disabled scheduler is a no-op.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled", nil)
		return nil
	}
	if s.expirer != nil {
		if _, err := s.cron.AddFunc(s.cfg.JobExpirySpec, func() { s.ExpireJobs(context.Background()) }); err != nil {
			return fmt.Errorf("schedule job expiry %q: %w", s.cfg.JobExpirySpec, err)
		}
	}
	if s.reaper != nil {
		if _, err := s.cron.AddFunc(s.cfg.SessionReaperSpec, func() { s.ReapSessions(context.Background()) }); err != nil {
			return fmt.Errorf("schedule session reaper %q: %w", s.cfg.SessionReaperSpec, err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{
		"jobExpirySpec":     s.cfg.JobExpirySpec,
		"sessionReaperSpec": s.cfg.SessionReaperSpec,
	})
	return nil
}

// Stop halts the cron loop and waits for running sweeps until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped", nil)
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with sweeps still running", nil)
	}
}

// ExpireJobs marks active jobs past their expiry date as expired.
func (s *Scheduler) ExpireJobs(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultTaskTimeout)
	defer cancel()

	n, err := s.expirer.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.Error("job expiry sweep failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		s.logger.Info("expired stale jobs", map[string]interface{}{"count": n})
	}
}

// ReapSessions fails scraping sessions left live for longer than the stale window.
func (s *Scheduler) ReapSessions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultTaskTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.reaper.ReapStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("session reaper failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		s.logger.Warn("reaped stale scraping sessions", map[string]interface{}{"count": n, "cutoff": cutoff})
	}
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kv(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kv(keysAndValues)
	fields["error"] = err.Error()
	c.log.Error("cron: "+msg, fields)
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
