package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const (
	DefaultCron       = "30 0 * * *"
	DefaultRetryDelay = 30 * time.Minute
	DefaultMaxRetries = 12
	defaultTimeout    = 10 * time.Minute
)

// DailyUpdater appends yesterday's records.
type DailyUpdater interface {
	AppendDailyUpdate(ctx context.Context) (int, error)
}

type Config struct {
	// Cron is a five-field expression evaluated in UTC.
	Cron string
	// RetryDelay is the wait before a failed update is run again.
	RetryDelay time.Duration
	// MaxRetries caps re-runs of one failed daily update.
	MaxRetries int
	// Timeout bounds a single update run.
	Timeout time.Duration
}

// Scheduler triggers the daily update and re-runs it after a failure.
type Scheduler struct {
	scheduler *gocron.Scheduler
	updater   DailyUpdater
	cfg       Config
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config, updater DailyUpdater, logger *slog.Logger) *Scheduler {
	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		updater:   updater,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Cron(s.cfg.Cron).Do(s.runDaily, 0); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("daily update scheduled", "cron", s.cfg.Cron)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// runDaily runs the whole update once. A failure schedules a single re-run
// after RetryDelay until MaxRetries is reached.
func (s *Scheduler) runDaily(attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	n, err := s.updater.AppendDailyUpdate(ctx)
	if err == nil {
		s.logger.Info("daily update done", "records", n, "attempt", attempt)
		return
	}

	if attempt >= s.cfg.MaxRetries {
		s.logger.Error("daily update abandoned", "attempt", attempt, "error", err)
		return
	}

	s.logger.Warn("daily update failed, retrying", "attempt", attempt, "in", s.cfg.RetryDelay, "error", err)
	_, serr := s.scheduler.Every(s.cfg.RetryDelay).WaitForSchedule().LimitRunsTo(1).Do(s.runDaily, attempt+1)
	if serr != nil {
		s.logger.Error("schedule daily retry", "error", serr)
	}
}
