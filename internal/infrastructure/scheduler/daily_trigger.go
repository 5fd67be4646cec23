// Package scheduler runs background jobs on a daily wall-clock schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Job is the work a trigger runs.
type Job func(ctx context.Context) error

// RunLock claims a named run across instances.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DailyTriggerConfig holds configuration for the daily trigger
type DailyTriggerConfig struct {
	// Name prefixes run lock keys and log lines, e.g. "expiry-sweep"
	Name   string
	Hour   int
	Minute int
	// Location is the time zone Hour and Minute are read in
	Location *time.Location
	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
	// LockTTL is how long a day's claim is held
	LockTTL    time.Duration
	JobTimeout time.Duration
}

// DefaultDailyTriggerConfig returns the default configuration: 02:00 UTC.
func DefaultDailyTriggerConfig(name string) DailyTriggerConfig {
	return DailyTriggerConfig{
		Name:          name,
		Hour:          2,
		Minute:        0,
		Location:      time.UTC,
		CheckInterval: time.Minute,
		LockTTL:       23 * time.Hour,
		JobTimeout:    30 * time.Minute,
	}
}

// Validate checks the configuration
func (c DailyTriggerConfig) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case c.Hour < 0 || c.Hour > 23:
		return fmt.Errorf("%w: hour must be 0-23", ErrInvalidConfig)
	case c.Minute < 0 || c.Minute > 59:
		return fmt.Errorf("%w: minute must be 0-59", ErrInvalidConfig)
	case c.CheckInterval <= 0:
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	case c.LockTTL <= 0:
		return fmt.Errorf("%w: lock ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

// DailyTrigger runs a job once per calendar day, at or after the configured
// time. A run missed while the process was down happens on the first check
// after start. The run lock keeps a multi-instance deployment to one run
// per day.
type DailyTrigger struct {
	config DailyTriggerConfig
	job    Job
	lock   RunLock
	clock  shared.Clock
	logger *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	jobRunning  bool
	lastRunDate string
}

// NewDailyTrigger creates a new daily trigger
func NewDailyTrigger(config DailyTriggerConfig, job Job, lock RunLock, clock shared.Clock, logger *zap.Logger) (*DailyTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyTrigger{
		config: config,
		job:    job,
		lock:   lock,
		clock:  clock,
		logger: logger.With(zap.String("job", config.Name)),
	}, nil
}

// Start starts the trigger loop
func (t *DailyTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Daily trigger started",
		zap.Int("hour", t.config.Hour),
		zap.Int("minute", t.config.Minute),
		zap.String("location", t.config.Location.String()),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger and waits for an in-flight run, or for ctx.
func (t *DailyTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Daily trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *DailyTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	t.CheckAndRun(ctx)

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckAndRun(ctx)
		}
	}
}

// CheckAndRun runs the job if today's run is due and has not happened. It
// reports whether this call ran the job.
func (t *DailyTrigger) CheckAndRun(ctx context.Context) bool {
	now := t.clock.Now().In(t.config.Location)
	today := now.Format("2006-01-02")

	t.mu.Lock()
	if t.lastRunDate == today {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	due := time.Date(now.Year(), now.Month(), now.Day(), t.config.Hour, t.config.Minute, 0, 0, t.config.Location)
	if now.Before(due) {
		return false
	}

	if t.lock != nil {
		acquired, err := t.lock.Acquire(ctx, t.config.Name+":"+today, t.config.LockTTL)
		if err != nil {
			// Retried on the next check.
			t.logger.Error("Failed to acquire run lock", zap.String("date", today), zap.Error(err))
			return false
		}
		if !acquired {
			t.logger.Info("Run already claimed by another instance", zap.String("date", today))
			t.markRan(today)
			return false
		}
	}

	t.markRan(today)
	if err := t.run(ctx); err != nil {
		t.logger.Error("Scheduled run failed", zap.String("date", today), zap.Error(err))
	}
	return true
}

// RunNow runs the job immediately, outside the schedule and the run lock.
func (t *DailyTrigger) RunNow(ctx context.Context) error {
	return t.run(ctx)
}

func (t *DailyTrigger) markRan(day string) {
	t.mu.Lock()
	t.lastRunDate = day
	t.mu.Unlock()
}

func (t *DailyTrigger) run(ctx context.Context) error {
	t.mu.Lock()
	if t.jobRunning {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.jobRunning = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.jobRunning = false
		t.mu.Unlock()
	}()

	if t.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.JobTimeout)
		defer cancel()
	}

	start := t.clock.Now()
	t.logger.Info("Running scheduled job")
	if err := t.job(ctx); err != nil {
		return err
	}
	t.logger.Info("Scheduled job finished", zap.Duration("elapsed", t.clock.Now().Sub(start)))
	return nil
}
