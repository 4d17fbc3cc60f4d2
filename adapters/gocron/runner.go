package gocron

import (
	"context"
	"fmt"
	"sync"
	"time"

	cron "github.com/go-co-op/gocron"
	"github.com/goliatone/go-crm-sync/core"
	syncengine "github.com/goliatone/go-crm-sync/sync"
)

const taskTag = "crmsync.batch"

// BatchRunner is the orchestrator surface the scheduler drives.
type BatchRunner interface {
	RunDueIntegrations(ctx context.Context) (syncengine.Summary, error)
}

// Runner ticks the orchestrator on a fixed interval. Ticks that land while
// integrations are mid-run come back as skips, so the interval is a floor
// on spacing, not an exactness guarantee.
type Runner struct {
	mu        sync.Mutex
	scheduler *cron.Scheduler
	runner    BatchRunner
	interval  time.Duration
	logger    core.Logger
	started   bool
}

func NewRunner(runner BatchRunner, interval time.Duration, logger core.Logger) (*Runner, error) {
	if runner == nil {
		return nil, fmt.Errorf("gocron: batch runner is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("gocron: interval must be positive")
	}
	return &Runner{
		scheduler: cron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start schedules the recurring tick and begins running asynchronously.
// Calling Start twice is a no-op.
func (r *Runner) Start() error {
	if r == nil || r.scheduler == nil {
		return fmt.Errorf("gocron: runner is not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	job, err := r.scheduler.Every(r.interval).Do(r.tick)
	if err != nil {
		return fmt.Errorf("gocron: schedule sync batch: %w", err)
	}
	job.Tag(taskTag)

	r.scheduler.StartAsync()
	r.started = true
	r.logInfo("sync scheduler started", "interval", r.interval.String())
	return nil
}

// Stop halts the schedule. In-flight ticks finish; stuck rows are covered
// by the stale reclaim on the next process start.
func (r *Runner) Stop() {
	if r == nil || r.scheduler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.scheduler.Stop()
	r.started = false
	r.logInfo("sync scheduler stopped")
}

// RunNow executes one tick outside the schedule.
func (r *Runner) RunNow(ctx context.Context) (syncengine.Summary, error) {
	if r == nil || r.runner == nil {
		return syncengine.Summary{}, fmt.Errorf("gocron: runner is not configured")
	}
	return r.runner.RunDueIntegrations(ctx)
}

func (r *Runner) tick() {
	summary, err := r.runner.RunDueIntegrations(context.Background())
	if err != nil {
		r.logError("scheduled sync batch failed", err)
		return
	}
	r.logInfo("scheduled sync batch finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"duration", summary.Duration.String())
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

func (r *Runner) logError(msg string, err error, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Error(msg, append([]any{"error", err}, args...)...)
}
