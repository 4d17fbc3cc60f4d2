package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// Summary aggregates one scheduler tick across all due integrations.
type Summary struct {
	Processed int
	Skipped   int
	Errors    int
	StartedAt time.Time
	Duration  time.Duration
}

// Orchestrator runs one batch of due integrations through the worker. One
// integration's failure never reaches its neighbors: each run is wrapped in
// its own recover boundary and errors are counted, not propagated.
type Orchestrator struct {
	worker       *Worker
	integrations core.IntegrationStore
	config       core.Config
	logger       core.Logger
	now          func() time.Time
}

func NewOrchestrator(worker *Worker, integrations core.IntegrationStore, config core.Config, logger core.Logger) (*Orchestrator, error) {
	if worker == nil {
		return nil, fmt.Errorf("sync: worker is required")
	}
	if integrations == nil {
		return nil, fmt.Errorf("sync: integration store is required")
	}
	return &Orchestrator{
		worker:       worker,
		integrations: integrations,
		config:       config,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the orchestrator clock, used by tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if o != nil && now != nil {
		o.now = now
	}
	return o
}

// RunDueIntegrations processes one batch of due integrations. It is safe to
// invoke ahead of schedule: overlap with an in-flight run is prevented only
// by the per-integration status lock, which makes the extra invocation a
// batch of skips rather than a conflict.
func (o *Orchestrator) RunDueIntegrations(ctx context.Context) (Summary, error) {
	summary := Summary{}
	if o == nil || o.worker == nil || o.integrations == nil {
		return summary, fmt.Errorf("sync: orchestrator is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	summary.StartedAt = o.now()

	if reclaimed, err := o.integrations.ReclaimStale(ctx, o.config.ResolveStaleThreshold()); err != nil {
		o.logError("stale sync reclaim failed", err)
	} else if reclaimed > 0 {
		o.logInfo("reclaimed stale sync runs", "count", reclaimed)
	}

	due, err := o.integrations.ListDue(ctx, o.config.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("sync: list due integrations: %w", err)
	}

	for _, integration := range due {
		if ctx.Err() != nil {
			break
		}
		result, runErr := o.runOne(ctx, integration)
		if result.Skipped {
			summary.Skipped++
			continue
		}
		summary.Processed++
		if runErr != nil {
			summary.Errors++
		}
	}

	summary.Duration = o.now().Sub(summary.StartedAt)
	o.logInfo("sync batch finished",
		"due", len(due),
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"duration", summary.Duration.String())
	return summary, nil
}

// RunIntegrationByID runs one integration outside the schedule, e.g. from a
// manual trigger. The same status lock applies, so a trigger that races the
// scheduled run comes back skipped instead of doubling up.
func (o *Orchestrator) RunIntegrationByID(ctx context.Context, id string) (RunResult, error) {
	if o == nil || o.worker == nil || o.integrations == nil {
		return RunResult{}, fmt.Errorf("sync: orchestrator is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	integration, err := o.integrations.Get(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	return o.runOne(ctx, integration)
}

// runOne isolates one integration run. A panic inside a provider or store
// is converted to a counted error so the remaining batch still runs.
func (o *Orchestrator) runOne(ctx context.Context, integration core.Integration) (result RunResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("sync: run panicked for integration %s: %v", integration.ID, recovered)
			o.logError("sync run panicked", err, "integration_id", integration.ID)
		}
	}()
	return o.worker.Run(ctx, integration)
}

func (o *Orchestrator) logInfo(msg string, args ...any) {
	if o == nil || o.logger == nil {
		return
	}
	o.logger.Info(msg, args...)
}

func (o *Orchestrator) logError(msg string, err error, args ...any) {
	if o == nil || o.logger == nil {
		return
	}
	o.logger.Error(msg, append([]any{"error", err}, args...)...)
}
