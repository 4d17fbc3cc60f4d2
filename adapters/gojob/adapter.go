package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	syncengine "github.com/goliatone/go-crm-sync/sync"
)

const (
	JobIDSyncIntegration = "crmsync.sync.integration"
	JobIDSyncBatch       = "crmsync.sync.batch"

	paramIntegrationID = "integration_id"
	paramRequestedBy   = "requested_by"
)

// SyncTrigger asks the queue to run one integration out of schedule. The
// idempotency key collapses repeated triggers for the same integration
// while one is still queued.
type SyncTrigger struct {
	IntegrationID string
	RequestedBy   string
}

func (t SyncTrigger) Validate() error {
	if strings.TrimSpace(t.IntegrationID) == "" {
		return fmt.Errorf("gojob: integration id is required")
	}
	return nil
}

// IdempotencyKey is stable per integration so duplicate triggers dedup in
// the queue rather than stacking runs.
func (t SyncTrigger) IdempotencyKey() string {
	return JobIDSyncIntegration + "::" + strings.TrimSpace(t.IntegrationID)
}

// ToExecutionMessage maps a trigger onto the go-job wire contract.
func ToExecutionMessage(trigger SyncTrigger) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDSyncIntegration,
		Parameters: map[string]any{
			paramIntegrationID: strings.TrimSpace(trigger.IntegrationID),
			paramRequestedBy:   strings.TrimSpace(trigger.RequestedBy),
		},
		IdempotencyKey: trigger.IdempotencyKey(),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromExecutionMessage recovers the trigger from a dequeued message.
func FromExecutionMessage(msg *job.ExecutionMessage) (SyncTrigger, error) {
	if msg == nil {
		return SyncTrigger{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDSyncIntegration {
		return SyncTrigger{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	trigger := SyncTrigger{
		IntegrationID: stringParam(msg.Parameters, paramIntegrationID),
		RequestedBy:   stringParam(msg.Parameters, paramRequestedBy),
	}
	if err := trigger.Validate(); err != nil {
		return SyncTrigger{}, err
	}
	return trigger, nil
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok {
		return ""
	}
	typed, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(typed)
}

// RetryPolicy bounds queue retries for failed trigger runs.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackFor builds the nack options for one failed attempt.
func (p RetryPolicy) NackFor(reason string, attempt int, delay time.Duration) queue.NackOptions {
	out := queue.NackOptions{
		Reason:  strings.TrimSpace(reason),
		Delay:   delay,
		Requeue: true,
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
	}
	return out
}

// TriggerEnqueuer publishes sync triggers onto a go-job queue.
type TriggerEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewTriggerEnqueuer(enqueuer queue.Enqueuer) *TriggerEnqueuer {
	return &TriggerEnqueuer{enqueuer: enqueuer}
}

func (e *TriggerEnqueuer) Enqueue(ctx context.Context, trigger SyncTrigger) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if err := trigger.Validate(); err != nil {
		return err
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(trigger))
}

// IntegrationRunner is the engine surface the consumer drives.
type IntegrationRunner interface {
	RunIntegrationByID(ctx context.Context, id string) (syncengine.RunResult, error)
}

// TriggerConsumer drains queued triggers and runs them through the engine.
type TriggerConsumer struct {
	dequeuer queue.Dequeuer
	runner   IntegrationRunner
	policy   RetryPolicy
}

func NewTriggerConsumer(dequeuer queue.Dequeuer, runner IntegrationRunner, policy RetryPolicy) (*TriggerConsumer, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("gojob: integration runner is required")
	}
	return &TriggerConsumer{dequeuer: dequeuer, runner: runner, policy: policy}, nil
}

// ConsumeOne processes a single delivery. A malformed message is acked and
// dropped; a run failure nacks with the retry policy applied.
func (c *TriggerConsumer) ConsumeOne(ctx context.Context, attempt int) (syncengine.RunResult, error) {
	if c == nil || c.dequeuer == nil || c.runner == nil {
		return syncengine.RunResult{}, fmt.Errorf("gojob: consumer is not configured")
	}

	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return syncengine.RunResult{}, err
	}

	trigger, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		// malformed payloads never become valid, drop instead of retrying
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			return syncengine.RunResult{}, ackErr
		}
		return syncengine.RunResult{}, err
	}

	result, runErr := c.runner.RunIntegrationByID(ctx, trigger.IntegrationID)
	if runErr != nil {
		if nackErr := delivery.Nack(ctx, c.policy.NackFor(runErr.Error(), attempt, 0)); nackErr != nil {
			return result, nackErr
		}
		return result, runErr
	}
	if err := delivery.Ack(ctx); err != nil {
		return result, err
	}
	return result, nil
}
