package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	syncengine "github.com/goliatone/go-crm-sync/sync"
)

// SyncRunner runs integrations on demand, sharing the scheduler's lock.
type SyncRunner interface {
	RunIntegrationByID(ctx context.Context, id string) (syncengine.RunResult, error)
	RunDueIntegrations(ctx context.Context) (syncengine.Summary, error)
}

// IntegrationAdminService covers the administrative mutations.
type IntegrationAdminService interface {
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error
	DisableIntegration(ctx context.Context, id string, reason string) error
	ReclaimStale(ctx context.Context) (int, error)
}

// CredentialRemover deletes stored tokens.
type CredentialRemover interface {
	Delete(ctx context.Context, tenantID string, providerID string) error
}

type TriggerSyncCommand struct {
	runner SyncRunner
}

func NewTriggerSyncCommand(runner SyncRunner) *TriggerSyncCommand {
	return &TriggerSyncCommand{runner: runner}
}

func (c *TriggerSyncCommand) Execute(ctx context.Context, msg TriggerSyncMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: sync runner is required")
	}
	if err := msg.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	result, err := c.runner.RunIntegrationByID(ctx, strings.TrimSpace(msg.IntegrationID))
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

type RunDueBatchCommand struct {
	runner SyncRunner
}

func NewRunDueBatchCommand(runner SyncRunner) *RunDueBatchCommand {
	return &RunDueBatchCommand{runner: runner}
}

func (c *RunDueBatchCommand) Execute(ctx context.Context, _ RunDueBatchMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: sync runner is required")
	}
	summary, err := c.runner.RunDueIntegrations(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, summary)
	return nil
}

type ReclaimStaleCommand struct {
	service IntegrationAdminService
}

func NewReclaimStaleCommand(service IntegrationAdminService) *ReclaimStaleCommand {
	return &ReclaimStaleCommand{service: service}
}

func (c *ReclaimStaleCommand) Execute(ctx context.Context, _ ReclaimStaleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: admin service is required")
	}
	reclaimed, err := c.service.ReclaimStale(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, reclaimed)
	return nil
}

type SetSyncEnabledCommand struct {
	service IntegrationAdminService
}

func NewSetSyncEnabledCommand(service IntegrationAdminService) *SetSyncEnabledCommand {
	return &SetSyncEnabledCommand{service: service}
}

func (c *SetSyncEnabledCommand) Execute(ctx context.Context, msg SetSyncEnabledMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: admin service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return c.service.SetSyncEnabled(ctx, strings.TrimSpace(msg.IntegrationID), msg.Enabled)
}

type DisableIntegrationCommand struct {
	service IntegrationAdminService
}

func NewDisableIntegrationCommand(service IntegrationAdminService) *DisableIntegrationCommand {
	return &DisableIntegrationCommand{service: service}
}

func (c *DisableIntegrationCommand) Execute(ctx context.Context, msg DisableIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: admin service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return c.service.DisableIntegration(ctx, strings.TrimSpace(msg.IntegrationID), strings.TrimSpace(msg.Reason))
}

type DeleteCredentialsCommand struct {
	vault CredentialRemover
}

func NewDeleteCredentialsCommand(vault CredentialRemover) *DeleteCredentialsCommand {
	return &DeleteCredentialsCommand{vault: vault}
}

func (c *DeleteCredentialsCommand) Execute(ctx context.Context, msg DeleteCredentialsMessage) error {
	if c == nil || c.vault == nil {
		return commandDependencyError("command: token vault is required")
	}
	if err := msg.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return c.vault.Delete(ctx, strings.TrimSpace(msg.TenantID), strings.TrimSpace(msg.ProviderID))
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
