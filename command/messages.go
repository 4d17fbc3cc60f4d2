package command

import (
	"fmt"
	"strings"
)

const (
	TypeTriggerSync        = "crmsync.command.sync.trigger"
	TypeRunDueBatch        = "crmsync.command.sync.run_batch"
	TypeReclaimStale       = "crmsync.command.sync.reclaim_stale"
	TypeSetSyncEnabled     = "crmsync.command.integration.set_sync_enabled"
	TypeDisableIntegration = "crmsync.command.integration.disable"
	TypeDeleteCredentials  = "crmsync.command.credentials.delete"
)

// TriggerSyncMessage runs one integration outside the schedule.
type TriggerSyncMessage struct {
	IntegrationID string
}

func (TriggerSyncMessage) Type() string { return TypeTriggerSync }

func (m TriggerSyncMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	return nil
}

// RunDueBatchMessage runs one orchestrator tick over all due integrations.
type RunDueBatchMessage struct{}

func (RunDueBatchMessage) Type() string { return TypeRunDueBatch }

// ReclaimStaleMessage sweeps integrations stuck in syncing back to error.
type ReclaimStaleMessage struct{}

func (ReclaimStaleMessage) Type() string { return TypeReclaimStale }

type SetSyncEnabledMessage struct {
	IntegrationID string
	Enabled       bool
}

func (SetSyncEnabledMessage) Type() string { return TypeSetSyncEnabled }

func (m SetSyncEnabledMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	return nil
}

type DisableIntegrationMessage struct {
	IntegrationID string
	Reason        string
}

func (DisableIntegrationMessage) Type() string { return TypeDisableIntegration }

func (m DisableIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	return nil
}

// DeleteCredentialsMessage removes the stored token record for one
// (tenant, provider) pair, typically after a disconnect.
type DeleteCredentialsMessage struct {
	TenantID   string
	ProviderID string
}

func (DeleteCredentialsMessage) Type() string { return TypeDeleteCredentials }

func (m DeleteCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}
