package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`

	// BatchSize bounds how many due integrations one orchestrator tick picks up.
	BatchSize int `koanf:"batch_size" mapstructure:"batch_size"`

	// PageLimit is the inbound page size requested from providers.
	PageLimit int `koanf:"page_limit" mapstructure:"page_limit"`

	// OutboundBatchSize bounds outbound call pushes per run.
	OutboundBatchSize int `koanf:"outbound_batch_size" mapstructure:"outbound_batch_size"`

	// RefreshLeadWindow is the proactive refresh buffer before token expiry.
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`

	// RunBudget is the per-integration wall-clock budget for one run.
	RunBudget time.Duration `koanf:"run_budget" mapstructure:"run_budget"`

	// SyncInterval is the fixed scheduling interval for the orchestrator.
	SyncInterval time.Duration `koanf:"sync_interval" mapstructure:"sync_interval"`

	// StaleSyncingThreshold reclaims integrations stuck in syncing. Zero
	// resolves to twice the sync interval.
	StaleSyncingThreshold time.Duration `koanf:"stale_syncing_threshold" mapstructure:"stale_syncing_threshold"`

	// ErrorMessageLimit truncates persisted error messages.
	ErrorMessageLimit int `koanf:"error_message_limit" mapstructure:"error_message_limit"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "crmsync",
		BatchSize:         25,
		PageLimit:         100,
		OutboundBatchSize: 25,
		RefreshLeadWindow: DefaultRefreshLeadWindow,
		RunBudget:         2 * time.Minute,
		SyncInterval:      5 * time.Minute,
		ErrorMessageLimit: 500,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("core: batch_size must not be negative")
	}
	if c.PageLimit < 0 {
		return fmt.Errorf("core: page_limit must not be negative")
	}
	if c.OutboundBatchSize < 0 {
		return fmt.Errorf("core: outbound_batch_size must not be negative")
	}
	if c.RefreshLeadWindow < 0 || c.RunBudget < 0 || c.SyncInterval < 0 || c.StaleSyncingThreshold < 0 {
		return fmt.Errorf("core: durations must not be negative")
	}
	return nil
}

// ResolveStaleThreshold returns the configured threshold, defaulting to
// twice the sync interval when unset.
func (c Config) ResolveStaleThreshold() time.Duration {
	if c.StaleSyncingThreshold > 0 {
		return c.StaleSyncingThreshold
	}
	interval := c.SyncInterval
	if interval <= 0 {
		interval = DefaultConfig().SyncInterval
	}
	return 2 * interval
}
