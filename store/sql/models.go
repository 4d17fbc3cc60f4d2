package sqlstore

import (
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:crm_integrations,alias:ci"`

	ID           string         `bun:"id,pk"`
	TenantID     string         `bun:"tenant_id,notnull"`
	ProviderID   string         `bun:"provider_id,notnull"`
	Status       string         `bun:"status,notnull"`
	SyncEnabled  bool           `bun:"sync_enabled,notnull"`
	Direction    string         `bun:"sync_direction,notnull"`
	SyncCursor   string         `bun:"sync_cursor"`
	LastSyncedAt *time.Time     `bun:"last_synced_at,nullzero"`
	LastError    string         `bun:"last_error"`
	Settings     map[string]any `bun:"settings,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time     `bun:"deleted_at,soft_delete"`
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ProviderID:   r.ProviderID,
		Status:       core.IntegrationStatus(r.Status),
		SyncEnabled:  r.SyncEnabled,
		Direction:    core.SyncDirection(r.Direction),
		SyncCursor:   r.SyncCursor,
		LastSyncedAt: cloneTime(r.LastSyncedAt),
		LastError:    r.LastError,
		Settings:     core.ProviderSettings(r.Settings).Clone(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type tokenRecord struct {
	bun.BaseModel `bun:"table:crm_integration_tokens,alias:cit"`

	ID         string     `bun:"id,pk"`
	TenantID   string     `bun:"tenant_id,notnull"`
	ProviderID string     `bun:"provider_id,notnull"`
	Ciphertext string     `bun:"ciphertext,notnull"`
	ExpiresAt  *time.Time `bun:"expires_at,nullzero"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tokenRecord) toDomain() core.EncryptedTokenRecord {
	if r == nil {
		return core.EncryptedTokenRecord{}
	}
	return core.EncryptedTokenRecord{
		TenantID:   r.TenantID,
		ProviderID: r.ProviderID,
		Ciphertext: r.Ciphertext,
		ExpiresAt:  cloneTime(r.ExpiresAt),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type syncLogRecord struct {
	bun.BaseModel `bun:"table:crm_sync_logs,alias:csl"`

	ID            string     `bun:"id,pk"`
	IntegrationID string     `bun:"integration_id,notnull"`
	Direction     string     `bun:"direction,notnull"`
	Status        string     `bun:"status,notnull"`
	RecordsSynced int        `bun:"records_synced,notnull"`
	RecordsFailed int        `bun:"records_failed,notnull"`
	StartedAt     time.Time  `bun:"started_at,nullzero,notnull"`
	CompletedAt   *time.Time `bun:"completed_at,nullzero"`
	Error         string     `bun:"error"`
}

func (r *syncLogRecord) toDomain() core.SyncLogEntry {
	if r == nil {
		return core.SyncLogEntry{}
	}
	return core.SyncLogEntry{
		ID:            r.ID,
		IntegrationID: r.IntegrationID,
		Direction:     core.SyncDirection(r.Direction),
		Status:        core.SyncLogStatus(r.Status),
		RecordsSynced: r.RecordsSynced,
		RecordsFailed: r.RecordsFailed,
		StartedAt:     r.StartedAt,
		CompletedAt:   cloneTime(r.CompletedAt),
		Error:         r.Error,
	}
}

type contactLinkRecord struct {
	bun.BaseModel `bun:"table:crm_contact_links,alias:ccl"`

	ID               string         `bun:"id,pk"`
	IntegrationID    string         `bun:"integration_id,notnull"`
	RemoteObjectType string         `bun:"remote_object_type,notnull"`
	RemoteObjectID   string         `bun:"remote_object_id,notnull"`
	DisplayName      string         `bun:"display_name"`
	Email            string         `bun:"email"`
	Phone            string         `bun:"phone"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	SyncedAt         time.Time      `bun:"synced_at,nullzero,notnull"`
}

func (r *contactLinkRecord) toDomain() core.ContactLink {
	if r == nil {
		return core.ContactLink{}
	}
	return core.ContactLink{
		ID:               r.ID,
		IntegrationID:    r.IntegrationID,
		RemoteObjectType: r.RemoteObjectType,
		RemoteObjectID:   r.RemoteObjectID,
		DisplayName:      r.DisplayName,
		Email:            r.Email,
		Phone:            r.Phone,
		Metadata:         copyAnyMap(r.Metadata),
		SyncedAt:         r.SyncedAt,
	}
}

type callActivityLinkRecord struct {
	bun.BaseModel `bun:"table:crm_call_activity_links,alias:cal"`

	ID                 string    `bun:"id,pk"`
	IntegrationID      string    `bun:"integration_id,notnull"`
	CallID             string    `bun:"call_id,notnull"`
	ExternalActivityID string    `bun:"external_activity_id,notnull"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *callActivityLinkRecord) toDomain() core.CallActivityLink {
	if r == nil {
		return core.CallActivityLink{}
	}
	return core.CallActivityLink{
		ID:                 r.ID,
		IntegrationID:      r.IntegrationID,
		CallID:             r.CallID,
		ExternalActivityID: r.ExternalActivityID,
		CreatedAt:          r.CreatedAt,
	}
}

type callRecord struct {
	bun.BaseModel `bun:"table:calls,alias:c"`

	ID              string    `bun:"id,pk"`
	TenantID        string    `bun:"tenant_id,notnull"`
	FromNumber      string    `bun:"from_number"`
	ToNumber        string    `bun:"to_number"`
	Direction       string    `bun:"direction,notnull"`
	DurationSeconds int       `bun:"duration_seconds,notnull"`
	Outcome         string    `bun:"outcome"`
	Notes           string    `bun:"notes"`
	CompletedAt     time.Time `bun:"completed_at,nullzero,notnull"`
}

func (r *callRecord) toDomain() core.CallRecord {
	if r == nil {
		return core.CallRecord{}
	}
	return core.CallRecord{
		ID:              r.ID,
		TenantID:        r.TenantID,
		FromNumber:      r.FromNumber,
		ToNumber:        r.ToNumber,
		Direction:       r.Direction,
		DurationSeconds: r.DurationSeconds,
		Outcome:         r.Outcome,
		Notes:           r.Notes,
		CompletedAt:     r.CompletedAt,
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
