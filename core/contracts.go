package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

// FieldsLogger is implemented by loggers that accept structured fields.
type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}

// Provider normalizes one CRM vendor behind a capability interface. Adding a
// vendor adds a variant, never a new branch in worker or orchestrator logic.
type Provider interface {
	ID() string

	// ExchangeCode trades an authorization code for a token set.
	ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (TokenSet, error)

	// Refresh exchanges the refresh token for a new token set. When the
	// provider response omits a refresh token the prior one is carried over.
	Refresh(ctx context.Context, tokens TokenSet, settings ProviderSettings) (TokenSet, error)

	// ListContacts returns one page of contacts changed since the request's
	// lower bound, plus the cursor for the following page.
	ListContacts(ctx context.Context, tokens TokenSet, settings ProviderSettings, req ContactPageRequest) (ContactPage, error)

	// SearchContactByPhone returns the best match or (nil, nil) when none.
	SearchContactByPhone(ctx context.Context, tokens TokenSet, settings ProviderSettings, phone string) (*RemoteContact, error)

	// SearchContactByEmail returns the best match or (nil, nil) when none.
	SearchContactByEmail(ctx context.Context, tokens TokenSet, settings ProviderSettings, email string) (*RemoteContact, error)

	// CreateCallActivity records a call against the remote CRM and returns
	// the external activity id.
	CreateCallActivity(ctx context.Context, tokens TokenSet, settings ProviderSettings, activity CallActivity) (string, error)
}

// Registry resolves provider variants by id.
type Registry interface {
	Register(provider Provider) error
	Resolve(providerID string) (Provider, error)
	IDs() []string
}

// TokenVault encrypts, stores, retrieves, and removes OAuth credentials per
// (tenant, provider). Get distinguishes absence (ErrTokenNotFound) from
// decryption failure (ErrVaultCorrupt); callers must not conflate the two.
type TokenVault interface {
	Store(ctx context.Context, tenantID string, providerID string, tokens TokenSet) error
	Get(ctx context.Context, tenantID string, providerID string) (TokenSet, error)
	Delete(ctx context.Context, tenantID string, providerID string) error
}

// TokenRecordStore persists ciphertext-only token records for the vault.
type TokenRecordStore interface {
	Upsert(ctx context.Context, record EncryptedTokenRecord) (EncryptedTokenRecord, error)
	Get(ctx context.Context, tenantID string, providerID string) (EncryptedTokenRecord, bool, error)
	Delete(ctx context.Context, tenantID string, providerID string) error
}

// IntegrationStore persists integration rows and owns the per-integration
// sync lock expressed as a conditional status update.
type IntegrationStore interface {
	Get(ctx context.Context, id string) (Integration, error)

	// ListDue returns up to limit integrations with status=active and
	// sync_enabled=true ordered by last_synced_at ascending, nulls first.
	ListDue(ctx context.Context, limit int) ([]Integration, error)

	// AcquireForSync compare-and-sets status active -> syncing. It reports
	// false when the row was not in active state, which callers treat as
	// "another run is in flight, skip".
	AcquireForSync(ctx context.Context, id string) (bool, error)

	// MarkSynced finishes a successful run: status -> active, error cleared,
	// cursor and last_synced_at updated. The cursor only moves forward.
	MarkSynced(ctx context.Context, id string, cursor string, syncedAt time.Time) error

	// MarkError finishes a failed run: status -> error with the message.
	MarkError(ctx context.Context, id string, message string) error

	SetSyncEnabled(ctx context.Context, id string, enabled bool) error

	// Disable soft-retires an integration. Rows are never hard-deleted.
	Disable(ctx context.Context, id string, reason string) error

	// ReclaimStale flips integrations stuck in syncing longer than olderThan
	// back to error so the next tick can retry them. Returns rows reclaimed.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// SyncLogStore appends run attempts and applies the single terminal
// transition running -> completed|failed.
type SyncLogStore interface {
	Start(ctx context.Context, integrationID string, direction SyncDirection) (SyncLogEntry, error)
	Complete(ctx context.Context, id string, recordsSynced int, recordsFailed int) error
	Fail(ctx context.Context, id string, message string) error
	ListByIntegration(ctx context.Context, integrationID string, limit int) ([]SyncLogEntry, error)
}

// ContactLinkStore is the local contact cache keyed by
// (integration, remote object type, remote object id).
type ContactLinkStore interface {
	// Upsert writes by natural key; repeated writes for the same remote
	// object are idempotent.
	Upsert(ctx context.Context, link ContactLink) (ContactLink, error)
	FindByPhone(ctx context.Context, integrationID string, phone string) (ContactLink, bool, error)
	FindByRemote(ctx context.Context, integrationID string, objectType string, objectID string) (ContactLink, bool, error)
}

// CallActivityLinkStore is the outbound dedup guard.
type CallActivityLinkStore interface {
	Exists(ctx context.Context, integrationID string, callID string) (bool, error)
	Create(ctx context.Context, link CallActivityLink) (CallActivityLink, error)
}

// CallStore reads outbound push candidates from the local calls table.
type CallStore interface {
	// ListPushCandidates returns up to limit recently completed calls for
	// the tenant that have no CallActivityLink for the integration yet.
	ListPushCandidates(ctx context.Context, tenantID string, integrationID string, limit int) ([]CallRecord, error)
}
