package core

import (
	"strings"
	"time"
)

type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusSyncing  IntegrationStatus = "syncing"
	IntegrationStatusError    IntegrationStatus = "error"
	IntegrationStatusDisabled IntegrationStatus = "disabled"
)

func (s IntegrationStatus) IsValid() bool {
	switch s {
	case IntegrationStatusActive, IntegrationStatusSyncing, IntegrationStatusError, IntegrationStatusDisabled:
		return true
	default:
		return false
	}
}

type SyncDirection string

const (
	SyncDirectionInbound  SyncDirection = "inbound"
	SyncDirectionOutbound SyncDirection = "outbound"
	SyncDirectionBoth     SyncDirection = "both"
)

func (d SyncDirection) IsValid() bool {
	switch d {
	case SyncDirectionInbound, SyncDirectionOutbound, SyncDirectionBoth:
		return true
	default:
		return false
	}
}

func (d SyncDirection) Inbound() bool {
	return d == SyncDirectionInbound || d == SyncDirectionBoth
}

func (d SyncDirection) Outbound() bool {
	return d == SyncDirectionOutbound || d == SyncDirectionBoth
}

// Integration is a tenant's connection to one CRM provider instance.
// Integrations are created by the external connect flow and are never
// hard-deleted, only disabled.
type Integration struct {
	ID           string
	TenantID     string
	ProviderID   string
	Status       IntegrationStatus
	SyncEnabled  bool
	Direction    SyncDirection
	SyncCursor   string
	LastSyncedAt *time.Time
	LastError    string
	Settings     ProviderSettings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProviderSettings holds provider-specific connection settings, e.g. the
// Salesforce instance URL captured during the connect flow.
type ProviderSettings map[string]any

func (s ProviderSettings) String(key string) string {
	if len(s) == 0 {
		return ""
	}
	value, ok := s[key]
	if !ok {
		return ""
	}
	typed, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(typed)
}

func (s ProviderSettings) Clone() ProviderSettings {
	if len(s) == 0 {
		return ProviderSettings{}
	}
	out := make(ProviderSettings, len(s))
	for key, value := range s {
		out[key] = value
	}
	return out
}

// TokenSet is the decrypted OAuth credential for one (tenant, provider) pair.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time
}

func (t TokenSet) HasAccessToken() bool {
	return strings.TrimSpace(t.AccessToken) != ""
}

func (t TokenSet) HasRefreshToken() bool {
	return strings.TrimSpace(t.RefreshToken) != ""
}

// EncryptedTokenRecord is the persisted, ciphertext-only form of a TokenSet.
// ExpiresAt is a retention safety net, not a correctness mechanism.
type EncryptedTokenRecord struct {
	TenantID   string
	ProviderID string
	Ciphertext string
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SyncLogStatus string

const (
	SyncLogStatusRunning   SyncLogStatus = "running"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

// SyncLogEntry is one append-only row per run attempt. A row transitions
// running -> completed|failed exactly once and is never touched again.
type SyncLogEntry struct {
	ID            string
	IntegrationID string
	Direction     SyncDirection
	Status        SyncLogStatus
	RecordsSynced int
	RecordsFailed int
	StartedAt     time.Time
	CompletedAt   *time.Time
	Error         string
}

// ContactLink is the local cache row for one remote CRM object, keyed by
// (integration, remote object type, remote object id). It doubles as the
// identity map used to resolve outbound association targets.
type ContactLink struct {
	ID               string
	IntegrationID    string
	RemoteObjectType string
	RemoteObjectID   string
	DisplayName      string
	Email            string
	Phone            string
	Metadata         map[string]any
	SyncedAt         time.Time
}

// CallActivityLink marks a local call as already pushed to one integration.
// Row existence is the sole dedup guard against re-pushing the same call.
type CallActivityLink struct {
	ID                 string
	IntegrationID      string
	CallID             string
	ExternalActivityID string
	CreatedAt          time.Time
}

// CallRecord is the slice of the local calls table the outbound push reads.
type CallRecord struct {
	ID              string
	TenantID        string
	FromNumber      string
	ToNumber        string
	Direction       string
	DurationSeconds int
	Outcome         string
	Notes           string
	CompletedAt     time.Time
}

// RemoteContact is a provider-normalized contact or lead.
type RemoteContact struct {
	ObjectType string
	ObjectID   string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	UpdatedAt  *time.Time
	Properties map[string]any
}

func (c RemoteContact) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name != "" {
		return name
	}
	return strings.TrimSpace(c.Email)
}

// ContactPageRequest asks a provider for one page of changed contacts.
// Cursor and ModifiedSince are provider-interpreted: HubSpot consumes the
// opaque cursor, Salesforce consumes the timestamp watermark.
type ContactPageRequest struct {
	Limit         int
	Cursor        string
	ModifiedSince *time.Time
}

type ContactPage struct {
	Contacts   []RemoteContact
	NextCursor string
	HasMore    bool
}

// CallActivity is the provider-agnostic payload for one outbound call push.
type CallActivity struct {
	Subject         string
	Body            string
	Direction       string
	DurationSeconds int
	FromNumber      string
	ToNumber        string
	OccurredAt      time.Time
	ContactObjectID string
}

// ExchangeCodeRequest completes the provider authorization-code exchange.
type ExchangeCodeRequest struct {
	Code        string
	RedirectURI string
}
