package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/security"
)

func vaultKey(tenantID, providerID string) string {
	return tenantID + "/" + providerID
}

type fakeVault struct {
	tokens     map[string]core.TokenSet
	storeCalls int
	getErr     error
}

func newFakeVault() *fakeVault {
	return &fakeVault{tokens: make(map[string]core.TokenSet)}
}

func (v *fakeVault) Store(_ context.Context, tenantID, providerID string, tokens core.TokenSet) error {
	v.storeCalls++
	v.tokens[vaultKey(tenantID, providerID)] = tokens
	return nil
}

func (v *fakeVault) Get(_ context.Context, tenantID, providerID string) (core.TokenSet, error) {
	if v.getErr != nil {
		return core.TokenSet{}, v.getErr
	}
	tokens, ok := v.tokens[vaultKey(tenantID, providerID)]
	if !ok {
		return core.TokenSet{}, fmt.Errorf("%w: tenant %s provider %s", security.ErrTokenNotFound, tenantID, providerID)
	}
	return tokens, nil
}

func (v *fakeVault) Delete(_ context.Context, tenantID, providerID string) error {
	delete(v.tokens, vaultKey(tenantID, providerID))
	return nil
}

type fakeProvider struct {
	id                   string
	refreshFn            func(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings) (core.TokenSet, error)
	listContactsFn       func(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, req core.ContactPageRequest) (core.ContactPage, error)
	searchByPhoneFn      func(ctx context.Context, phone string) (*core.RemoteContact, error)
	createCallActivityFn func(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, activity core.CallActivity) (string, error)

	listRequests    []core.ContactPageRequest
	createdCalls    []core.CallActivity
	refreshAttempts int
}

func (p *fakeProvider) ID() string {
	if p.id == "" {
		return "fake"
	}
	return p.id
}

func (p *fakeProvider) ExchangeCode(context.Context, core.ExchangeCodeRequest) (core.TokenSet, error) {
	return core.TokenSet{}, fmt.Errorf("fake: exchange not wired")
}

func (p *fakeProvider) Refresh(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings) (core.TokenSet, error) {
	p.refreshAttempts++
	if p.refreshFn != nil {
		return p.refreshFn(ctx, tokens, settings)
	}
	return tokens, nil
}

func (p *fakeProvider) ListContacts(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, req core.ContactPageRequest) (core.ContactPage, error) {
	p.listRequests = append(p.listRequests, req)
	if p.listContactsFn != nil {
		return p.listContactsFn(ctx, tokens, settings, req)
	}
	return core.ContactPage{}, nil
}

func (p *fakeProvider) SearchContactByPhone(ctx context.Context, _ core.TokenSet, _ core.ProviderSettings, phone string) (*core.RemoteContact, error) {
	if p.searchByPhoneFn != nil {
		return p.searchByPhoneFn(ctx, phone)
	}
	return nil, nil
}

func (p *fakeProvider) SearchContactByEmail(context.Context, core.TokenSet, core.ProviderSettings, string) (*core.RemoteContact, error) {
	return nil, nil
}

func (p *fakeProvider) CreateCallActivity(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, activity core.CallActivity) (string, error) {
	if p.createCallActivityFn != nil {
		id, err := p.createCallActivityFn(ctx, tokens, settings, activity)
		if err != nil {
			return "", err
		}
		p.createdCalls = append(p.createdCalls, activity)
		return id, nil
	}
	p.createdCalls = append(p.createdCalls, activity)
	return fmt.Sprintf("activity-%d", len(p.createdCalls)), nil
}

type fakeIntegrationStore struct {
	integrations map[string]core.Integration
	reclaimed    int
	reclaimCalls int
	listDueErr   error

	// listDueSnapshot, when set, is returned as-is so tests can model the
	// race where a row is acquired between the list and the CAS.
	listDueSnapshot []core.Integration
}

func newFakeIntegrationStore(integrations ...core.Integration) *fakeIntegrationStore {
	store := &fakeIntegrationStore{integrations: make(map[string]core.Integration)}
	for _, integration := range integrations {
		store.integrations[integration.ID] = integration
	}
	return store
}

func (s *fakeIntegrationStore) Get(_ context.Context, id string) (core.Integration, error) {
	integration, ok := s.integrations[id]
	if !ok {
		return core.Integration{}, fmt.Errorf("fake: integration not found: %s", id)
	}
	return integration, nil
}

func (s *fakeIntegrationStore) ListDue(_ context.Context, limit int) ([]core.Integration, error) {
	if s.listDueErr != nil {
		return nil, s.listDueErr
	}
	if s.listDueSnapshot != nil {
		return s.listDueSnapshot, nil
	}
	var due []core.Integration
	for _, integration := range s.integrations {
		if integration.Status == core.IntegrationStatusActive && integration.SyncEnabled {
			due = append(due, integration)
		}
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *fakeIntegrationStore) AcquireForSync(_ context.Context, id string) (bool, error) {
	integration, ok := s.integrations[id]
	if !ok || integration.Status != core.IntegrationStatusActive {
		return false, nil
	}
	integration.Status = core.IntegrationStatusSyncing
	s.integrations[id] = integration
	return true, nil
}

func (s *fakeIntegrationStore) MarkSynced(_ context.Context, id string, cursor string, syncedAt time.Time) error {
	integration, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("fake: integration not found: %s", id)
	}
	integration.Status = core.IntegrationStatusActive
	integration.LastError = ""
	if strings.TrimSpace(cursor) != "" {
		integration.SyncCursor = cursor
	}
	integration.LastSyncedAt = &syncedAt
	s.integrations[id] = integration
	return nil
}

func (s *fakeIntegrationStore) MarkError(_ context.Context, id string, message string) error {
	integration, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("fake: integration not found: %s", id)
	}
	integration.Status = core.IntegrationStatusError
	integration.LastError = message
	s.integrations[id] = integration
	return nil
}

func (s *fakeIntegrationStore) SetSyncEnabled(_ context.Context, id string, enabled bool) error {
	integration, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("fake: integration not found: %s", id)
	}
	integration.SyncEnabled = enabled
	s.integrations[id] = integration
	return nil
}

func (s *fakeIntegrationStore) Disable(_ context.Context, id string, reason string) error {
	integration, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("fake: integration not found: %s", id)
	}
	integration.Status = core.IntegrationStatusDisabled
	integration.SyncEnabled = false
	integration.LastError = reason
	s.integrations[id] = integration
	return nil
}

func (s *fakeIntegrationStore) ReclaimStale(_ context.Context, _ time.Duration) (int, error) {
	s.reclaimCalls++
	return s.reclaimed, nil
}

type fakeSyncLogStore struct {
	entries []core.SyncLogEntry
	nextID  int
}

func (s *fakeSyncLogStore) Start(_ context.Context, integrationID string, direction core.SyncDirection) (core.SyncLogEntry, error) {
	s.nextID++
	entry := core.SyncLogEntry{
		ID:            fmt.Sprintf("log-%d", s.nextID),
		IntegrationID: integrationID,
		Direction:     direction,
		Status:        core.SyncLogStatusRunning,
		StartedAt:     time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *fakeSyncLogStore) Complete(_ context.Context, id string, recordsSynced, recordsFailed int) error {
	return s.finish(id, func(entry *core.SyncLogEntry) {
		entry.Status = core.SyncLogStatusCompleted
		entry.RecordsSynced = recordsSynced
		entry.RecordsFailed = recordsFailed
	})
}

func (s *fakeSyncLogStore) Fail(_ context.Context, id string, message string) error {
	return s.finish(id, func(entry *core.SyncLogEntry) {
		entry.Status = core.SyncLogStatusFailed
		entry.Error = message
	})
}

func (s *fakeSyncLogStore) finish(id string, apply func(entry *core.SyncLogEntry)) error {
	for i := range s.entries {
		if s.entries[i].ID != id {
			continue
		}
		if s.entries[i].Status != core.SyncLogStatusRunning {
			return fmt.Errorf("fake: sync log %s already terminal", id)
		}
		apply(&s.entries[i])
		now := time.Now().UTC()
		s.entries[i].CompletedAt = &now
		return nil
	}
	return fmt.Errorf("fake: sync log not found: %s", id)
}

func (s *fakeSyncLogStore) ListByIntegration(_ context.Context, integrationID string, _ int) ([]core.SyncLogEntry, error) {
	var out []core.SyncLogEntry
	for _, entry := range s.entries {
		if entry.IntegrationID == integrationID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *fakeSyncLogStore) last() core.SyncLogEntry {
	if len(s.entries) == 0 {
		return core.SyncLogEntry{}
	}
	return s.entries[len(s.entries)-1]
}

type fakeContactLinkStore struct {
	links     map[string]core.ContactLink
	upsertErr func(link core.ContactLink) error
}

func newFakeContactLinkStore() *fakeContactLinkStore {
	return &fakeContactLinkStore{links: make(map[string]core.ContactLink)}
}

func contactLinkKey(integrationID, objectType, objectID string) string {
	return integrationID + "/" + objectType + "/" + objectID
}

func (s *fakeContactLinkStore) Upsert(_ context.Context, link core.ContactLink) (core.ContactLink, error) {
	if s.upsertErr != nil {
		if err := s.upsertErr(link); err != nil {
			return core.ContactLink{}, err
		}
	}
	key := contactLinkKey(link.IntegrationID, link.RemoteObjectType, link.RemoteObjectID)
	if existing, ok := s.links[key]; ok {
		link.ID = existing.ID
	} else {
		link.ID = fmt.Sprintf("link-%d", len(s.links)+1)
	}
	s.links[key] = link
	return link, nil
}

func (s *fakeContactLinkStore) FindByPhone(_ context.Context, integrationID, phone string) (core.ContactLink, bool, error) {
	if strings.TrimSpace(phone) == "" {
		return core.ContactLink{}, false, nil
	}
	for _, link := range s.links {
		if link.IntegrationID == integrationID && link.Phone == phone {
			return link, true, nil
		}
	}
	return core.ContactLink{}, false, nil
}

func (s *fakeContactLinkStore) FindByRemote(_ context.Context, integrationID, objectType, objectID string) (core.ContactLink, bool, error) {
	link, ok := s.links[contactLinkKey(integrationID, objectType, objectID)]
	return link, ok, nil
}

type fakeCallActivityLinkStore struct {
	links map[string]core.CallActivityLink
}

func newFakeCallActivityLinkStore() *fakeCallActivityLinkStore {
	return &fakeCallActivityLinkStore{links: make(map[string]core.CallActivityLink)}
}

func callLinkKey(integrationID, callID string) string {
	return integrationID + "/" + callID
}

func (s *fakeCallActivityLinkStore) Exists(_ context.Context, integrationID, callID string) (bool, error) {
	_, ok := s.links[callLinkKey(integrationID, callID)]
	return ok, nil
}

func (s *fakeCallActivityLinkStore) Create(_ context.Context, link core.CallActivityLink) (core.CallActivityLink, error) {
	key := callLinkKey(link.IntegrationID, link.CallID)
	if _, exists := s.links[key]; exists {
		return core.CallActivityLink{}, fmt.Errorf("fake: duplicate call activity link: %s", key)
	}
	link.ID = fmt.Sprintf("call-link-%d", len(s.links)+1)
	link.CreatedAt = time.Now().UTC()
	s.links[key] = link
	return link, nil
}

type fakeCallStore struct {
	calls []core.CallRecord
}

func (s *fakeCallStore) ListPushCandidates(_ context.Context, tenantID, _ string, limit int) ([]core.CallRecord, error) {
	var out []core.CallRecord
	for _, call := range s.calls {
		if call.TenantID != tenantID {
			continue
		}
		out = append(out, call)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
