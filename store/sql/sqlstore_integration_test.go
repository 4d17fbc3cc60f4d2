package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	crmmigrations "github.com/goliatone/go-crm-sync/migrations"
	sqlstore "github.com/goliatone/go-crm-sync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-crm-sync-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:crm-sync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = crmmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != crmmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, crmmigrations.WithValidationTargets(crmmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func seedIntegration(t *testing.T, db *bun.DB, status core.IntegrationStatus, syncEnabled bool, lastSyncedAt *time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.NewRaw(
		`INSERT INTO crm_integrations (id, tenant_id, provider_id, status, sync_enabled, sync_direction, sync_cursor, last_synced_at, last_error, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'both', '', ?, '', '{}', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, "tenant-1", "hubspot", string(status), syncEnabled, lastSyncedAt,
	).Exec(context.Background())
	if err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return id
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"crm_integrations",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "crm_integrations" {
		t.Fatalf("expected crm_integrations table, got %q", tableName)
	}
}

func TestIntegrationStoreAcquireForSyncIsExclusive(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()

	id := seedIntegration(t, client.DB(), core.IntegrationStatusActive, true, nil)

	acquired, err := store.AcquireForSync(ctx, id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	again, err := store.AcquireForSync(ctx, id)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if again {
		t.Fatal("expected second acquire to fail while syncing")
	}

	loaded, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != core.IntegrationStatusSyncing {
		t.Fatalf("expected syncing status got %q", loaded.Status)
	}
}

func TestIntegrationStoreListDueOrdersNullsFirst(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()

	recent := time.Now().UTC().Add(-time.Minute)
	older := time.Now().UTC().Add(-time.Hour)
	recentID := seedIntegration(t, client.DB(), core.IntegrationStatusActive, true, &recent)
	neverID := seedIntegration(t, client.DB(), core.IntegrationStatusActive, true, nil)
	olderID := seedIntegration(t, client.DB(), core.IntegrationStatusActive, true, &older)
	seedIntegration(t, client.DB(), core.IntegrationStatusActive, false, nil)
	seedIntegration(t, client.DB(), core.IntegrationStatusError, true, nil)
	seedIntegration(t, client.DB(), core.IntegrationStatusDisabled, true, nil)

	due, err := store.ListDue(ctx, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due integrations got %d", len(due))
	}
	if due[0].ID != neverID {
		t.Fatalf("expected never-synced integration first, got %q", due[0].ID)
	}
	if due[1].ID != olderID || due[2].ID != recentID {
		t.Fatalf("expected oldest-synced before recent, got %q then %q", due[1].ID, due[2].ID)
	}
}

func TestIntegrationStoreMarkSyncedKeepsCursorOnEmpty(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()

	id := seedIntegration(t, client.DB(), core.IntegrationStatusSyncing, true, nil)

	syncedAt := time.Now().UTC()
	if err := store.MarkSynced(ctx, id, "cursor-10", syncedAt); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	loaded, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != core.IntegrationStatusActive || loaded.SyncCursor != "cursor-10" {
		t.Fatalf("unexpected state after mark synced: %+v", loaded)
	}
	if loaded.LastSyncedAt == nil {
		t.Fatal("expected last_synced_at to be set")
	}

	// an empty cursor must not erase the stored high-water mark
	if _, err := store.AcquireForSync(ctx, id); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if err := store.MarkSynced(ctx, id, "", time.Now().UTC()); err != nil {
		t.Fatalf("mark synced empty cursor: %v", err)
	}
	loaded, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.SyncCursor != "cursor-10" {
		t.Fatalf("expected cursor to be retained got %q", loaded.SyncCursor)
	}
}

func TestIntegrationStoreMarkErrorAndReclaimStale(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()

	id := seedIntegration(t, client.DB(), core.IntegrationStatusSyncing, true, nil)
	if err := store.MarkError(ctx, id, "provider rejected token"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	loaded, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != core.IntegrationStatusError || loaded.LastError != "provider rejected token" {
		t.Fatalf("unexpected state after mark error: %+v", loaded)
	}

	staleID := seedIntegration(t, client.DB(), core.IntegrationStatusSyncing, true, nil)
	stale := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := client.DB().NewRaw(
		"UPDATE crm_integrations SET updated_at = ? WHERE id = ?", stale, staleID,
	).Exec(ctx); err != nil {
		t.Fatalf("age integration: %v", err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("reclaim stale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed got %d", reclaimed)
	}
	loaded, err = store.Get(ctx, staleID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != core.IntegrationStatusError {
		t.Fatalf("expected reclaimed integration in error state got %q", loaded.Status)
	}
}

func TestSyncLogStoreSingleTerminalTransition(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SyncLogStore()

	integrationID := seedIntegration(t, client.DB(), core.IntegrationStatusActive, true, nil)
	entry, err := store.Start(ctx, integrationID, core.SyncDirectionBoth)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if entry.Status != core.SyncLogStatusRunning {
		t.Fatalf("expected running entry got %q", entry.Status)
	}

	if err := store.Complete(ctx, entry.ID, 12, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Fail(ctx, entry.ID, "late failure"); err == nil {
		t.Fatal("expected second terminal transition to be rejected")
	}

	entries, err := store.ListByIntegration(ctx, integrationID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry got %d", len(entries))
	}
	got := entries[0]
	if got.Status != core.SyncLogStatusCompleted || got.RecordsSynced != 12 || got.RecordsFailed != 1 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestContactLinkStoreUpsertIsIdempotentByNaturalKey(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ContactLinkStore()

	integrationID := uuid.NewString()
	first, err := store.Upsert(ctx, core.ContactLink{
		IntegrationID:    integrationID,
		RemoteObjectType: "contact",
		RemoteObjectID:   "101",
		DisplayName:      "Ada Lovelace",
		Email:            "ada@example.com",
		Phone:            "+15551234567",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := store.Upsert(ctx, core.ContactLink{
		IntegrationID:    integrationID,
		RemoteObjectType: "contact",
		RemoteObjectID:   "101",
		DisplayName:      "Ada King",
		Email:            "ada@example.com",
		Phone:            "+15551234567",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row id, got %q and %q", first.ID, second.ID)
	}
	if second.DisplayName != "Ada King" {
		t.Fatalf("expected refreshed display name got %q", second.DisplayName)
	}

	count, err := client.DB().NewSelect().Table("crm_contact_links").Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row got %d", count)
	}

	found, ok, err := store.FindByPhone(ctx, integrationID, "+15551234567")
	if err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if !ok || found.RemoteObjectID != "101" {
		t.Fatalf("unexpected phone lookup result %+v (found=%v)", found, ok)
	}

	_, ok, err = store.FindByRemote(ctx, integrationID, "contact", "other")
	if err != nil {
		t.Fatalf("find by remote: %v", err)
	}
	if ok {
		t.Fatal("expected no match for unknown remote id")
	}
}

func TestCallStoresPushCandidatesAndDedup(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	callStore := factory.CallStore()
	linkStore := factory.CallActivityLinkStore()

	integrationID := uuid.NewString()
	seedCall := func(completedAt time.Time) string {
		id := uuid.NewString()
		_, err := client.DB().NewRaw(
			`INSERT INTO calls (id, tenant_id, from_number, to_number, direction, duration_seconds, outcome, notes, completed_at)
			 VALUES (?, 'tenant-1', '+15550000001', '+15551234567', 'outbound', 60, 'connected', '', ?)`,
			id, completedAt,
		).Exec(ctx)
		if err != nil {
			t.Fatalf("seed call: %v", err)
		}
		return id
	}

	oldCall := seedCall(time.Now().UTC().Add(-2 * time.Hour))
	newCall := seedCall(time.Now().UTC().Add(-time.Hour))

	candidates, err := callStore.ListPushCandidates(ctx, "tenant-1", integrationID, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 || candidates[0].ID != oldCall {
		t.Fatalf("expected both calls oldest first, got %+v", candidates)
	}

	exists, err := linkStore.Exists(ctx, integrationID, oldCall)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expected no link yet")
	}

	if _, err := linkStore.Create(ctx, core.CallActivityLink{
		IntegrationID:      integrationID,
		CallID:             oldCall,
		ExternalActivityID: "ext-1",
	}); err != nil {
		t.Fatalf("create link: %v", err)
	}

	exists, err = linkStore.Exists(ctx, integrationID, oldCall)
	if err != nil {
		t.Fatalf("exists after create: %v", err)
	}
	if !exists {
		t.Fatal("expected link to exist")
	}

	candidates, err = callStore.ListPushCandidates(ctx, "tenant-1", integrationID, 10)
	if err != nil {
		t.Fatalf("list candidates after link: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != newCall {
		t.Fatalf("expected only the unpushed call, got %+v", candidates)
	}
}

func TestTokenStoreUpsertOverwritesByTenantProvider(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.TokenRecordStore()

	if _, err := store.Upsert(ctx, core.EncryptedTokenRecord{
		TenantID:   "tenant-1",
		ProviderID: "hubspot",
		Ciphertext: "cipher-v1",
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, core.EncryptedTokenRecord{
		TenantID:   "tenant-1",
		ProviderID: "hubspot",
		Ciphertext: "cipher-v2",
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	record, found, err := store.Get(ctx, "tenant-1", "hubspot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || record.Ciphertext != "cipher-v2" {
		t.Fatalf("expected overwritten ciphertext, got %+v (found=%v)", record, found)
	}

	count, err := client.DB().NewSelect().Table("crm_integration_tokens").Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one token row got %d", count)
	}

	if err := store.Delete(ctx, "tenant-1", "hubspot"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, found, err = store.Get(ctx, "tenant-1", "hubspot")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if found {
		t.Fatal("expected record to be gone")
	}
}
