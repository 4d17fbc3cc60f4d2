package security

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

const testVaultSecret = "unit-test-vault-secret-0123456789abcdef"

type memoryTokenRecordStore struct {
	records map[string]core.EncryptedTokenRecord
}

func newMemoryTokenRecordStore() *memoryTokenRecordStore {
	return &memoryTokenRecordStore{records: map[string]core.EncryptedTokenRecord{}}
}

func (s *memoryTokenRecordStore) key(tenantID, providerID string) string {
	return tenantID + "/" + providerID
}

func (s *memoryTokenRecordStore) Upsert(_ context.Context, record core.EncryptedTokenRecord) (core.EncryptedTokenRecord, error) {
	s.records[s.key(record.TenantID, record.ProviderID)] = record
	return record, nil
}

func (s *memoryTokenRecordStore) Get(_ context.Context, tenantID, providerID string) (core.EncryptedTokenRecord, bool, error) {
	record, ok := s.records[s.key(tenantID, providerID)]
	return record, ok, nil
}

func (s *memoryTokenRecordStore) Delete(_ context.Context, tenantID, providerID string) error {
	delete(s.records, s.key(tenantID, providerID))
	return nil
}

func newTestVault(t *testing.T) (*TokenVault, *memoryTokenRecordStore) {
	t.Helper()
	cipher, err := NewCipher(testVaultSecret)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store := newMemoryTokenRecordStore()
	vault, err := NewTokenVault(cipher, store)
	if err != nil {
		t.Fatalf("new token vault: %v", err)
	}
	return vault, store
}

func TestTokenVaultRoundTrip(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	expiresAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	original := core.TokenSet{
		AccessToken:  "access-token-value",
		RefreshToken: "refresh-token-value",
		TokenType:    "Bearer",
		Scope:        "contacts.read contacts.write",
		ExpiresAt:    &expiresAt,
	}

	if err := vault.Store(ctx, "tenant-1", "hubspot", original); err != nil {
		t.Fatalf("store tokens: %v", err)
	}

	loaded, err := vault.Get(ctx, "tenant-1", "hubspot")
	if err != nil {
		t.Fatalf("get tokens: %v", err)
	}
	if loaded.AccessToken != original.AccessToken {
		t.Fatalf("expected access token %q got %q", original.AccessToken, loaded.AccessToken)
	}
	if loaded.RefreshToken != original.RefreshToken {
		t.Fatalf("expected refresh token %q got %q", original.RefreshToken, loaded.RefreshToken)
	}
	if loaded.TokenType != original.TokenType {
		t.Fatalf("expected token type %q got %q", original.TokenType, loaded.TokenType)
	}
	if loaded.Scope != original.Scope {
		t.Fatalf("expected scope %q got %q", original.Scope, loaded.Scope)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %v got %v", expiresAt, loaded.ExpiresAt)
	}
}

func TestTokenVaultCiphertextHidesPlaintext(t *testing.T) {
	vault, store := newTestVault(t)
	ctx := context.Background()

	tokens := core.TokenSet{
		AccessToken:  "super-secret-access-token-value",
		RefreshToken: "super-secret-refresh-token-value",
	}
	if err := vault.Store(ctx, "tenant-1", "hubspot", tokens); err != nil {
		t.Fatalf("store tokens: %v", err)
	}

	record, ok := store.records["tenant-1/hubspot"]
	if !ok {
		t.Fatal("expected record to be persisted")
	}
	if strings.Contains(record.Ciphertext, tokens.AccessToken) {
		t.Fatal("ciphertext must not contain the access token")
	}
	if strings.Contains(record.Ciphertext, tokens.RefreshToken) {
		t.Fatal("ciphertext must not contain the refresh token")
	}
	raw, err := base64.StdEncoding.DecodeString(record.Ciphertext)
	if err != nil {
		t.Fatalf("ciphertext should be base64 encoded: %v", err)
	}
	if strings.Contains(string(raw), tokens.AccessToken) {
		t.Fatal("decoded ciphertext must not contain the access token")
	}
}

func TestTokenVaultStoreOverwritesPriorRecord(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	first := core.TokenSet{AccessToken: "first-access", RefreshToken: "first-refresh"}
	if err := vault.Store(ctx, "tenant-1", "salesforce", first); err != nil {
		t.Fatalf("store first: %v", err)
	}
	second := core.TokenSet{AccessToken: "second-access"}
	if err := vault.Store(ctx, "tenant-1", "salesforce", second); err != nil {
		t.Fatalf("store second: %v", err)
	}

	loaded, err := vault.Get(ctx, "tenant-1", "salesforce")
	if err != nil {
		t.Fatalf("get tokens: %v", err)
	}
	if loaded.AccessToken != "second-access" {
		t.Fatalf("expected overwritten access token got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "" {
		t.Fatalf("expected refresh token to be cleared got %q", loaded.RefreshToken)
	}
}

func TestTokenVaultGetMissingRecord(t *testing.T) {
	vault, _ := newTestVault(t)

	_, err := vault.Get(context.Background(), "tenant-1", "hubspot")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound got %v", err)
	}
}

func TestTokenVaultGetCorruptRecord(t *testing.T) {
	vault, store := newTestVault(t)
	ctx := context.Background()

	if err := vault.Store(ctx, "tenant-1", "hubspot", core.TokenSet{AccessToken: "access"}); err != nil {
		t.Fatalf("store tokens: %v", err)
	}

	record := store.records["tenant-1/hubspot"]
	record.Ciphertext = base64.StdEncoding.EncodeToString([]byte("garbage-ciphertext-bytes"))
	store.records["tenant-1/hubspot"] = record

	_, err := vault.Get(ctx, "tenant-1", "hubspot")
	if !errors.Is(err, ErrVaultCorrupt) {
		t.Fatalf("expected ErrVaultCorrupt got %v", err)
	}
	if errors.Is(err, ErrTokenNotFound) {
		t.Fatal("corrupt record must not be reported as missing")
	}
}

func TestTokenVaultGetWrongKey(t *testing.T) {
	vault, store := newTestVault(t)
	ctx := context.Background()

	if err := vault.Store(ctx, "tenant-1", "hubspot", core.TokenSet{AccessToken: "access"}); err != nil {
		t.Fatalf("store tokens: %v", err)
	}

	otherCipher, err := NewCipher("a-completely-different-secret-0123456789")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	otherVault, err := NewTokenVault(otherCipher, store)
	if err != nil {
		t.Fatalf("new token vault: %v", err)
	}

	if _, err := otherVault.Get(ctx, "tenant-1", "hubspot"); !errors.Is(err, ErrVaultCorrupt) {
		t.Fatalf("expected ErrVaultCorrupt with mismatched key got %v", err)
	}
}

func TestTokenVaultDeleteIsIdempotent(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	if err := vault.Delete(ctx, "tenant-1", "hubspot"); err != nil {
		t.Fatalf("delete absent record: %v", err)
	}

	if err := vault.Store(ctx, "tenant-1", "hubspot", core.TokenSet{AccessToken: "access"}); err != nil {
		t.Fatalf("store tokens: %v", err)
	}
	if err := vault.Delete(ctx, "tenant-1", "hubspot"); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := vault.Get(ctx, "tenant-1", "hubspot"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after delete got %v", err)
	}
}

func TestTokenVaultRequiresTenantAndProvider(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	if err := vault.Store(ctx, "  ", "hubspot", core.TokenSet{AccessToken: "access"}); err == nil {
		t.Fatal("expected error for blank tenant id")
	}
	if err := vault.Store(ctx, "tenant-1", "", core.TokenSet{AccessToken: "access"}); err == nil {
		t.Fatal("expected error for blank provider id")
	}
	if _, err := vault.Get(ctx, "", "hubspot"); err == nil {
		t.Fatal("expected error for blank tenant id on get")
	}
}

func TestTokenVaultRecordTTL(t *testing.T) {
	cipher, err := NewCipher(testVaultSecret)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store := newMemoryTokenRecordStore()
	now := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	vault, err := NewTokenVault(cipher, store,
		WithRecordTTL(24*time.Hour),
		WithVaultClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new token vault: %v", err)
	}

	if err := vault.Store(context.Background(), "tenant-1", "hubspot", core.TokenSet{AccessToken: "access"}); err != nil {
		t.Fatalf("store tokens: %v", err)
	}
	record := store.records["tenant-1/hubspot"]
	if record.ExpiresAt == nil || !record.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected record expiry %v got %v", now.Add(24*time.Hour), record.ExpiresAt)
	}
}
