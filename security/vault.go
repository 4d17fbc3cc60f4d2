package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

var (
	// ErrTokenNotFound means no record exists for the (tenant, provider)
	// pair. This is an expected state, not corruption.
	ErrTokenNotFound = errors.New("security: token record not found")

	// ErrVaultCorrupt means a record exists but cannot be decrypted: data
	// corruption or a key rotation mismatch. Fatal, requires operator
	// intervention; callers must never treat it as absence.
	ErrVaultCorrupt = errors.New("security: token record cannot be decrypted")
)

// DefaultRecordTTL bounds how long an encrypted record may outlive its last
// write. It is a retention safety net, not a refresh mechanism.
const DefaultRecordTTL = 90 * 24 * time.Hour

type VaultOption func(*TokenVault)

func WithRecordTTL(ttl time.Duration) VaultOption {
	return func(v *TokenVault) {
		if ttl > 0 {
			v.recordTTL = ttl
		}
	}
}

func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *TokenVault) {
		if now != nil {
			v.now = now
		}
	}
}

// TokenVault encrypts and persists OAuth token sets per (tenant, provider).
type TokenVault struct {
	cipher    *Cipher
	store     core.TokenRecordStore
	recordTTL time.Duration
	now       func() time.Time
}

func NewTokenVault(cipher *Cipher, store core.TokenRecordStore, opts ...VaultOption) (*TokenVault, error) {
	if cipher == nil {
		return nil, fmt.Errorf("security: cipher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("security: token record store is required")
	}
	vault := &TokenVault{
		cipher:    cipher,
		store:     store,
		recordTTL: DefaultRecordTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(vault)
		}
	}
	return vault, nil
}

// Store encrypts the token set and fully overwrites any prior record for
// the pair. Stale fields are never merged.
func (v *TokenVault) Store(ctx context.Context, tenantID string, providerID string, tokens core.TokenSet) error {
	if v == nil || v.cipher == nil || v.store == nil {
		return fmt.Errorf("security: token vault is not configured")
	}
	tenantID, providerID, err := normalizeVaultKey(tenantID, providerID)
	if err != nil {
		return err
	}

	plaintext, err := encodeTokenSet(tokens)
	if err != nil {
		return err
	}
	ciphertext, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return err
	}

	expiresAt := v.now().Add(v.recordTTL)
	_, err = v.store.Upsert(ctx, core.EncryptedTokenRecord{
		TenantID:   tenantID,
		ProviderID: providerID,
		Ciphertext: ciphertext,
		ExpiresAt:  &expiresAt,
	})
	return err
}

// Get decrypts the stored record. Absence returns ErrTokenNotFound; a
// record that fails to decrypt or decode returns ErrVaultCorrupt.
func (v *TokenVault) Get(ctx context.Context, tenantID string, providerID string) (core.TokenSet, error) {
	if v == nil || v.cipher == nil || v.store == nil {
		return core.TokenSet{}, fmt.Errorf("security: token vault is not configured")
	}
	tenantID, providerID, err := normalizeVaultKey(tenantID, providerID)
	if err != nil {
		return core.TokenSet{}, err
	}

	record, found, err := v.store.Get(ctx, tenantID, providerID)
	if err != nil {
		return core.TokenSet{}, err
	}
	if !found {
		return core.TokenSet{}, fmt.Errorf("%w: tenant %s provider %s", ErrTokenNotFound, tenantID, providerID)
	}

	plaintext, err := v.cipher.Decrypt(record.Ciphertext)
	if err != nil {
		return core.TokenSet{}, fmt.Errorf("%w: tenant %s provider %s", ErrVaultCorrupt, tenantID, providerID)
	}
	tokens, err := decodeTokenSet(plaintext)
	if err != nil {
		return core.TokenSet{}, fmt.Errorf("%w: tenant %s provider %s", ErrVaultCorrupt, tenantID, providerID)
	}
	return tokens, nil
}

// Delete removes the record; deleting an absent record is not an error.
func (v *TokenVault) Delete(ctx context.Context, tenantID string, providerID string) error {
	if v == nil || v.store == nil {
		return fmt.Errorf("security: token vault is not configured")
	}
	tenantID, providerID, err := normalizeVaultKey(tenantID, providerID)
	if err != nil {
		return err
	}
	return v.store.Delete(ctx, tenantID, providerID)
}

func normalizeVaultKey(tenantID string, providerID string) (string, string, error) {
	tenantID = strings.TrimSpace(tenantID)
	providerID = strings.TrimSpace(providerID)
	if tenantID == "" {
		return "", "", fmt.Errorf("security: tenant id is required")
	}
	if providerID == "" {
		return "", "", fmt.Errorf("security: provider id is required")
	}
	return tenantID, providerID, nil
}

var _ core.TokenVault = (*TokenVault)(nil)
