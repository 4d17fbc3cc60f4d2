package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore persists ciphertext-only token records. Plaintext token
// material never reaches this layer.
type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
	now  func() time.Time
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *TokenStore) Upsert(ctx context.Context, record core.EncryptedTokenRecord) (core.EncryptedTokenRecord, error) {
	if s == nil || s.db == nil {
		return core.EncryptedTokenRecord{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	tenantID := strings.TrimSpace(record.TenantID)
	providerID := strings.TrimSpace(record.ProviderID)
	if tenantID == "" || providerID == "" {
		return core.EncryptedTokenRecord{}, fmt.Errorf("sqlstore: tenant id and provider id are required")
	}
	if strings.TrimSpace(record.Ciphertext) == "" {
		return core.EncryptedTokenRecord{}, fmt.Errorf("sqlstore: ciphertext is required")
	}

	now := s.now()
	stored := &tokenRecord{}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &tokenRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.tenant_id = ?", tenantID).
			Where("?TableAlias.provider_id = ?", providerID).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			_, err = tx.NewUpdate().
				Model((*tokenRecord)(nil)).
				Set("ciphertext = ?", record.Ciphertext).
				Set("expires_at = ?", record.ExpiresAt).
				Set("updated_at = ?", now).
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			stored = &tokenRecord{
				ID:         existing.ID,
				TenantID:   tenantID,
				ProviderID: providerID,
				Ciphertext: record.Ciphertext,
				ExpiresAt:  cloneTime(record.ExpiresAt),
				CreatedAt:  existing.CreatedAt,
				UpdatedAt:  now,
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			stored = &tokenRecord{
				ID:         uuid.NewString(),
				TenantID:   tenantID,
				ProviderID: providerID,
				Ciphertext: record.Ciphertext,
				ExpiresAt:  cloneTime(record.ExpiresAt),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			_, err = tx.NewInsert().Model(stored).Exec(ctx)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return core.EncryptedTokenRecord{}, err
	}
	return stored.toDomain(), nil
}

func (s *TokenStore) Get(ctx context.Context, tenantID string, providerID string) (core.EncryptedTokenRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.EncryptedTokenRecord{}, false, fmt.Errorf("sqlstore: token store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	providerID = strings.TrimSpace(providerID)
	if tenantID == "" || providerID == "" {
		return core.EncryptedTokenRecord{}, false, fmt.Errorf("sqlstore: tenant id and provider id are required")
	}

	record := &tokenRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EncryptedTokenRecord{}, false, nil
		}
		return core.EncryptedTokenRecord{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *TokenStore) Delete(ctx context.Context, tenantID string, providerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	providerID = strings.TrimSpace(providerID)
	if tenantID == "" || providerID == "" {
		return fmt.Errorf("sqlstore: tenant id and provider id are required")
	}

	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("provider_id = ?", providerID).
		Exec(ctx)
	return err
}

var _ core.TokenRecordStore = (*TokenStore)(nil)
