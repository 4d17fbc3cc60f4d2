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

// ContactLinkStore caches remote CRM objects locally, keyed by
// (integration, remote object type, remote object id).
type ContactLinkStore struct {
	db   *bun.DB
	repo repository.Repository[*contactLinkRecord]
	now  func() time.Time
}

func NewContactLinkStore(db *bun.DB) (*ContactLinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*contactLinkRecord](db, contactLinkHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid contact link repository wiring: %w", err)
		}
	}
	return &ContactLinkStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upsert writes by natural key inside a transaction so a re-pulled contact
// refreshes the existing row instead of duplicating it.
func (s *ContactLinkStore) Upsert(ctx context.Context, link core.ContactLink) (core.ContactLink, error) {
	if s == nil || s.db == nil {
		return core.ContactLink{}, fmt.Errorf("sqlstore: contact link store is not configured")
	}
	integrationID := strings.TrimSpace(link.IntegrationID)
	objectType := strings.TrimSpace(link.RemoteObjectType)
	objectID := strings.TrimSpace(link.RemoteObjectID)
	if integrationID == "" || objectType == "" || objectID == "" {
		return core.ContactLink{}, fmt.Errorf("sqlstore: integration id, remote object type, and remote object id are required")
	}

	syncedAt := link.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = s.now()
	}

	stored := &contactLinkRecord{}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &contactLinkRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.integration_id = ?", integrationID).
			Where("?TableAlias.remote_object_type = ?", objectType).
			Where("?TableAlias.remote_object_id = ?", objectID).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			_, err = tx.NewUpdate().
				Model((*contactLinkRecord)(nil)).
				Set("display_name = ?", strings.TrimSpace(link.DisplayName)).
				Set("email = ?", strings.TrimSpace(link.Email)).
				Set("phone = ?", strings.TrimSpace(link.Phone)).
				Set("metadata = ?", copyAnyMap(link.Metadata)).
				Set("synced_at = ?", syncedAt.UTC()).
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			stored = &contactLinkRecord{
				ID:               existing.ID,
				IntegrationID:    integrationID,
				RemoteObjectType: objectType,
				RemoteObjectID:   objectID,
				DisplayName:      strings.TrimSpace(link.DisplayName),
				Email:            strings.TrimSpace(link.Email),
				Phone:            strings.TrimSpace(link.Phone),
				Metadata:         copyAnyMap(link.Metadata),
				SyncedAt:         syncedAt.UTC(),
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			stored = &contactLinkRecord{
				ID:               uuid.NewString(),
				IntegrationID:    integrationID,
				RemoteObjectType: objectType,
				RemoteObjectID:   objectID,
				DisplayName:      strings.TrimSpace(link.DisplayName),
				Email:            strings.TrimSpace(link.Email),
				Phone:            strings.TrimSpace(link.Phone),
				Metadata:         copyAnyMap(link.Metadata),
				SyncedAt:         syncedAt.UTC(),
			}
			_, err = tx.NewInsert().Model(stored).Exec(ctx)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return core.ContactLink{}, err
	}
	return stored.toDomain(), nil
}

func (s *ContactLinkStore) FindByPhone(ctx context.Context, integrationID string, phone string) (core.ContactLink, bool, error) {
	if s == nil || s.db == nil {
		return core.ContactLink{}, false, fmt.Errorf("sqlstore: contact link store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	phone = strings.TrimSpace(phone)
	if integrationID == "" || phone == "" {
		return core.ContactLink{}, false, nil
	}

	record := &contactLinkRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.integration_id = ?", integrationID).
		Where("?TableAlias.phone = ?", phone).
		OrderExpr("?TableAlias.synced_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ContactLink{}, false, nil
		}
		return core.ContactLink{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *ContactLinkStore) FindByRemote(ctx context.Context, integrationID string, objectType string, objectID string) (core.ContactLink, bool, error) {
	if s == nil || s.db == nil {
		return core.ContactLink{}, false, fmt.Errorf("sqlstore: contact link store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	objectType = strings.TrimSpace(objectType)
	objectID = strings.TrimSpace(objectID)
	if integrationID == "" || objectType == "" || objectID == "" {
		return core.ContactLink{}, false, nil
	}

	record := &contactLinkRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.integration_id = ?", integrationID).
		Where("?TableAlias.remote_object_type = ?", objectType).
		Where("?TableAlias.remote_object_id = ?", objectID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ContactLink{}, false, nil
		}
		return core.ContactLink{}, false, err
	}
	return record.toDomain(), true, nil
}

var _ core.ContactLinkStore = (*ContactLinkStore)(nil)
