package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CallActivityLinkStore is the outbound dedup guard: one row per
// (integration, call) that has been pushed.
type CallActivityLinkStore struct {
	db   *bun.DB
	repo repository.Repository[*callActivityLinkRecord]
	now  func() time.Time
}

func NewCallActivityLinkStore(db *bun.DB) (*CallActivityLinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*callActivityLinkRecord](db, callActivityLinkHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid call activity link repository wiring: %w", err)
		}
	}
	return &CallActivityLinkStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *CallActivityLinkStore) Exists(ctx context.Context, integrationID string, callID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: call activity link store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	callID = strings.TrimSpace(callID)
	if integrationID == "" || callID == "" {
		return false, fmt.Errorf("sqlstore: integration id and call id are required")
	}

	count, err := s.db.NewSelect().
		Model((*callActivityLinkRecord)(nil)).
		Where("?TableAlias.integration_id = ?", integrationID).
		Where("?TableAlias.call_id = ?", callID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *CallActivityLinkStore) Create(ctx context.Context, link core.CallActivityLink) (core.CallActivityLink, error) {
	if s == nil || s.db == nil {
		return core.CallActivityLink{}, fmt.Errorf("sqlstore: call activity link store is not configured")
	}
	integrationID := strings.TrimSpace(link.IntegrationID)
	callID := strings.TrimSpace(link.CallID)
	externalID := strings.TrimSpace(link.ExternalActivityID)
	if integrationID == "" || callID == "" {
		return core.CallActivityLink{}, fmt.Errorf("sqlstore: integration id and call id are required")
	}
	if externalID == "" {
		return core.CallActivityLink{}, fmt.Errorf("sqlstore: external activity id is required")
	}

	record := &callActivityLinkRecord{
		ID:                 uuid.NewString(),
		IntegrationID:      integrationID,
		CallID:             callID,
		ExternalActivityID: externalID,
		CreatedAt:          s.now(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.CallActivityLink{}, err
	}
	return record.toDomain(), nil
}

var _ core.CallActivityLinkStore = (*CallActivityLinkStore)(nil)
