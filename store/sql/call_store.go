package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CallStore reads the local calls table. Call rows are owned by the calling
// product; this store only selects outbound push candidates.
type CallStore struct {
	db   *bun.DB
	repo repository.Repository[*callRecord]
}

func NewCallStore(db *bun.DB) (*CallStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*callRecord](db, callHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid call repository wiring: %w", err)
		}
	}
	return &CallStore{db: db, repo: repo}, nil
}

// ListPushCandidates selects completed calls for the tenant that have no
// activity link for the integration yet, oldest first so repeated runs
// drain the backlog in order.
func (s *CallStore) ListPushCandidates(ctx context.Context, tenantID string, integrationID string, limit int) ([]core.CallRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: call store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	integrationID = strings.TrimSpace(integrationID)
	if tenantID == "" || integrationID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id and integration id are required")
	}
	if limit <= 0 {
		limit = 25
	}

	records := []*callRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.completed_at IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM crm_call_activity_links AS cal WHERE cal.call_id = ?TableAlias.id AND cal.integration_id = ?)", integrationID).
		OrderExpr("?TableAlias.completed_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.CallRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.CallStore = (*CallStore)(nil)
