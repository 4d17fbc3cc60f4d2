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

// SyncLogStore appends one row per run attempt. Rows transition
// running -> completed|failed exactly once; the terminal update is
// conditional on the row still being in running state.
type SyncLogStore struct {
	db   *bun.DB
	repo repository.Repository[*syncLogRecord]
	now  func() time.Time
}

func NewSyncLogStore(db *bun.DB) (*SyncLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncLogRecord](db, syncLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync log repository wiring: %w", err)
		}
	}
	return &SyncLogStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SyncLogStore) Start(ctx context.Context, integrationID string, direction core.SyncDirection) (core.SyncLogEntry, error) {
	if s == nil || s.db == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: integration id is required")
	}
	if !direction.IsValid() {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: invalid sync direction %q", direction)
	}

	record := &syncLogRecord{
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		Direction:     string(direction),
		Status:        string(core.SyncLogStatusRunning),
		StartedAt:     s.now(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.SyncLogEntry{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncLogStore) Complete(ctx context.Context, id string, recordsSynced int, recordsFailed int) error {
	return s.finish(ctx, id, core.SyncLogStatusCompleted, recordsSynced, recordsFailed, "")
}

func (s *SyncLogStore) Fail(ctx context.Context, id string, message string) error {
	return s.finish(ctx, id, core.SyncLogStatusFailed, 0, 0, message)
}

func (s *SyncLogStore) finish(ctx context.Context, id string, status core.SyncLogStatus, recordsSynced int, recordsFailed int, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: sync log id is required")
	}

	result, err := s.db.NewUpdate().
		Model((*syncLogRecord)(nil)).
		Set("status = ?", string(status)).
		Set("records_synced = ?", recordsSynced).
		Set("records_failed = ?", recordsFailed).
		Set("completed_at = ?", s.now()).
		Set("error = ?", strings.TrimSpace(message)).
		Where("id = ?", id).
		Where("status = ?", string(core.SyncLogStatusRunning)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: sync log %q is not running; terminal transitions happen once", id)
	}
	return nil
}

func (s *SyncLogStore) ListByIntegration(ctx context.Context, integrationID string, limit int) ([]core.SyncLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, fmt.Errorf("sqlstore: integration id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	records := []*syncLogRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.integration_id = ?", integrationID).
		OrderExpr("?TableAlias.started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.SyncLogEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.SyncLogStore = (*SyncLogStore)(nil)
