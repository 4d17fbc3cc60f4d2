package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-crm-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
	now  func() time.Time
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: integration id is required")
	}

	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Integration{}, goerrors.New(
				fmt.Sprintf("sqlstore: integration %q not found", id),
				goerrors.CategoryNotFound,
			).WithTextCode(core.SyncErrorNotFound)
		}
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) ListDue(ctx context.Context, limit int) ([]core.Integration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if limit <= 0 {
		limit = 25
	}

	records := []*integrationRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.IntegrationStatusActive)).
		Where("?TableAlias.sync_enabled = ?", true).
		OrderExpr("?TableAlias.last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// AcquireForSync is the per-integration run lock: a conditional update that
// only succeeds when the row is still in active state. Zero rows affected
// means another run holds the integration.
func (s *IntegrationStore) AcquireForSync(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: integration id is required")
	}

	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(core.IntegrationStatusSyncing)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("status = ?", string(core.IntegrationStatusActive)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *IntegrationStore) MarkSynced(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}
	if syncedAt.IsZero() {
		syncedAt = s.now()
	}

	query := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(core.IntegrationStatusActive)).
		Set("last_error = ?", "").
		Set("last_synced_at = ?", syncedAt.UTC()).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id)
	// an empty cursor means the run had nothing new; the stored cursor is
	// the high-water mark and never moves backwards
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		query = query.Set("sync_cursor = ?", cursor)
	}

	_, err := query.Exec(ctx)
	return err
}

func (s *IntegrationStore) MarkError(ctx context.Context, id string, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}

	_, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(core.IntegrationStatusError)).
		Set("last_error = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *IntegrationStore) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}

	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("sync_enabled = ?", enabled).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return goerrors.New(
			fmt.Sprintf("sqlstore: integration %q not found", id),
			goerrors.CategoryNotFound,
		).WithTextCode(core.SyncErrorNotFound)
	}
	return nil
}

func (s *IntegrationStore) Disable(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}

	_, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(core.IntegrationStatusDisabled)).
		Set("sync_enabled = ?", false).
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ReclaimStale recovers integrations abandoned mid-run, e.g. after a crash,
// so the lock does not wedge them in syncing forever.
func (s *IntegrationStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("sqlstore: stale threshold must be positive")
	}

	cutoff := s.now().Add(-olderThan)
	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(core.IntegrationStatusError)).
		Set("last_error = ?", "sync run abandoned; reclaimed by stale sweep").
		Set("updated_at = ?", s.now()).
		Where("status = ?", string(core.IntegrationStatusSyncing)).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

var _ core.IntegrationStore = (*IntegrationStore)(nil)
