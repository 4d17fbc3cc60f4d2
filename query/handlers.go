package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
)

type IntegrationReader interface {
	GetIntegration(ctx context.Context, id string) (core.Integration, error)
}

type SyncLogReader interface {
	ListSyncLog(ctx context.Context, integrationID string, limit int) ([]core.SyncLogEntry, error)
}

type DueIntegrationReader interface {
	ListDue(ctx context.Context, limit int) ([]core.Integration, error)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Integration{}, queryInvalidInputError(err.Error())
	}
	return q.reader.GetIntegration(ctx, strings.TrimSpace(msg.IntegrationID))
}

type ListSyncLogQuery struct {
	reader SyncLogReader
}

func NewListSyncLogQuery(reader SyncLogReader) *ListSyncLogQuery {
	return &ListSyncLogQuery{reader: reader}
}

func (q *ListSyncLogQuery) Query(ctx context.Context, msg ListSyncLogMessage) ([]core.SyncLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync log reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, queryInvalidInputError(err.Error())
	}
	return q.reader.ListSyncLog(ctx, strings.TrimSpace(msg.IntegrationID), msg.Limit)
}

type ListDueQuery struct {
	reader DueIntegrationReader
}

func NewListDueQuery(reader DueIntegrationReader) *ListDueQuery {
	return &ListDueQuery{reader: reader}
}

func (q *ListDueQuery) Query(ctx context.Context, msg ListDueMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: due integration reader is required")
	}
	return q.reader.ListDue(ctx, msg.Limit)
}
