package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetIntegration = "crmsync.query.integration.get"
	TypeListSyncLog    = "crmsync.query.sync_log.list"
	TypeListDue        = "crmsync.query.integration.list_due"
)

type GetIntegrationMessage struct {
	IntegrationID string
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("query: integration id is required")
	}
	return nil
}

// ListSyncLogMessage reads the run history audit trail, newest first.
type ListSyncLogMessage struct {
	IntegrationID string
	Limit         int
}

func (ListSyncLogMessage) Type() string { return TypeListSyncLog }

func (m ListSyncLogMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("query: integration id is required")
	}
	return nil
}

// ListDueMessage previews which integrations the next tick would pick up.
type ListDueMessage struct {
	Limit int
}

func (ListDueMessage) Type() string { return TypeListDue }
