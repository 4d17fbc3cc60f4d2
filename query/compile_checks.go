package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-crm-sync/core"
)

var (
	_ gocmd.Querier[GetIntegrationMessage, core.Integration] = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListSyncLogMessage, []core.SyncLogEntry] = (*ListSyncLogQuery)(nil)
	_ gocmd.Querier[ListDueMessage, []core.Integration]      = (*ListDueQuery)(nil)
)
