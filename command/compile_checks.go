package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[TriggerSyncMessage]        = (*TriggerSyncCommand)(nil)
	_ gocmd.Commander[RunDueBatchMessage]        = (*RunDueBatchCommand)(nil)
	_ gocmd.Commander[ReclaimStaleMessage]       = (*ReclaimStaleCommand)(nil)
	_ gocmd.Commander[SetSyncEnabledMessage]     = (*SetSyncEnabledCommand)(nil)
	_ gocmd.Commander[DisableIntegrationMessage] = (*DisableIntegrationCommand)(nil)
	_ gocmd.Commander[DeleteCredentialsMessage]  = (*DeleteCredentialsCommand)(nil)
)
