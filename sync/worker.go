package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/security"
)

// WorkerDependencies carries the collaborators one worker run needs.
type WorkerDependencies struct {
	Registry          core.Registry
	Vault             core.TokenVault
	Integrations      core.IntegrationStore
	SyncLogs          core.SyncLogStore
	ContactLinks      core.ContactLinkStore
	CallActivityLinks core.CallActivityLinkStore
	Calls             core.CallStore
}

// Worker drives one integration through a sync run: acquire the row lock,
// open a log entry, load and refresh credentials, pull the inbound delta,
// push outbound calls, and finalize status.
type Worker struct {
	deps   WorkerDependencies
	config core.Config
	logger core.Logger
	now    func() time.Time
}

// RunResult reports one worker invocation. Skipped means the CAS found the
// integration already mid-run and nothing happened.
type RunResult struct {
	IntegrationID string
	Skipped       bool
	RecordsSynced int
	RecordsFailed int
}

func NewWorker(deps WorkerDependencies, config core.Config, logger core.Logger) (*Worker, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("sync: provider registry is required")
	}
	if deps.Vault == nil {
		return nil, fmt.Errorf("sync: token vault is required")
	}
	if deps.Integrations == nil {
		return nil, fmt.Errorf("sync: integration store is required")
	}
	if deps.SyncLogs == nil {
		return nil, fmt.Errorf("sync: sync log store is required")
	}
	if deps.ContactLinks == nil {
		return nil, fmt.Errorf("sync: contact link store is required")
	}
	if deps.CallActivityLinks == nil {
		return nil, fmt.Errorf("sync: call activity link store is required")
	}
	if deps.Calls == nil {
		return nil, fmt.Errorf("sync: call store is required")
	}
	return &Worker{
		deps:   deps,
		config: config,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the worker clock, used by tests.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	if w != nil && now != nil {
		w.now = now
	}
	return w
}

// Run executes the state machine for one integration. A returned error
// means the run failed and the integration was marked error; partial
// progress already committed stays committed because every downstream
// write is idempotent.
func (w *Worker) Run(ctx context.Context, integration core.Integration) (RunResult, error) {
	result := RunResult{IntegrationID: integration.ID}
	if w == nil {
		return result, fmt.Errorf("sync: worker is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	acquired, err := w.deps.Integrations.AcquireForSync(ctx, integration.ID)
	if err != nil {
		return result, err
	}
	if !acquired {
		result.Skipped = true
		w.logDebug("sync run skipped, integration already in flight",
			"integration_id", integration.ID)
		return result, nil
	}

	if w.config.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.RunBudget)
		defer cancel()
	}

	runStartedAt := w.now()
	logEntry, err := w.deps.SyncLogs.Start(ctx, integration.ID, integration.Direction)
	if err != nil {
		w.finalizeFailure(integration.ID, "", err)
		return result, err
	}

	synced, failed, cursor, runErr := w.execute(ctx, integration, runStartedAt)
	result.RecordsSynced = synced
	result.RecordsFailed = failed

	if runErr != nil {
		w.finalizeFailure(integration.ID, logEntry.ID, runErr)
		return result, runErr
	}

	if err := w.deps.Integrations.MarkSynced(ctx, integration.ID, cursor, runStartedAt); err != nil {
		w.finalizeFailure(integration.ID, logEntry.ID, err)
		return result, err
	}
	if err := w.deps.SyncLogs.Complete(ctx, logEntry.ID, synced, failed); err != nil {
		w.logError("failed to complete sync log entry", err,
			"integration_id", integration.ID,
			"sync_log_id", logEntry.ID)
	}

	w.logInfo("sync run completed",
		"integration_id", integration.ID,
		"provider_id", integration.ProviderID,
		"records_synced", synced,
		"records_failed", failed)
	return result, nil
}

// finalizeFailure applies the failure transitions outside the (possibly
// expired) run context so a blown budget still leaves a consistent row.
func (w *Worker) finalizeFailure(integrationID string, syncLogID string, runErr error) {
	message := core.TruncateErrorMessage(runErr.Error(), w.config.ErrorMessageLimit)
	finalizeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.deps.Integrations.MarkError(finalizeCtx, integrationID, message); err != nil {
		w.logError("failed to mark integration error", err, "integration_id", integrationID)
	}
	if strings.TrimSpace(syncLogID) != "" {
		if err := w.deps.SyncLogs.Fail(finalizeCtx, syncLogID, message); err != nil {
			w.logError("failed to fail sync log entry", err,
				"integration_id", integrationID,
				"sync_log_id", syncLogID)
		}
	}
	w.logError("sync run failed", runErr, "integration_id", integrationID)
}

func (w *Worker) execute(ctx context.Context, integration core.Integration, runStartedAt time.Time) (synced int, failed int, cursor string, err error) {
	provider, err := w.deps.Registry.Resolve(integration.ProviderID)
	if err != nil {
		return 0, 0, "", core.NewConfigurationError(err.Error())
	}

	tokens, err := w.loadTokens(ctx, integration)
	if err != nil {
		return 0, 0, "", err
	}

	if core.ShouldRefresh(w.now(), tokens, w.config.RefreshLeadWindow) {
		refreshed, refreshErr := provider.Refresh(ctx, tokens, integration.Settings)
		if refreshErr != nil {
			// stored tokens stay untouched so a fixed grant can recover
			return 0, 0, "", refreshErr
		}
		if storeErr := w.deps.Vault.Store(ctx, integration.TenantID, integration.ProviderID, refreshed); storeErr != nil {
			return 0, 0, "", storeErr
		}
		tokens = refreshed
	}

	if integration.Direction.Inbound() {
		inSynced, inFailed, inErr := w.pullContacts(ctx, provider, integration, tokens)
		synced += inSynced
		failed += inFailed
		if inErr != nil {
			return synced, failed, "", inErr
		}
	}
	if integration.Direction.Outbound() {
		outSynced, outFailed, outErr := w.pushCalls(ctx, provider, integration, tokens)
		synced += outSynced
		failed += outFailed
		if outErr != nil {
			return synced, failed, "", outErr
		}
	}

	// the cursor advances to the run start, not the run end: records that
	// changed mid-run are re-fetched next tick (at-least-once; the upsert
	// makes the replay harmless)
	return synced, failed, runStartedAt.UTC().Format(time.RFC3339), nil
}

func (w *Worker) loadTokens(ctx context.Context, integration core.Integration) (core.TokenSet, error) {
	tokens, err := w.deps.Vault.Get(ctx, integration.TenantID, integration.ProviderID)
	if err != nil {
		if errors.Is(err, security.ErrTokenNotFound) {
			return core.TokenSet{}, core.NewConfigurationError(
				fmt.Sprintf("sync: no stored credentials for provider %s; reconnect the integration", integration.ProviderID),
			)
		}
		return core.TokenSet{}, err
	}
	return tokens, nil
}

func (w *Worker) pullContacts(ctx context.Context, provider core.Provider, integration core.Integration, tokens core.TokenSet) (synced int, failed int, err error) {
	watermark := parseCursorWatermark(integration.SyncCursor)
	pageCursor := ""

	for {
		page, listErr := provider.ListContacts(ctx, tokens, integration.Settings, core.ContactPageRequest{
			Limit:         w.config.PageLimit,
			Cursor:        pageCursor,
			ModifiedSince: watermark,
		})
		if listErr != nil {
			return synced, failed, listErr
		}

		for _, contact := range page.Contacts {
			if upsertErr := w.upsertContact(ctx, integration, contact); upsertErr != nil {
				failed++
				w.logError("contact upsert failed", upsertErr,
					"integration_id", integration.ID,
					"remote_object_type", contact.ObjectType,
					"remote_object_id", contact.ObjectID)
				continue
			}
			synced++
		}

		if !page.HasMore {
			return synced, failed, nil
		}
		pageCursor = page.NextCursor
	}
}

func (w *Worker) upsertContact(ctx context.Context, integration core.Integration, contact core.RemoteContact) error {
	objectType := strings.TrimSpace(contact.ObjectType)
	objectID := strings.TrimSpace(contact.ObjectID)
	if objectType == "" || objectID == "" {
		return core.NewRecordError("sync: contact is missing a remote object identity", nil)
	}

	_, err := w.deps.ContactLinks.Upsert(ctx, core.ContactLink{
		IntegrationID:    integration.ID,
		RemoteObjectType: objectType,
		RemoteObjectID:   objectID,
		DisplayName:      contact.DisplayName(),
		Email:            strings.TrimSpace(contact.Email),
		Phone:            strings.TrimSpace(contact.Phone),
		Metadata:         contact.Properties,
		SyncedAt:         w.now(),
	})
	if err != nil {
		return core.NewRecordError("sync: contact link upsert failed", err)
	}
	return nil
}

func (w *Worker) pushCalls(ctx context.Context, provider core.Provider, integration core.Integration, tokens core.TokenSet) (synced int, failed int, err error) {
	calls, err := w.deps.Calls.ListPushCandidates(ctx, integration.TenantID, integration.ID, w.config.OutboundBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, call := range calls {
		if pushErr := w.pushCall(ctx, provider, integration, tokens, call); pushErr != nil {
			failed++
			w.logError("call push failed", pushErr,
				"integration_id", integration.ID,
				"call_id", call.ID)
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *Worker) pushCall(ctx context.Context, provider core.Provider, integration core.Integration, tokens core.TokenSet, call core.CallRecord) error {
	exists, err := w.deps.CallActivityLinks.Exists(ctx, integration.ID, call.ID)
	if err != nil {
		return core.NewRecordError("sync: call activity link lookup failed", err)
	}
	if exists {
		return nil
	}

	// best effort: a call without a contact match is still pushed, just
	// without an association
	contactID := w.resolveContact(ctx, provider, integration, tokens, call)

	externalID, err := provider.CreateCallActivity(ctx, tokens, integration.Settings, core.CallActivity{
		Subject:         callSubject(call),
		Body:            strings.TrimSpace(call.Notes),
		Direction:       call.Direction,
		DurationSeconds: call.DurationSeconds,
		FromNumber:      call.FromNumber,
		ToNumber:        call.ToNumber,
		OccurredAt:      call.CompletedAt,
		ContactObjectID: contactID,
	})
	if err != nil {
		return core.NewRecordError("sync: create call activity failed", err)
	}

	if _, err := w.deps.CallActivityLinks.Create(ctx, core.CallActivityLink{
		IntegrationID:      integration.ID,
		CallID:             call.ID,
		ExternalActivityID: externalID,
	}); err != nil {
		return core.NewRecordError("sync: call activity link create failed", err)
	}
	return nil
}

func (w *Worker) resolveContact(ctx context.Context, provider core.Provider, integration core.Integration, tokens core.TokenSet, call core.CallRecord) string {
	counterparty := call.ToNumber
	if strings.EqualFold(strings.TrimSpace(call.Direction), "inbound") {
		counterparty = call.FromNumber
	}

	// normalization happens at compare time only; stored rows keep their
	// provider-supplied formatting
	for _, candidate := range phoneLookupCandidates(counterparty) {
		link, found, err := w.deps.ContactLinks.FindByPhone(ctx, integration.ID, candidate)
		if err != nil {
			w.logError("contact phone lookup failed", err,
				"integration_id", integration.ID,
				"call_id", call.ID)
			return ""
		}
		if found {
			return link.RemoteObjectID
		}
	}

	// cache miss: ask the provider directly, then cache the match so the
	// next call to the same number resolves locally
	remote, err := provider.SearchContactByPhone(ctx, tokens, integration.Settings, strings.TrimSpace(counterparty))
	if err != nil {
		w.logError("provider contact search failed", err,
			"integration_id", integration.ID,
			"call_id", call.ID)
		return ""
	}
	if remote == nil {
		return ""
	}
	if upsertErr := w.upsertContact(ctx, integration, *remote); upsertErr != nil {
		w.logError("contact link cache write failed", upsertErr,
			"integration_id", integration.ID,
			"remote_object_id", remote.ObjectID)
	}
	return remote.ObjectID
}

func callSubject(call core.CallRecord) string {
	direction := strings.ToLower(strings.TrimSpace(call.Direction))
	if direction == "" {
		direction = "outbound"
	}
	counterparty := strings.TrimSpace(call.ToNumber)
	if direction == "inbound" {
		counterparty = strings.TrimSpace(call.FromNumber)
	}
	if counterparty == "" {
		return fmt.Sprintf("Logged %s call", direction)
	}
	return fmt.Sprintf("Logged %s call with %s", direction, counterparty)
}

// parseCursorWatermark reads the stored cursor as a timestamp watermark.
// Legacy or malformed cursors fall back to a full pull, which is safe
// because contact writes are idempotent.
func parseCursorWatermark(cursor string) *time.Time {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, cursor)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// phoneLookupCandidates yields the raw number plus normalized variants so
// rows written before any normalization scheme still match.
func phoneLookupCandidates(phone string) []string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	candidates := []string{phone}
	if normalized := normalizePhone(phone); normalized != "" && normalized != phone {
		candidates = append(candidates, normalized)
	}
	return candidates
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Info(msg, args...)
}

func (w *Worker) logDebug(msg string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Debug(msg, args...)
}

func (w *Worker) logError(msg string, err error, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Error(msg, append([]any{"error", err}, args...)...)
}
