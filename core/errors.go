package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorConfiguration    = "SYNC_CONFIGURATION_ERROR"
	SyncErrorAuth             = "SYNC_AUTH_ERROR"
	SyncErrorTransientNetwork = "SYNC_TRANSIENT_NETWORK"
	SyncErrorProviderAPI      = "SYNC_PROVIDER_API_ERROR"
	SyncErrorRecord           = "SYNC_RECORD_ERROR"
	SyncErrorBadInput         = "SYNC_BAD_INPUT"
	SyncErrorNotFound         = "SYNC_NOT_FOUND"
	SyncErrorInternal         = "SYNC_INTERNAL_ERROR"
)

// NewConfigurationError marks a run-fatal misconfiguration (missing tokens,
// missing settings). Remediation is external: the tenant reconnects.
func NewConfigurationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusPreconditionFailed).
		WithTextCode(SyncErrorConfiguration)
}

// NewAuthError marks a rejected credential (e.g. revoked grant on refresh).
func NewAuthError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(SyncErrorAuth)
}

// NewTransientNetworkError surfaces a network failure as a run failure with
// no in-run retry; the next scheduled tick is the retry mechanism.
func NewTransientNetworkError(message string, source error) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(SyncErrorTransientNetwork)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(SyncErrorTransientNetwork)
}

// NewProviderAPIError carries the provider-native error code and HTTP status
// without any secret material.
func NewProviderAPIError(message string, providerID string, providerCode string, httpStatus int) *goerrors.Error {
	if httpStatus <= 0 {
		httpStatus = http.StatusBadGateway
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(httpStatus).
		WithTextCode(SyncErrorProviderAPI).
		WithMetadata(map[string]any{
			"provider_id":   strings.TrimSpace(providerID),
			"provider_code": strings.TrimSpace(providerCode),
			"http_status":   httpStatus,
		})
}

// NewRecordError wraps a per-record failure; callers count these and never
// propagate them past their loop iteration.
func NewRecordError(message string, source error) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryOperation).
			WithTextCode(SyncErrorRecord)
	}
	return goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithTextCode(SyncErrorRecord)
}

func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsConfigurationError(err error) bool {
	return HasTextCode(err, SyncErrorConfiguration)
}

func IsAuthError(err error) bool {
	return HasTextCode(err, SyncErrorAuth)
}

func IsRecordError(err error) bool {
	return HasTextCode(err, SyncErrorRecord)
}

func syncErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no rows"):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorNotFound)
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "revoked"):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorAuth)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "unreachable"):
		return newSyncError(err.Error(), goerrors.CategoryExternal, SyncErrorTransientNetwork)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

func newSyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SyncErrorBadInput
	case goerrors.CategoryNotFound:
		return SyncErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SyncErrorAuth
	case goerrors.CategoryExternal:
		return SyncErrorTransientNetwork
	case goerrors.CategoryOperation:
		return SyncErrorRecord
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// TruncateErrorMessage bounds a persisted error message so provider payloads
// cannot bloat the integrations or sync log tables.
func TruncateErrorMessage(message string, limit int) string {
	message = strings.TrimSpace(message)
	if limit <= 0 || len(message) <= limit {
		return message
	}
	return message[:limit]
}
