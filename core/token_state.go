package core

import "time"

// DefaultRefreshLeadWindow is the proactive refresh buffer: a token is
// treated as expired once now >= expires_at - window.
const DefaultRefreshLeadWindow = 5 * time.Minute

// TokenState captures the access/refresh lifecycle flags derived from one
// token set at a point in time.
type TokenState struct {
	ExpiresAt       *time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
}

// ResolveTokenState evaluates expiry for a token set. Tokens without an
// expiry never report expired; the stored-record TTL is the safety net.
func ResolveTokenState(now time.Time, tokens TokenSet, leadWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}

	state := TokenState{
		HasAccessToken:  tokens.HasAccessToken(),
		HasRefreshToken: tokens.HasRefreshToken(),
	}
	if tokens.ExpiresAt == nil {
		return state
	}
	expiresAt := tokens.ExpiresAt.UTC()
	state.ExpiresAt = &expiresAt
	state.IsExpired = !expiresAt.After(now.Add(leadWindow))
	return state
}

// ShouldRefresh reports whether a refresh must run before provider calls.
func ShouldRefresh(now time.Time, tokens TokenSet, leadWindow time.Duration) bool {
	state := ResolveTokenState(now, tokens, leadWindow)
	if !state.HasAccessToken {
		return true
	}
	return state.IsExpired
}
