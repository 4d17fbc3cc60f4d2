package security

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

type tokenPayload struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func encodeTokenSet(tokens core.TokenSet) ([]byte, error) {
	if strings.TrimSpace(tokens.AccessToken) == "" {
		return nil, fmt.Errorf("security: token set requires an access token")
	}
	payload := tokenPayload{
		AccessToken:  strings.TrimSpace(tokens.AccessToken),
		RefreshToken: strings.TrimSpace(tokens.RefreshToken),
		TokenType:    strings.TrimSpace(tokens.TokenType),
		Scope:        strings.TrimSpace(tokens.Scope),
		ExpiresAt:    cloneTimePointer(tokens.ExpiresAt),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("security: encode token payload: %w", err)
	}
	return encoded, nil
}

func decodeTokenSet(payload []byte) (core.TokenSet, error) {
	if len(payload) == 0 {
		return core.TokenSet{}, fmt.Errorf("security: token payload is empty")
	}
	decoded := tokenPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return core.TokenSet{}, fmt.Errorf("security: decode token payload: %w", err)
	}
	return core.TokenSet{
		AccessToken:  strings.TrimSpace(decoded.AccessToken),
		RefreshToken: strings.TrimSpace(decoded.RefreshToken),
		TokenType:    strings.TrimSpace(decoded.TokenType),
		Scope:        strings.TrimSpace(decoded.Scope),
		ExpiresAt:    cloneTimePointer(decoded.ExpiresAt),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
