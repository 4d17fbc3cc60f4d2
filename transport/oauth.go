package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// TokenResponse carries the parsed token grant plus any provider-specific
// fields the grant returned alongside it (e.g. an instance url).
type TokenResponse struct {
	Tokens core.TokenSet
	Extras map[string]string
}

type oauthTokenPayload struct {
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	TokenType        string          `json:"token_type"`
	Scope            string          `json:"scope"`
	ExpiresIn        json.RawMessage `json:"expires_in"`
	InstanceURL      string          `json:"instance_url"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// OAuthClient posts form-encoded grants to provider token endpoints and
// classifies the response. Credential values never appear in errors.
type OAuthClient struct {
	rest *RESTClient
	now  func() time.Time
}

func NewOAuthClient(rest *RESTClient) *OAuthClient {
	if rest == nil {
		rest = NewRESTClient(nil)
	}
	return &OAuthClient{
		rest: rest,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (c *OAuthClient) WithClock(now func() time.Time) *OAuthClient {
	if c != nil && now != nil {
		c.now = now
	}
	return c
}

// PostGrant submits the form to the token endpoint and parses the result.
// invalid_grant and 401 responses become auth errors; other provider
// rejections become provider API errors with the provider-native code.
func (c *OAuthClient) PostGrant(ctx context.Context, providerID string, endpoint string, form url.Values) (TokenResponse, error) {
	if c == nil || c.rest == nil {
		return TokenResponse{}, core.NewConfigurationError("transport: oauth client is not configured")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return TokenResponse{}, core.NewConfigurationError("transport: token endpoint is required")
	}

	res, err := c.rest.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return TokenResponse{}, err
	}

	payload := oauthTokenPayload{}
	if len(res.Body) > 0 {
		// token endpoints return JSON on both success and rejection
		if err := json.Unmarshal(res.Body, &payload); err != nil && res.Success() {
			return TokenResponse{}, core.NewProviderAPIError(
				"transport: token endpoint returned an unreadable payload",
				providerID, "", res.StatusCode,
			)
		}
	}

	if !res.Success() {
		return TokenResponse{}, classifyGrantRejection(providerID, res.StatusCode, payload)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return TokenResponse{}, core.NewProviderAPIError(
			"transport: token endpoint response is missing an access token",
			providerID, strings.TrimSpace(payload.Error), res.StatusCode,
		)
	}

	tokens := core.TokenSet{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		TokenType:    strings.TrimSpace(payload.TokenType),
		Scope:        strings.TrimSpace(payload.Scope),
	}
	if seconds, ok := parseExpiresIn(payload.ExpiresIn); ok {
		expiresAt := c.now().Add(time.Duration(seconds) * time.Second)
		tokens.ExpiresAt = &expiresAt
	}

	extras := map[string]string{}
	if instanceURL := strings.TrimSpace(payload.InstanceURL); instanceURL != "" {
		extras["instance_url"] = instanceURL
	}
	return TokenResponse{Tokens: tokens, Extras: extras}, nil
}

func classifyGrantRejection(providerID string, statusCode int, payload oauthTokenPayload) error {
	errCode := strings.TrimSpace(payload.Error)
	description := strings.TrimSpace(payload.ErrorDescription)

	if errCode == "invalid_grant" || statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		message := "transport: token grant was rejected"
		if errCode != "" {
			message = fmt.Sprintf("transport: token grant was rejected (%s)", errCode)
		}
		return core.NewAuthError(message)
	}

	message := "transport: token endpoint request failed"
	if description != "" {
		message = fmt.Sprintf("transport: token endpoint request failed: %s", description)
	}
	return core.NewProviderAPIError(message, providerID, errCode, statusCode)
}

// parseExpiresIn tolerates both numeric and string-encoded expires_in
// values; Salesforce omits the field entirely.
func parseExpiresIn(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var seconds int64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return seconds, seconds > 0
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		var parsed int64
		if _, err := fmt.Sscanf(strings.TrimSpace(text), "%d", &parsed); err == nil {
			return parsed, parsed > 0
		}
	}
	return 0, false
}
