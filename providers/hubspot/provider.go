package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/transport"
)

const ProviderID = "hubspot"

const defaultBaseURL = "https://api.hubapi.com"
const defaultPageLimit = 100

// callToContactAssociationTypeID is the HubSpot-defined association between
// a call engagement and a contact.
const callToContactAssociationTypeID = 194

var contactProperties = []string{"firstname", "lastname", "email", "phone", "mobilephone", "lastmodifieddate"}

type Config struct {
	ClientID     string
	ClientSecret string
	// BaseURL overrides the HubSpot API host, used by tests.
	BaseURL string
}

// Provider implements the HubSpot CRM v3 surface: opaque-cursor contact
// paging, property-filter search, and call engagement creation.
type Provider struct {
	config Config
	rest   *transport.RESTClient
	oauth  *transport.OAuthClient
}

func New(config Config, rest *transport.RESTClient) (*Provider, error) {
	if strings.TrimSpace(config.ClientID) == "" {
		return nil, core.NewConfigurationError("hubspot: client id is required")
	}
	if strings.TrimSpace(config.ClientSecret) == "" {
		return nil, core.NewConfigurationError("hubspot: client secret is required")
	}
	if rest == nil {
		rest = transport.NewRESTClient(nil)
	}
	return &Provider{
		config: config,
		rest:   rest,
		oauth:  transport.NewOAuthClient(rest),
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) baseURL(settings core.ProviderSettings) string {
	if override := settings.String("base_url"); override != "" {
		return strings.TrimRight(override, "/")
	}
	if override := strings.TrimSpace(p.config.BaseURL); override != "" {
		return strings.TrimRight(override, "/")
	}
	return defaultBaseURL
}

func (p *Provider) tokenURL(settings core.ProviderSettings) string {
	return p.baseURL(settings) + "/oauth/v1/token"
}

func (p *Provider) ExchangeCode(ctx context.Context, req core.ExchangeCodeRequest) (core.TokenSet, error) {
	if strings.TrimSpace(req.Code) == "" {
		return core.TokenSet{}, core.NewConfigurationError("hubspot: authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("redirect_uri", strings.TrimSpace(req.RedirectURI))
	form.Set("code", strings.TrimSpace(req.Code))

	res, err := p.oauth.PostGrant(ctx, ProviderID, p.tokenURL(nil), form)
	if err != nil {
		return core.TokenSet{}, err
	}
	return res.Tokens, nil
}

func (p *Provider) Refresh(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings) (core.TokenSet, error) {
	if !tokens.HasRefreshToken() {
		return core.TokenSet{}, core.NewConfigurationError("hubspot: refresh requires a refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("refresh_token", tokens.RefreshToken)

	res, err := p.oauth.PostGrant(ctx, ProviderID, p.tokenURL(settings), form)
	if err != nil {
		return core.TokenSet{}, err
	}
	refreshed := res.Tokens
	if !refreshed.HasRefreshToken() {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	return refreshed, nil
}

type contactRecord struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type contactListPage struct {
	Results []contactRecord `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
	Total int `json:"total"`
}

func (p *Provider) ListContacts(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, req core.ContactPageRequest) (core.ContactPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	// The search endpoint serves delta pulls so the lastmodifieddate lower
	// bound applies; its `after` cursor is carried between pages.
	if req.ModifiedSince != nil {
		return p.searchModifiedContacts(ctx, tokens, settings, limit, req)
	}

	query := map[string]string{
		"limit":      strconv.Itoa(limit),
		"properties": strings.Join(contactProperties, ","),
	}
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		query["after"] = cursor
	}

	page := contactListPage{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     p.baseURL(settings) + "/crm/v3/objects/contacts",
		Query:   query,
		Headers: bearerHeaders(tokens),
	}, nil, &page)
	if err != nil {
		return core.ContactPage{}, err
	}
	if !res.Success() {
		return core.ContactPage{}, classifyAPIError("hubspot: list contacts failed", res)
	}
	return buildContactPage(page), nil
}

func (p *Provider) searchModifiedContacts(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, limit int, req core.ContactPageRequest) (core.ContactPage, error) {
	payload := map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": "lastmodifieddate",
				"operator":     "GTE",
				"value":        strconv.FormatInt(req.ModifiedSince.UTC().UnixMilli(), 10),
			}},
		}},
		"sorts":      []map[string]any{{"propertyName": "lastmodifieddate", "direction": "ASCENDING"}},
		"properties": contactProperties,
		"limit":      limit,
	}
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		payload["after"] = cursor
	}

	page := contactListPage{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL(settings) + "/crm/v3/objects/contacts/search",
		Headers: bearerHeaders(tokens),
	}, payload, &page)
	if err != nil {
		return core.ContactPage{}, err
	}
	if !res.Success() {
		return core.ContactPage{}, classifyAPIError("hubspot: contact delta search failed", res)
	}
	return buildContactPage(page), nil
}

func (p *Provider) SearchContactByPhone(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, phone string) (*core.RemoteContact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	return p.searchSingleContact(ctx, tokens, settings, []map[string]any{
		{"filters": []map[string]any{{"propertyName": "phone", "operator": "EQ", "value": phone}}},
		{"filters": []map[string]any{{"propertyName": "mobilephone", "operator": "EQ", "value": phone}}},
	})
}

func (p *Provider) SearchContactByEmail(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, email string) (*core.RemoteContact, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return p.searchSingleContact(ctx, tokens, settings, []map[string]any{
		{"filters": []map[string]any{{"propertyName": "email", "operator": "EQ", "value": email}}},
	})
}

func (p *Provider) searchSingleContact(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, filterGroups []map[string]any) (*core.RemoteContact, error) {
	payload := map[string]any{
		"filterGroups": filterGroups,
		"properties":   contactProperties,
		"limit":        1,
	}
	page := contactListPage{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL(settings) + "/crm/v3/objects/contacts/search",
		Headers: bearerHeaders(tokens),
	}, payload, &page)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, classifyAPIError("hubspot: contact search failed", res)
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	contact := toRemoteContact(page.Results[0])
	return &contact, nil
}

type createCallResponse struct {
	ID string `json:"id"`
}

func (p *Provider) CreateCallActivity(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, activity core.CallActivity) (string, error) {
	properties := map[string]any{
		"hs_timestamp":        activity.OccurredAt.UTC().Format(time.RFC3339),
		"hs_call_title":       strings.TrimSpace(activity.Subject),
		"hs_call_body":        strings.TrimSpace(activity.Body),
		"hs_call_duration":    strconv.Itoa(activity.DurationSeconds * 1000),
		"hs_call_direction":   normalizeCallDirection(activity.Direction),
		"hs_call_from_number": strings.TrimSpace(activity.FromNumber),
		"hs_call_to_number":   strings.TrimSpace(activity.ToNumber),
		"hs_call_status":      "COMPLETED",
	}
	payload := map[string]any{"properties": properties}
	if contactID := strings.TrimSpace(activity.ContactObjectID); contactID != "" {
		payload["associations"] = []map[string]any{{
			"to": map[string]any{"id": contactID},
			"types": []map[string]any{{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   callToContactAssociationTypeID,
			}},
		}}
	}

	created := createCallResponse{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL(settings) + "/crm/v3/objects/calls",
		Headers: bearerHeaders(tokens),
	}, payload, &created)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", classifyAPIError("hubspot: create call activity failed", res)
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", core.NewProviderAPIError("hubspot: create call response is missing an id", ProviderID, "", res.StatusCode)
	}
	return created.ID, nil
}

func bearerHeaders(tokens core.TokenSet) map[string]string {
	return map[string]string{"Authorization": "Bearer " + strings.TrimSpace(tokens.AccessToken)}
}

func buildContactPage(page contactListPage) core.ContactPage {
	contacts := make([]core.RemoteContact, 0, len(page.Results))
	for _, record := range page.Results {
		contacts = append(contacts, toRemoteContact(record))
	}
	out := core.ContactPage{Contacts: contacts}
	if page.Paging != nil && page.Paging.Next != nil && strings.TrimSpace(page.Paging.Next.After) != "" {
		out.NextCursor = page.Paging.Next.After
		out.HasMore = true
	}
	return out
}

func toRemoteContact(record contactRecord) core.RemoteContact {
	properties := make(map[string]any, len(record.Properties))
	for key, value := range record.Properties {
		properties[key] = value
	}
	phone := strings.TrimSpace(record.Properties["phone"])
	if phone == "" {
		phone = strings.TrimSpace(record.Properties["mobilephone"])
	}
	contact := core.RemoteContact{
		ObjectType: "contact",
		ObjectID:   record.ID,
		FirstName:  strings.TrimSpace(record.Properties["firstname"]),
		LastName:   strings.TrimSpace(record.Properties["lastname"]),
		Email:      strings.TrimSpace(record.Properties["email"]),
		Phone:      phone,
		Properties: properties,
	}
	if raw := strings.TrimSpace(record.Properties["lastmodifieddate"]); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := parsed.UTC()
			contact.UpdatedAt = &utc
		}
	}
	return contact
}

func normalizeCallDirection(direction string) string {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "outbound", "outgoing":
		return "OUTBOUND"
	default:
		return "INBOUND"
	}
}

type apiErrorBody struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

func classifyAPIError(message string, res transport.Response) error {
	body := apiErrorBody{}
	_ = json.Unmarshal(res.Body, &body)

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.NewAuthError(fmt.Sprintf("%s: access token was rejected", message))
	}
	if strings.TrimSpace(body.Message) != "" {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(body.Message))
	}
	return core.NewProviderAPIError(message, ProviderID, strings.TrimSpace(body.Category), res.StatusCode)
}

var _ core.Provider = (*Provider)(nil)
