package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/transport"
)

const ProviderID = "salesforce"

const defaultLoginURL = "https://login.salesforce.com"
const apiVersion = "v59.0"
const defaultPageLimit = 200

// soqlTimeLayout is the literal datetime format SOQL accepts.
const soqlTimeLayout = "2006-01-02T15:04:05Z"

type Config struct {
	ClientID     string
	ClientSecret string
	// LoginURL overrides the OAuth host, used by tests and sandboxes.
	LoginURL string
}

// Provider implements the Salesforce REST surface: SOQL contact queries
// with a SystemModstamp watermark, query-locator paging, and Task creation
// for call activities. The per-tenant instance url comes from settings.
type Provider struct {
	config Config
	rest   *transport.RESTClient
	oauth  *transport.OAuthClient
}

func New(config Config, rest *transport.RESTClient) (*Provider, error) {
	if strings.TrimSpace(config.ClientID) == "" {
		return nil, core.NewConfigurationError("salesforce: client id is required")
	}
	if strings.TrimSpace(config.ClientSecret) == "" {
		return nil, core.NewConfigurationError("salesforce: client secret is required")
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

func (p *Provider) loginURL() string {
	if override := strings.TrimSpace(p.config.LoginURL); override != "" {
		return strings.TrimRight(override, "/")
	}
	return defaultLoginURL
}

func instanceURL(settings core.ProviderSettings) (string, error) {
	instance := settings.String("instance_url")
	if instance == "" {
		return "", core.NewConfigurationError("salesforce: instance_url setting is required")
	}
	return strings.TrimRight(instance, "/"), nil
}

func (p *Provider) ExchangeCode(ctx context.Context, req core.ExchangeCodeRequest) (core.TokenSet, error) {
	if strings.TrimSpace(req.Code) == "" {
		return core.TokenSet{}, core.NewConfigurationError("salesforce: authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("redirect_uri", strings.TrimSpace(req.RedirectURI))
	form.Set("code", strings.TrimSpace(req.Code))

	res, err := p.oauth.PostGrant(ctx, ProviderID, p.loginURL()+"/services/oauth2/token", form)
	if err != nil {
		return core.TokenSet{}, err
	}
	return res.Tokens, nil
}

func (p *Provider) Refresh(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings) (core.TokenSet, error) {
	if !tokens.HasRefreshToken() {
		return core.TokenSet{}, core.NewConfigurationError("salesforce: refresh requires a refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("refresh_token", tokens.RefreshToken)

	res, err := p.oauth.PostGrant(ctx, ProviderID, p.loginURL()+"/services/oauth2/token", form)
	if err != nil {
		return core.TokenSet{}, err
	}
	// Salesforce never returns a new refresh token on refresh.
	refreshed := res.Tokens
	if !refreshed.HasRefreshToken() {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	return refreshed, nil
}

type contactRow struct {
	ID             string `json:"Id"`
	FirstName      string `json:"FirstName"`
	LastName       string `json:"LastName"`
	Email          string `json:"Email"`
	Phone          string `json:"Phone"`
	MobilePhone    string `json:"MobilePhone"`
	SystemModstamp string `json:"SystemModstamp"`
}

type queryPage struct {
	TotalSize      int          `json:"totalSize"`
	Done           bool         `json:"done"`
	NextRecordsURL string       `json:"nextRecordsUrl"`
	Records        []contactRow `json:"records"`
}

func (p *Provider) ListContacts(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, req core.ContactPageRequest) (core.ContactPage, error) {
	instance, err := instanceURL(settings)
	if err != nil {
		return core.ContactPage{}, err
	}

	var queryURL string
	query := map[string]string{}
	// A cursor is a query-locator path handed back by the previous page;
	// the first page builds a watermarked SOQL query instead.
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		queryURL = instance + cursor
	} else {
		limit := req.Limit
		if limit <= 0 {
			limit = defaultPageLimit
		}
		soql := fmt.Sprintf(
			"SELECT Id, FirstName, LastName, Email, Phone, MobilePhone, SystemModstamp FROM Contact%s ORDER BY SystemModstamp ASC LIMIT %d",
			watermarkClause(req.ModifiedSince), limit,
		)
		queryURL = instance + "/services/data/" + apiVersion + "/query"
		query["q"] = soql
	}

	page := queryPage{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     queryURL,
		Query:   query,
		Headers: bearerHeaders(tokens),
	}, nil, &page)
	if err != nil {
		return core.ContactPage{}, err
	}
	if !res.Success() {
		return core.ContactPage{}, classifyAPIError("salesforce: list contacts failed", res)
	}

	contacts := make([]core.RemoteContact, 0, len(page.Records))
	for _, row := range page.Records {
		contacts = append(contacts, toRemoteContact(row))
	}
	out := core.ContactPage{Contacts: contacts}
	if !page.Done && strings.TrimSpace(page.NextRecordsURL) != "" {
		out.NextCursor = strings.TrimSpace(page.NextRecordsURL)
		out.HasMore = true
	}
	return out, nil
}

func (p *Provider) SearchContactByPhone(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, phone string) (*core.RemoteContact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	escaped := escapeSOQL(phone)
	soql := fmt.Sprintf(
		"SELECT Id, FirstName, LastName, Email, Phone, MobilePhone, SystemModstamp FROM Contact WHERE Phone = '%s' OR MobilePhone = '%s' LIMIT 1",
		escaped, escaped,
	)
	return p.querySingleContact(ctx, tokens, settings, soql)
}

func (p *Provider) SearchContactByEmail(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, email string) (*core.RemoteContact, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	soql := fmt.Sprintf(
		"SELECT Id, FirstName, LastName, Email, Phone, MobilePhone, SystemModstamp FROM Contact WHERE Email = '%s' LIMIT 1",
		escapeSOQL(email),
	)
	return p.querySingleContact(ctx, tokens, settings, soql)
}

func (p *Provider) querySingleContact(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, soql string) (*core.RemoteContact, error) {
	instance, err := instanceURL(settings)
	if err != nil {
		return nil, err
	}

	page := queryPage{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     instance + "/services/data/" + apiVersion + "/query",
		Query:   map[string]string{"q": soql},
		Headers: bearerHeaders(tokens),
	}, nil, &page)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, classifyAPIError("salesforce: contact search failed", res)
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	contact := toRemoteContact(page.Records[0])
	return &contact, nil
}

type createSObjectResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

func (p *Provider) CreateCallActivity(ctx context.Context, tokens core.TokenSet, settings core.ProviderSettings, activity core.CallActivity) (string, error) {
	instance, err := instanceURL(settings)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"Subject":               strings.TrimSpace(activity.Subject),
		"Description":           strings.TrimSpace(activity.Body),
		"TaskSubtype":           "Call",
		"Status":                "Completed",
		"CallType":              normalizeCallType(activity.Direction),
		"CallDurationInSeconds": activity.DurationSeconds,
		"ActivityDate":          activity.OccurredAt.UTC().Format("2006-01-02"),
	}
	if contactID := strings.TrimSpace(activity.ContactObjectID); contactID != "" {
		payload["WhoId"] = contactID
	}

	created := createSObjectResponse{}
	res, err := p.rest.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     instance + "/services/data/" + apiVersion + "/sobjects/Task",
		Headers: bearerHeaders(tokens),
	}, payload, &created)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", classifyAPIError("salesforce: create call task failed", res)
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", core.NewProviderAPIError("salesforce: create task response is missing an id", ProviderID, "", res.StatusCode)
	}
	return created.ID, nil
}

func bearerHeaders(tokens core.TokenSet) map[string]string {
	return map[string]string{"Authorization": "Bearer " + strings.TrimSpace(tokens.AccessToken)}
}

func watermarkClause(modifiedSince *time.Time) string {
	if modifiedSince == nil {
		return ""
	}
	return fmt.Sprintf(" WHERE SystemModstamp > %s", modifiedSince.UTC().Format(soqlTimeLayout))
}

func toRemoteContact(row contactRow) core.RemoteContact {
	phone := strings.TrimSpace(row.Phone)
	if phone == "" {
		phone = strings.TrimSpace(row.MobilePhone)
	}
	contact := core.RemoteContact{
		ObjectType: "Contact",
		ObjectID:   row.ID,
		FirstName:  strings.TrimSpace(row.FirstName),
		LastName:   strings.TrimSpace(row.LastName),
		Email:      strings.TrimSpace(row.Email),
		Phone:      phone,
		Properties: map[string]any{
			"system_modstamp": strings.TrimSpace(row.SystemModstamp),
		},
	}
	if raw := strings.TrimSpace(row.SystemModstamp); raw != "" {
		if parsed, err := time.Parse("2006-01-02T15:04:05.000-0700", raw); err == nil {
			utc := parsed.UTC()
			contact.UpdatedAt = &utc
		} else if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := parsed.UTC()
			contact.UpdatedAt = &utc
		}
	}
	return contact
}

func normalizeCallType(direction string) string {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "outbound", "outgoing":
		return "Outbound"
	default:
		return "Inbound"
	}
}

func escapeSOQL(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func classifyAPIError(message string, res transport.Response) error {
	var body []apiError
	_ = json.Unmarshal(res.Body, &body)

	code := ""
	if len(body) > 0 {
		code = strings.TrimSpace(body[0].ErrorCode)
		if detail := strings.TrimSpace(body[0].Message); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		}
	}
	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.NewAuthError(fmt.Sprintf("%s: access token was rejected", message))
	}
	return core.NewProviderAPIError(message, ProviderID, code, res.StatusCode)
}

var _ core.Provider = (*Provider)(nil)
