package salesforce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/transport"
)

func newTestProvider(t *testing.T, server *httptest.Server) (*Provider, core.ProviderSettings) {
	t.Helper()
	provider, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		LoginURL:     server.URL,
	}, transport.NewRESTClient(server.Client()))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	settings := core.ProviderSettings{"instance_url": server.URL}
	return provider, settings
}

func TestRefreshRevokedGrantIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/oauth2/token" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"expired access/refresh token"}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	_, err := provider.Refresh(context.Background(), core.TokenSet{
		AccessToken:  "old-access",
		RefreshToken: "revoked-refresh",
	}, settings)
	if !core.IsAuthError(err) {
		t.Fatalf("expected auth error got %v", err)
	}
}

func TestRefreshKeepsPriorRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","instance_url":"https://example.my.salesforce.com"}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	refreshed, err := provider.Refresh(context.Background(), core.TokenSet{
		AccessToken:  "old-access",
		RefreshToken: "prior-refresh",
	}, settings)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != "prior-refresh" {
		t.Fatalf("expected prior refresh token got %q", refreshed.RefreshToken)
	}
}

func TestListContactsBuildsWatermarkedQuery(t *testing.T) {
	var gotSOQL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/data/v59.0/query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotSOQL = r.URL.Query().Get("q")
		w.Write([]byte(`{
			"totalSize": 1,
			"done": false,
			"nextRecordsUrl": "/services/data/v59.0/query/01g-next",
			"records": [
				{"Id": "003A", "FirstName": "Ada", "LastName": "Lovelace", "Email": "ada@example.com", "Phone": "+15551234567", "SystemModstamp": "2026-01-15T10:30:00.000+0000"}
			]
		}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	since := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	page, err := provider.ListContacts(context.Background(), core.TokenSet{AccessToken: "access"}, settings, core.ContactPageRequest{
		Limit:         50,
		ModifiedSince: &since,
	})
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if !strings.Contains(gotSOQL, "SystemModstamp > 2026-01-01T00:00:00Z") {
		t.Fatalf("expected watermark clause in %q", gotSOQL)
	}
	if !strings.Contains(gotSOQL, "LIMIT 50") {
		t.Fatalf("expected limit clause in %q", gotSOQL)
	}
	if !page.HasMore || page.NextCursor != "/services/data/v59.0/query/01g-next" {
		t.Fatalf("expected locator cursor got %q (hasMore=%v)", page.NextCursor, page.HasMore)
	}
	if page.Contacts[0].UpdatedAt == nil {
		t.Fatal("expected SystemModstamp to be parsed")
	}
}

func TestListContactsFollowsQueryLocator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/data/v59.0/query/01g-next" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "" {
			t.Errorf("locator request must not carry a soql query")
		}
		w.Write([]byte(`{"totalSize": 0, "done": true, "records": []}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	page, err := provider.ListContacts(context.Background(), core.TokenSet{AccessToken: "access"}, settings, core.ContactPageRequest{
		Cursor: "/services/data/v59.0/query/01g-next",
	})
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if page.HasMore {
		t.Fatal("expected terminal page")
	}
}

func TestListContactsRequiresInstanceURL(t *testing.T) {
	provider, err := New(Config{ClientID: "id", ClientSecret: "secret"}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.ListContacts(context.Background(), core.TokenSet{AccessToken: "access"}, nil, core.ContactPageRequest{})
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected configuration error got %v", err)
	}
}

func TestSearchContactByPhoneEscapesInput(t *testing.T) {
	var gotSOQL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSOQL = r.URL.Query().Get("q")
		w.Write([]byte(`{"totalSize": 0, "done": true, "records": []}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	contact, err := provider.SearchContactByPhone(context.Background(), core.TokenSet{AccessToken: "access"}, settings, "+1'555")
	if err != nil {
		t.Fatalf("search by phone: %v", err)
	}
	if contact != nil {
		t.Fatalf("expected nil contact got %+v", contact)
	}
	if !strings.Contains(gotSOQL, `\'`) {
		t.Fatalf("expected escaped quote in %q", gotSOQL)
	}
}

func TestCreateCallActivityCreatesTask(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/data/v59.0/sobjects/Task" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "00T123", "success": true}`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	externalID, err := provider.CreateCallActivity(context.Background(), core.TokenSet{AccessToken: "access"}, settings, core.CallActivity{
		Subject:         "Call with Ada",
		Direction:       "inbound",
		DurationSeconds: 120,
		OccurredAt:      time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC),
		ContactObjectID: "003A",
	})
	if err != nil {
		t.Fatalf("create call activity: %v", err)
	}
	if externalID != "00T123" {
		t.Fatalf("unexpected external id %q", externalID)
	}
	if gotPayload["TaskSubtype"] != "Call" {
		t.Fatalf("unexpected TaskSubtype %v", gotPayload["TaskSubtype"])
	}
	if gotPayload["WhoId"] != "003A" {
		t.Fatalf("unexpected WhoId %v", gotPayload["WhoId"])
	}
	if gotPayload["CallType"] != "Inbound" {
		t.Fatalf("unexpected CallType %v", gotPayload["CallType"])
	}
}

func TestAPIRejectionCarriesErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`[{"message":"Where did you get that Id from?","errorCode":"MALFORMED_ID"}]`))
	}))
	defer server.Close()

	provider, settings := newTestProvider(t, server)
	_, err := provider.CreateCallActivity(context.Background(), core.TokenSet{AccessToken: "access"}, settings, core.CallActivity{
		ContactObjectID: "bogus",
		OccurredAt:      time.Now(),
	})
	if !core.HasTextCode(err, core.SyncErrorProviderAPI) {
		t.Fatalf("expected provider api error got %v", err)
	}
}
