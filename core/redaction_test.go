package core

import "testing"

func TestRedactSensitiveMapScrubsTokenMaterial(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"access_token":  "secret-value",
		"refresh_token": "secret-value",
		"client_secret": "secret-value",
		"api_key":       "secret-value",
		"provider_id":   "hubspot",
		"nested": map[string]any{
			"authorization": "Bearer abc",
			"tenant_id":     "tenant-1",
		},
	})

	for _, key := range []string{"access_token", "refresh_token", "client_secret", "api_key"} {
		if redacted[key] != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %v", key, redacted[key])
		}
	}
	if redacted["provider_id"] != "hubspot" {
		t.Fatalf("expected traceability key untouched, got %v", redacted["provider_id"])
	}
	nested := redacted["nested"].(map[string]any)
	if nested["authorization"] != RedactedValue {
		t.Fatalf("expected nested authorization redacted, got %v", nested["authorization"])
	}
	if nested["tenant_id"] != "tenant-1" {
		t.Fatalf("expected nested tenant id untouched, got %v", nested["tenant_id"])
	}
}

func TestRedactSensitiveMapHandlesSlices(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"attempts": []any{
			map[string]any{"token": "abc", "call_id": "call-1"},
		},
	})
	attempts := redacted["attempts"].([]any)
	first := attempts[0].(map[string]any)
	if first["token"] != RedactedValue {
		t.Fatalf("expected token in slice redacted, got %v", first["token"])
	}
	if first["call_id"] != "call-1" {
		t.Fatalf("expected call id untouched, got %v", first["call_id"])
	}
}
