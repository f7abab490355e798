// Package testutil provides common test utilities and helpers for TriagePipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/triagekit/triagepipe/internal/api"
	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/rules"
	"github.com/triagekit/triagepipe/internal/store"
	"github.com/triagekit/triagepipe/internal/triage"
)

// NewTestService creates a triage service over the embedded catalog and rule
// table with an in-memory store. This centralizes the wiring used across
// test files.
func NewTestService(t *testing.T) (*triage.Service, *store.InMemoryStore) {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load embedded catalog: %v", err)
	}
	engine, err := rules.Load(cat)
	if err != nil {
		t.Fatalf("failed to load embedded rules: %v", err)
	}
	st := store.NewInMemoryStore()
	return triage.NewService(cat, engine, st), st
}

// NewTestServer creates a test API server with in-memory dependencies.
func NewTestServer(t *testing.T) *api.Server {
	t.Helper()
	svc, _ := NewTestService(t)
	return api.NewServer(svc)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, url, nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}
