package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/triagekit/triagepipe/internal/api"
	"github.com/triagekit/triagepipe/internal/testutil"
)

func postChat(t *testing.T, handler http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func chatTurn(t *testing.T, handler http.Handler, sessionID, message string) map[string]interface{} {
	t.Helper()
	rr := postChat(t, handler, api.ChatRequest{SessionID: sessionID, Message: message})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "POST /chat")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("chat response missing result object: %v", response)
	}
	return result
}

func TestChatEndpointStartsInterview(t *testing.T) {
	handler := testutil.NewTestServer(t).Handler()

	result := chatTurn(t, handler, "", "I have chest pain")
	sessionID, _ := result["session_id"].(string)
	if sessionID == "" {
		t.Fatal("chat response missing session_id")
	}
	if reply, _ := result["reply"].(string); !strings.Contains(reply, "chest pain") {
		t.Errorf("first reply should acknowledge the complaint: %q", reply)
	}
	if complete, _ := result["interview_complete"].(bool); complete {
		t.Error("interview reported complete after one turn")
	}

	// the follow-up turn continues the same session
	result2 := chatTurn(t, handler, sessionID, "it started suddenly")
	if got, _ := result2["session_id"].(string); got != sessionID {
		t.Errorf("session id changed between turns: %q vs %q", got, sessionID)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	handler := testutil.NewTestServer(t).Handler()

	rr := postChat(t, handler, api.ChatRequest{Message: "   "})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "blank message")
	testutil.AssertJSONResponse(t, rr, "error")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed JSON")

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/chat", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET /chat")
}

func TestComplaintsEndpoint(t *testing.T) {
	handler := testutil.NewTestServer(t).Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/complaints", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /complaints")
	response := testutil.AssertJSONResponse(t, rr, "ok")

	result, ok := response["result"].([]interface{})
	if !ok {
		t.Fatalf("complaints result is not a list: %v", response)
	}
	if len(result) != 5 {
		t.Errorf("expected 5 complaints, got %d", len(result))
	}

	req = testutil.CreateHTTPRequest(t, http.MethodDelete, "/complaints", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "DELETE /complaints")
}

func TestSessionEndpoints(t *testing.T) {
	handler := testutil.NewTestServer(t).Handler()

	result := chatTurn(t, handler, "", "I have a headache")
	sessionID, _ := result["session_id"].(string)
	if sessionID == "" {
		t.Fatal("chat did not return a session id")
	}

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /sessions")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	if sessions, ok := response["result"].([]interface{}); !ok || len(sessions) != 1 {
		t.Errorf("expected one active session, got %v", response["result"])
	}

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+sessionID, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /sessions/{id}")
	testutil.AssertJSONResponse(t, rr, "ok")

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/does-not-exist", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "GET unknown session")

	req = testutil.CreateHTTPRequest(t, http.MethodDelete, "/sessions/"+sessionID, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "DELETE /sessions/{id}")

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+sessionID, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "GET deleted session")
}

func TestRecordsEndpoint(t *testing.T) {
	handler := testutil.NewTestServer(t).Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/records", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "GET /records")
	testutil.AssertJSONResponse(t, rr, "ok")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/records", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "POST /records")
}
