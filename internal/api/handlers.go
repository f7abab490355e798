package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/triagekit/triagepipe/internal/models"
)

// ChatRequest is one conversational turn from the caller.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse carries the reply plus the structured turn envelope.
type ChatResponse struct {
	SessionID         string                `json:"session_id"`
	Reply             string                `json:"reply"`
	Verdict           *models.TriageVerdict `json:"verdict,omitempty"`
	InterviewComplete bool                  `json:"interview_complete"`
}

// chatHandler handles POST /chat: one triage turn.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("Server.chatHandler: invalid request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
		return
	}

	result, err := s.svc.StartOrContinue(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
			return
		}
		slog.Error("Server.chatHandler: turn failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(ChatResponse{
		SessionID:         result.SessionID,
		Reply:             result.Reply,
		Verdict:           result.Verdict,
		InterviewComplete: result.InterviewComplete,
	}))
}

// complaintsHandler handles GET /complaints: catalog listing for UIs.
func (s *Server) complaintsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.svc.ListComplaints()))
}

// sessionsHandler handles GET /sessions: active session listing.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	sessions, err := s.svc.ListActiveSessions()
	if err != nil {
		slog.Error("Server.sessionsHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// sessionHandler handles GET and DELETE /sessions/{id}.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("session not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.svc.GetSession(id)
		if err != nil {
			slog.Error("Server.sessionHandler: lookup failed", "error", err, "sessionID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load session"))
			return
		}
		if sess == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("session not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(sess))
	case http.MethodDelete:
		if err := s.svc.DeleteSession(id); err != nil {
			slog.Error("Server.sessionHandler: delete failed", "error", err, "sessionID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to delete session"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("session deleted", nil))
	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
	}
}

// recordsHandler handles GET /records: triage log introspection.
func (s *Server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	records, err := s.svc.GetTriageRecords()
	if err != nil {
		slog.Error("Server.recordsHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list triage records"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
