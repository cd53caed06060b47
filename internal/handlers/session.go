package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
)

type sessionService interface {
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error)
	End(ctx context.Context, sessionID, userID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error)
	ListNotes(ctx context.Context, sessionID, userID uuid.UUID) ([]*models.ConversationNote, error)
}

type analysisSubmitter interface {
	Submit(ctx context.Context, sessionID, userID uuid.UUID, req models.AnalyzeRequest) (*models.Job, error)
}

type SessionHandler struct {
	sessions sessionService
	analysis analysisSubmitter
}

func NewSessionHandler(sessions sessionService, analysis analysisSubmitter) *SessionHandler {
	return &SessionHandler{sessions: sessions, analysis: analysis}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if sessions == nil {
		sessions = []*models.StudySession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "session")
	if !ok {
		return
	}

	session, err := h.sessions.Get(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "session")
	if !ok {
		return
	}

	if err := h.sessions.End(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}

func (h *SessionHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "session")
	if !ok {
		return
	}

	notes, err := h.sessions.ListNotes(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if notes == nil {
		notes = []*models.ConversationNote{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notes": notes,
	})
}

// Analyze queues a conversation analysis and answers before the model runs.
func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "session")
	if !ok {
		return
	}

	var req models.AnalyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job, err := h.analysis.Submit(r.Context(), id, middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}
