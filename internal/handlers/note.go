package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
)

type noteService interface {
	ListNotesForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationNote, error)
	GetNote(ctx context.Context, noteID, userID uuid.UUID) (*models.ConversationNote, error)
}

type NoteHandler struct {
	notes noteService
}

func NewNoteHandler(notes noteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.ListNotesForUser(r.Context(), middleware.GetUserID(r.Context()))
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

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "note")
	if !ok {
		return
	}

	note, err := h.notes.GetNote(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}
