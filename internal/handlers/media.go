package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
)

type mediaService interface {
	Upload(ctx context.Context, userID uuid.UUID, req models.UploadMediaRequest) (*models.UserMedia, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.UserMedia, error)
}

type MediaHandler struct {
	media mediaService
}

func NewMediaHandler(media mediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// Upload records a portfolio item. Certificates are classified before the response is sent.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req models.UploadMediaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	media, err := h.media.Upload(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, media)
}

func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	media, err := h.media.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if media == nil {
		media = []*models.UserMedia{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"media": media,
	})
}
