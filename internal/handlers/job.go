package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
)

type jobReader interface {
	GetJob(ctx context.Context, jobID, userID uuid.UUID) (*models.Job, error)
}

type JobHandler struct {
	jobs jobReader
}

func NewJobHandler(jobs jobReader) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "job")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
