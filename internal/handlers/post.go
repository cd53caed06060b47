package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/models"
)

type postService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req models.CreatePostRequest) (*models.StudyPost, error)
	List(ctx context.Context, f models.PostFilter) ([]*models.StudyPost, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StudyPost, error)
	Deactivate(ctx context.Context, id, userID uuid.UUID) error
}

type sessionJoiner interface {
	Join(ctx context.Context, postID, userID uuid.UUID) (*models.StudySession, error)
}

type PostHandler struct {
	posts    postService
	sessions sessionJoiner
}

func NewPostHandler(posts postService, sessions sessionJoiner) *PostHandler {
	return &PostHandler{posts: posts, sessions: sessions}
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}

	post, err := h.posts.Create(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := h.posts.List(r.Context(), models.PostFilter{
		Subject: q.Get("subject"),
		Search:  q.Get("search"),
		Limit:   queryInt(r, "limit", 0),
		Offset:  queryInt(r, "offset", 0),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if posts == nil {
		posts = []*models.StudyPost{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
	})
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "post")
	if !ok {
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "post")
	if !ok {
		return
	}

	if err := h.posts.Deactivate(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Post closed"})
}

// Join adds the caller to the post's live session, starting one if needed.
func (h *PostHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "post")
	if !ok {
		return
	}

	session, err := h.sessions.Join(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}
