package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studygroup-backend/internal/handlers"
	"studygroup-backend/internal/middleware"
	"studygroup-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	users middleware.UserProvisioner,
	postHandler *handlers.PostHandler,
	sessionHandler *handlers.SessionHandler,
	noteHandler *handlers.NoteHandler,
	mediaHandler *handlers.MediaHandler,
	userHandler *handlers.UserHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	metricsHandler http.Handler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Model-backed routes (10 req/min per user)
	aiLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth.Middleware)
		r.Use(middleware.EnsureUser(users))

		// ──── Study Posts ────
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.Post("/", postHandler.Create)
			r.Get("/{id}", postHandler.Get)
			r.Delete("/{id}", postHandler.Delete)
			r.Post("/{id}/join", postHandler.Join)
		})

		// ──── Study Sessions ────
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Get("/{id}", sessionHandler.Get)
			r.Post("/{id}/end", sessionHandler.End)
			r.Get("/{id}/notes", sessionHandler.ListNotes)
			r.With(aiLimiter.Middleware).Post("/{id}/analyze", sessionHandler.Analyze)
		})

		// ──── Conversation Notes ────
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", noteHandler.List)
			r.Get("/{id}", noteHandler.Get)
		})

		// ──── Portfolio Media ────
		r.Route("/media", func(r chi.Router) {
			r.Get("/", mediaHandler.List)
			r.With(aiLimiter.Middleware).Post("/", mediaHandler.Upload)
		})

		r.Get("/user/me", userHandler.GetMe)
		r.Get("/jobs/{id}", jobHandler.GetJob)
	})

	// WebSocket (authenticates with ?token=)
	r.Get("/ws", wsHub.HandleWebSocket)

	return r
}
