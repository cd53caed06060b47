package middleware

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

type UserProvisioner interface {
	EnsureExists(ctx context.Context, id uuid.UUID, username string) error
}

// EnsureUser mirrors authenticated callers into the users table once per
// process. Must run after JWTAuth.Middleware.
func EnsureUser(store UserProvisioner) func(http.Handler) http.Handler {
	var seen sync.Map
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := seen.Load(userID); !ok {
				if err := store.EnsureExists(r.Context(), userID, GetUsername(r.Context())); err != nil {
					log.Printf("Failed to provision user %s: %v", userID, err)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", r)
					return
				}
				seen.Store(userID, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}
