package models

import (
	"time"

	"github.com/google/uuid"
)

type StudyPost struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Title               string    `json:"title"`
	Topic               string    `json:"topic"`
	Subject             string    `json:"subject"`
	Description         string    `json:"description"`
	IsActive            bool      `json:"is_active"`
	ActiveSessionsCount int       `json:"active_sessions_count"`
	CreatedAt           time.Time `json:"created_at"`
}

type CreatePostRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Topic       string `json:"topic" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"required,max=100"`
	Description string `json:"description" validate:"max=5000"`
}

type PostFilter struct {
	Subject string
	Search  string
	Limit   int
	Offset  int
}
