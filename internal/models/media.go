package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MediaCategoryCertificate = "certificate"
	MediaCategoryNote        = "note"
	MediaCategoryOther       = "other"
)

type UserMedia struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	FileURL   string    `json:"file_url"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Issuer    *string   `json:"issuer"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"created_at"`
}

type UploadMediaRequest struct {
	FileURL  string `json:"file_url" validate:"required"`
	Category string `json:"category" validate:"omitempty,oneof=certificate note other"`
	// RawText is OCR output captured client-side.
	RawText string `json:"ai_analysis_text"`
}
