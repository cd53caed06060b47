package models

import (
	"time"

	"github.com/google/uuid"
)

// User rows are provisioned by the auth service; this backend only reads them.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type UserProfile struct {
	User           *User        `json:"user"`
	PortfolioMedia []*UserMedia `json:"portfolio_media"`
}
