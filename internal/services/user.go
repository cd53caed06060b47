package services

import (
	"context"

	"github.com/google/uuid"

	"studygroup-backend/internal/models"
)

type UserService struct {
	users UserReader
	media *MediaService
}

func NewUserService(users UserReader, media *MediaService) *UserService {
	return &UserService{users: users, media: media}
}

// Me returns the caller's profile with their portfolio media.
func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "User not found")
	}
	media, err := s.media.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserProfile{User: user, PortfolioMedia: media}, nil
}
