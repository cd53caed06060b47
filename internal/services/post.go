package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"studygroup-backend/internal/models"
)

type PostStore interface {
	Create(ctx context.Context, p *models.StudyPost) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.StudyPost, error)
	List(ctx context.Context, f models.PostFilter) ([]*models.StudyPost, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type PostService struct {
	posts PostStore
}

func NewPostService(posts PostStore) *PostService {
	return &PostService{posts: posts}
}

func (s *PostService) Create(ctx context.Context, ownerID uuid.UUID, req models.CreatePostRequest) (*models.StudyPost, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Topic = strings.TrimSpace(req.Topic)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	post := &models.StudyPost{
		UserID:      ownerID,
		Title:       req.Title,
		Topic:       req.Topic,
		Subject:     req.Subject,
		Description: req.Description,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) List(ctx context.Context, f models.PostFilter) ([]*models.StudyPost, error) {
	f.Subject = strings.TrimSpace(f.Subject)
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	posts, err := s.posts.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.StudyPost{}
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, id uuid.UUID) (*models.StudyPost, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Study post not found")
	}
	return post, nil
}

// Deactivate hides the post from listings. Only its owner may do this.
func (s *PostService) Deactivate(ctx context.Context, id, userID uuid.UUID) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "Study post not found")
	}
	if post.UserID != userID {
		return &ForbiddenError{Message: "Only the post owner can remove it"}
	}
	if !post.IsActive {
		return nil
	}
	return s.posts.Deactivate(ctx, id)
}
