package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

const postColumns = `p.id, p.user_id, p.title, p.topic, p.subject, p.description, p.is_active, p.created_at,
	(SELECT COUNT(*) FROM study_sessions s WHERE s.post_id = p.id AND s.is_active)`

func (r *PostRepo) Create(ctx context.Context, p *models.StudyPost) error {
	p.ID = uuid.New()
	p.IsActive = true

	query := `INSERT INTO study_posts (id, user_id, title, topic, subject, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.Title, p.Topic, p.Subject, p.Description, p.IsActive,
	).Scan(&p.CreatedAt)
}

func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StudyPost, error) {
	p := &models.StudyPost{}
	query := `SELECT ` + postColumns + ` FROM study_posts p WHERE p.id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Topic, &p.Subject, &p.Description, &p.IsActive, &p.CreatedAt,
		&p.ActiveSessionsCount,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns active posts, newest first. Subject is a case-insensitive
// substring match; search spans title, topic and description.
func (r *PostRepo) List(ctx context.Context, f models.PostFilter) ([]*models.StudyPost, error) {
	query := `SELECT ` + postColumns + ` FROM study_posts p WHERE p.is_active`
	args := []interface{}{}

	if f.Subject != "" {
		args = append(args, "%"+f.Subject+"%")
		query += fmt.Sprintf(" AND p.subject ILIKE $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (p.title ILIKE $%d OR p.topic ILIKE $%d OR p.description ILIKE $%d)", n, n, n)
	}

	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*models.StudyPost
	for rows.Next() {
		p := &models.StudyPost{}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Title, &p.Topic, &p.Subject, &p.Description, &p.IsActive, &p.CreatedAt,
			&p.ActiveSessionsCount,
		); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE study_posts SET is_active = FALSE WHERE id = $1", id)
	return err
}
