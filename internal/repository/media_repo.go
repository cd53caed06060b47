package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

func (r *MediaRepo) Create(ctx context.Context, m *models.UserMedia) error {
	m.ID = uuid.New()
	if m.Skills == nil {
		m.Skills = []string{}
	}
	skills, _ := json.Marshal(m.Skills)

	query := `INSERT INTO user_media (id, user_id, file_url, category, title, issuer, skills)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.UserID, m.FileURL, m.Category, m.Title, m.Issuer, skills,
	).Scan(&m.CreatedAt)
}

// UpdateClassification writes back the fields set by certificate analysis.
func (r *MediaRepo) UpdateClassification(ctx context.Context, m *models.UserMedia) error {
	skills, _ := json.Marshal(m.Skills)
	_, err := r.pool.Exec(ctx,
		"UPDATE user_media SET title = $1, issuer = $2, skills = $3 WHERE id = $4",
		m.Title, m.Issuer, skills, m.ID,
	)
	return err
}

func (r *MediaRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserMedia, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, file_url, category, title, issuer, skills, created_at
		FROM user_media WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []*models.UserMedia
	for rows.Next() {
		m := &models.UserMedia{}
		var skills []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.FileURL, &m.Category, &m.Title, &m.Issuer, &skills, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(skills, &m.Skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}
