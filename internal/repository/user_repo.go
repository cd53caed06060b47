package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, email, full_name, created_at FROM users WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureExists records an identity the auth service vouched for so foreign
// keys on posts, sessions and media resolve.
func (r *UserRepo) EnsureExists(ctx context.Context, id uuid.UUID, username string) error {
	if username == "" {
		username = id.String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, id, username)
	return err
}
