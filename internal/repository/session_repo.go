package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

var (
	// ErrSessionFull is returned when the conditional increment matched no row.
	ErrSessionFull = errors.New("session is full or no longer active")
	// ErrActiveSessionExists is returned when the post already has a live session.
	ErrActiveSessionExists = errors.New("post already has an active session")
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, post_id, creator_id, chat_id, participant_count, is_active, started_at, ended_at, last_ai_analysis`

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	err := row.Scan(
		&s.ID, &s.PostID, &s.CreatorID, &s.ChatID, &s.ParticipantCount,
		&s.IsActive, &s.StartedAt, &s.EndedAt, &s.LastAIAnalysis,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) loadParticipants(ctx context.Context, s *models.StudySession) error {
	rows, err := r.pool.Query(ctx,
		"SELECT user_id FROM session_participants WHERE session_id = $1 ORDER BY joined_at, user_id", s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	s.Participants = []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		s.Participants = append(s.Participants, id)
	}
	return rows.Err()
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM study_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) GetActiveByPost(ctx context.Context, postID uuid.UUID) (*models.StudySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE post_id = $1 AND is_active`, postID))
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateWithOwner inserts a live session with its creator already enrolled.
func (r *SessionRepo) CreateWithOwner(ctx context.Context, s *models.StudySession) error {
	s.ID = uuid.New()
	s.IsActive = true
	s.ParticipantCount = 1
	s.Participants = []uuid.UUID{s.CreatorID}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO study_sessions (id, post_id, creator_id, chat_id, participant_count, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING started_at`,
		s.ID, s.PostID, s.CreatorID, s.ChatID, s.ParticipantCount,
	).Scan(&s.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_study_sessions_active_post" {
			return ErrActiveSessionExists
		}
		return err
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO session_participants (session_id, user_id) VALUES ($1, $2)", s.ID, s.CreatorID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AddParticipant enrolls userID if the session is live and below maxParticipants.
// Enrolling an existing participant is a no-op.
func (r *SessionRepo) AddParticipant(ctx context.Context, sessionID, userID uuid.UUID, maxParticipants int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id) VALUES ($1, $2)
		ON CONFLICT (session_id, user_id) DO NOTHING`, sessionID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE study_sessions SET participant_count = participant_count + 1
		WHERE id = $1 AND is_active AND participant_count < $2`, sessionID, maxParticipants)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionFull
	}

	return tx.Commit(ctx)
}

// End marks the session inactive. It reports false when the session was already ended.
func (r *SessionRepo) End(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE study_sessions SET is_active = FALSE, ended_at = NOW() WHERE id = $1 AND is_active", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListForUser returns sessions the user created or joined, newest first.
func (r *SessionRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM study_sessions
		WHERE creator_id = $1
		   OR id IN (SELECT session_id FROM session_participants WHERE user_id = $1)
		ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	var sessions []*models.StudySession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, s := range sessions {
		if err := r.loadParticipants(ctx, s); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}
