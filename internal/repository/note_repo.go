package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

type NoteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *NoteRepo {
	return &NoteRepo{pool: pool}
}

const noteColumns = `n.id, n.session_id, n.content, n.key_concepts, n.definitions, n.study_tips,
	n.resources_mentioned, n.message_count_analyzed, n.created_at`

// CreateForSession stores the note and stamps the session's last_ai_analysis
// in the same transaction.
func (r *NoteRepo) CreateForSession(ctx context.Context, n *models.ConversationNote) error {
	n.ID = uuid.New()

	concepts, _ := json.Marshal(n.KeyConcepts)
	definitions, _ := json.Marshal(n.Definitions)
	tips, _ := json.Marshal(n.StudyTips)
	resources, _ := json.Marshal(n.ResourcesMentioned)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO conversation_notes
			(id, session_id, content, key_concepts, definitions, study_tips, resources_mentioned, message_count_analyzed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		n.ID, n.SessionID, n.Content, concepts, definitions, tips, resources, n.MessageCountAnalyzed,
	).Scan(&n.CreatedAt)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, "UPDATE study_sessions SET last_ai_analysis = $1 WHERE id = $2", n.CreatedAt, n.SessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}

func scanNote(row pgx.Row) (*models.ConversationNote, error) {
	n := &models.ConversationNote{}
	var concepts, definitions, tips, resources []byte
	if err := row.Scan(
		&n.ID, &n.SessionID, &n.Content, &concepts, &definitions, &tips, &resources,
		&n.MessageCountAnalyzed, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(concepts, &n.KeyConcepts); err != nil {
		return nil, fmt.Errorf("failed to decode key_concepts: %w", err)
	}
	if err := json.Unmarshal(definitions, &n.Definitions); err != nil {
		return nil, fmt.Errorf("failed to decode definitions: %w", err)
	}
	if err := json.Unmarshal(tips, &n.StudyTips); err != nil {
		return nil, fmt.Errorf("failed to decode study_tips: %w", err)
	}
	if err := json.Unmarshal(resources, &n.ResourcesMentioned); err != nil {
		return nil, fmt.Errorf("failed to decode resources_mentioned: %w", err)
	}
	return n, nil
}

func (r *NoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ConversationNote, error) {
	return scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM conversation_notes n WHERE n.id = $1`, id))
}

func (r *NoteRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ConversationNote, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM conversation_notes n
		WHERE n.session_id = $1 ORDER BY n.created_at DESC`, sessionID)
}

// ListForUser returns notes from every session the user created or joined.
func (r *NoteRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationNote, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM conversation_notes n
		JOIN study_sessions s ON s.id = n.session_id
		WHERE s.creator_id = $1
		   OR s.id IN (SELECT session_id FROM session_participants WHERE user_id = $1)
		ORDER BY n.created_at DESC`, userID)
}

func (r *NoteRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.ConversationNote, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.ConversationNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
