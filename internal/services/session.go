package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studygroup-backend/internal/lock"
	"studygroup-backend/internal/metrics"
	"studygroup-backend/internal/models"
	"studygroup-backend/internal/repository"
)

type PostReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StudyPost, error)
}

type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
	GetActiveByPost(ctx context.Context, postID uuid.UUID) (*models.StudySession, error)
	CreateWithOwner(ctx context.Context, s *models.StudySession) error
	AddParticipant(ctx context.Context, sessionID, userID uuid.UUID, maxParticipants int) error
	End(ctx context.Context, id uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error)
}

type NoteReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConversationNote, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ConversationNote, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationNote, error)
}

// SessionService runs the join/end lifecycle of study sessions. Joins for the
// same post are serialized through the locker.
type SessionService struct {
	posts    PostReader
	sessions SessionStore
	notes    NoteReader
	locker   lock.Locker
	metrics  *metrics.Metrics
}

func NewSessionService(posts PostReader, sessions SessionStore, notes NoteReader, locker lock.Locker, m *metrics.Metrics) *SessionService {
	return &SessionService{
		posts:    posts,
		sessions: sessions,
		notes:    notes,
		locker:   locker,
		metrics:  m,
	}
}

// Join puts userID into the post's live session, starting one owned by the
// post author if none exists. Joining twice returns the session unchanged.
func (s *SessionService) Join(ctx context.Context, postID, userID uuid.UUID) (*models.StudySession, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, notFoundOr(err, "Study post not found")
	}
	if !post.IsActive {
		return nil, &NotFoundError{Message: "Study post not found"}
	}

	unlock, err := s.locker.Lock(ctx, "post:"+postID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to lock post %s: %w", postID, err)
	}
	defer unlock()

	session, created, err := s.activeOrStart(ctx, post)
	if err != nil {
		s.metrics.SessionJoins.WithLabelValues("error").Inc()
		return nil, err
	}

	if session.IsParticipant(userID) {
		if created {
			s.metrics.SessionJoins.WithLabelValues("created").Inc()
		} else {
			s.metrics.SessionJoins.WithLabelValues("already_member").Inc()
		}
		return session, nil
	}

	if session.ParticipantCount >= models.MaxSessionParticipants {
		s.metrics.SessionJoins.WithLabelValues("full").Inc()
		return nil, &CapacityExceededError{Message: "Session is full"}
	}

	if err := s.sessions.AddParticipant(ctx, session.ID, userID, models.MaxSessionParticipants); err != nil {
		if errors.Is(err, repository.ErrSessionFull) {
			s.metrics.SessionJoins.WithLabelValues("full").Inc()
			return nil, &CapacityExceededError{Message: "Session is full"}
		}
		s.metrics.SessionJoins.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	s.metrics.SessionJoins.WithLabelValues("joined").Inc()
	return s.sessions.GetByID(ctx, session.ID)
}

// activeOrStart returns the post's live session, creating it when missing.
func (s *SessionService) activeOrStart(ctx context.Context, post *models.StudyPost) (*models.StudySession, bool, error) {
	session, err := s.sessions.GetActiveByPost(ctx, post.ID)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to load active session: %w", err)
	}

	chatID, err := generateToken(16)
	if err != nil {
		return nil, false, err
	}

	session = &models.StudySession{
		PostID:    post.ID,
		CreatorID: post.UserID,
		ChatID:    chatID,
	}
	if err := s.sessions.CreateWithOwner(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			// Another node started it between our read and insert.
			existing, getErr := s.sessions.GetActiveByPost(ctx, post.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load active session: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Started session %s for post %s", session.ID, post.ID)
	return session, true, nil
}

// End closes the session. Only its creator or participants may end it, and
// ending an ended session changes nothing.
func (s *SessionService) End(ctx context.Context, sessionID, userID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return notFoundOr(err, "Session not found")
	}
	if !session.HasMember(userID) {
		return &ForbiddenError{Message: "Only session members can end this session"}
	}

	ended, err := s.sessions.End(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if ended {
		log.Printf("Session %s ended by %s", sessionID, userID)
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "Session not found")
	}
	if !session.HasMember(userID) {
		return nil, &ForbiddenError{Message: "You are not a member of this session"}
	}
	return session, nil
}

func (s *SessionService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error) {
	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*models.StudySession{}
	}
	return sessions, nil
}

func (s *SessionService) ListNotes(ctx context.Context, sessionID, userID uuid.UUID) ([]*models.ConversationNote, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	notes, err := s.notes.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*models.ConversationNote{}
	}
	return notes, nil
}

func (s *SessionService) ListNotesForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationNote, error) {
	notes, err := s.notes.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*models.ConversationNote{}
	}
	return notes, nil
}

func (s *SessionService) GetNote(ctx context.Context, noteID, userID uuid.UUID) (*models.ConversationNote, error) {
	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, notFoundOr(err, "Note not found")
	}
	if _, err := s.Get(ctx, note.SessionID, userID); err != nil {
		return nil, err
	}
	return note, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
