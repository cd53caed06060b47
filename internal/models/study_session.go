package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSessionParticipants caps a session, the post owner included.
const MaxSessionParticipants = 5

type StudySession struct {
	ID               uuid.UUID   `json:"id"`
	PostID           uuid.UUID   `json:"post_id"`
	CreatorID        uuid.UUID   `json:"creator_id"`
	ChatID           string      `json:"chat_id"`
	Participants     []uuid.UUID `json:"participants"`
	ParticipantCount int         `json:"participant_count"`
	IsActive         bool        `json:"is_active"`
	StartedAt        time.Time   `json:"started_at"`
	EndedAt          *time.Time  `json:"ended_at,omitempty"`
	LastAIAnalysis   *time.Time  `json:"last_ai_analysis,omitempty"`
}

// HasMember reports whether userID created the session or joined it.
func (s *StudySession) HasMember(userID uuid.UUID) bool {
	if s.CreatorID == userID {
		return true
	}
	return s.IsParticipant(userID)
}

func (s *StudySession) IsParticipant(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
