package models

import (
	"time"

	"github.com/google/uuid"
)

type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type ConversationNote struct {
	ID                   uuid.UUID    `json:"id"`
	SessionID            uuid.UUID    `json:"session_id"`
	Content              string       `json:"content"`
	KeyConcepts          []string     `json:"key_concepts"`
	Definitions          []Definition `json:"definitions"`
	StudyTips            []string     `json:"study_tips"`
	ResourcesMentioned   []string     `json:"resources_mentioned"`
	MessageCountAnalyzed int          `json:"message_count_analyzed"`
	CreatedAt            time.Time    `json:"created_at"`
}

// ChatMessage is one line of the externally hosted chat, as supplied by the client.
type ChatMessage struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type AnalyzeRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1"`
}
