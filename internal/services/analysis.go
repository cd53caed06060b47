package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"studygroup-backend/internal/llm"
	"studygroup-backend/internal/metrics"
	"studygroup-backend/internal/models"
)

const (
	analysisSystemPrompt = "You are a helpful assistant that outputs only valid JSON."
	analysisTemperature  = 0.5
	analysisMaxTokens    = 2048
	defaultNoteSummary   = "No summary provided"
	defaultAuthor        = "User"
)

type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Finish(ctx context.Context, id uuid.UUID, result models.AnalysisResult) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type NoteWriter interface {
	CreateForSession(ctx context.Context, n *models.ConversationNote) error
}

type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier fans a realtime message out to users.
type Notifier interface {
	Publish(ctx context.Context, userIDs []uuid.UUID, msg models.WSMessage)
}

type NotesMailer interface {
	SendNotesReady(to, name string, sessionID, noteID uuid.UUID) error
}

// analysisPayload is stored as the job config and travels with the queued job.
type analysisPayload struct {
	Messages []models.ChatMessage `json:"messages"`
}

// analysisOutput is the JSON object the model is asked to return. Fields are
// decoded leniently: models often return objects where strings were asked for.
type analysisOutput struct {
	KeyConcepts json.RawMessage `json:"key_concepts"`
	Definitions json.RawMessage `json:"definitions"`
	StudyTips   json.RawMessage `json:"study_tips"`
	Resources   json.RawMessage `json:"resources"`
	Summary     json.RawMessage `json:"summary"`
}

// AnalysisService accepts conversation analysis requests and runs them on the worker side.
type AnalysisService struct {
	sessions SessionReader
	jobs     JobStore
	queue    JobQueue
	notes    NoteWriter
	users    UserReader
	provider llm.Provider
	notifier Notifier
	mailer   NotesMailer
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewAnalysisService(
	sessions SessionReader,
	jobs JobStore,
	queue JobQueue,
	notes NoteWriter,
	users UserReader,
	provider llm.Provider,
	notifier Notifier,
	mailer NotesMailer,
	m *metrics.Metrics,
	timeout time.Duration,
) *AnalysisService {
	return &AnalysisService{
		sessions: sessions,
		jobs:     jobs,
		queue:    queue,
		notes:    notes,
		users:    users,
		provider: provider,
		notifier: notifier,
		mailer:   mailer,
		metrics:  m,
		timeout:  timeout,
	}
}

// Submit records a pending analysis job and queues it. It never waits on the model.
func (s *AnalysisService) Submit(ctx context.Context, sessionID, userID uuid.UUID, req models.AnalyzeRequest) (*models.Job, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "Session not found")
	}
	if !session.HasMember(userID) {
		return nil, &ForbiddenError{Message: "You are not a member of this session"}
	}

	payload, err := json.Marshal(analysisPayload{Messages: req.Messages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}

	job := &models.Job{
		UserID:      userID,
		Type:        models.JobTypeConversationAnalysis,
		ReferenceID: sessionID,
		ConfigJSON:  payload,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Printf("failed to enqueue conversation-analysis job %s: %v", job.ID, err)
		_ = s.jobs.Finish(ctx, job.ID, models.AnalysisResult{Status: "error", Message: "failed to enqueue job"})
		return nil, err
	}

	s.metrics.AnalysisJobs.WithLabelValues("submitted").Inc()
	return job, nil
}

// GetJob returns a job the user submitted.
func (s *AnalysisService) GetJob(ctx context.Context, jobID, userID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, notFoundOr(err, "Job not found")
	}
	if job.UserID != userID {
		return nil, &NotFoundError{Message: "Job not found"}
	}
	return job, nil
}

// Process runs a dequeued analysis job to completion and records its result.
// Failures end up in the job result only.
func (s *AnalysisService) Process(ctx context.Context, job *models.Job) models.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.sessions.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return s.fail(ctx, job, []uuid.UUID{job.UserID}, fmt.Errorf("failed to load session: %w", notFoundOr(err, "session not found")))
	}
	members := sessionMembers(session)

	s.notifier.Publish(ctx, members, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:     job.ID,
			SessionID: session.ID,
			Step:      1,
			StepName:  "Analyzing conversation",
		},
	})

	var payload analysisPayload
	if err := json.Unmarshal(job.ConfigJSON, &payload); err != nil {
		return s.fail(ctx, job, members, fmt.Errorf("invalid job payload: %w", err))
	}

	note, err := s.Analyze(ctx, session.ID, payload.Messages)
	if err != nil {
		return s.fail(ctx, job, members, err)
	}

	noteID := note.ID
	result := models.AnalysisResult{Status: "success", NoteID: &noteID}
	if err := s.jobs.Finish(context.WithoutCancel(ctx), job.ID, result); err != nil {
		log.Printf("Failed to record result of job %s: %v", job.ID, err)
	}
	s.metrics.AnalysisJobs.WithLabelValues("success").Inc()
	log.Printf("Job %s completed: note %s for session %s", job.ID, note.ID, session.ID)

	s.notifier.Publish(ctx, members, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			SessionID:  session.ID,
			ResultID:   note.ID,
			ResultType: "note",
		},
	})
	s.sendNotesReady(context.WithoutCancel(ctx), session, note)

	return result
}

func (s *AnalysisService) fail(ctx context.Context, job *models.Job, members []uuid.UUID, err error) models.AnalysisResult {
	result := models.AnalysisResult{Status: "error", Message: err.Error()}
	log.Printf("Job %s failed: %s", job.ID, result.Message)

	if finishErr := s.jobs.Finish(context.WithoutCancel(ctx), job.ID, result); finishErr != nil {
		log.Printf("Failed to record result of job %s: %v", job.ID, finishErr)
	}
	s.metrics.AnalysisJobs.WithLabelValues("error").Inc()

	if len(members) > 0 {
		s.notifier.Publish(context.WithoutCancel(ctx), members, models.WSMessage{
			Type: "error",
			Payload: models.ErrorEvent{
				JobID:        job.ID,
				SessionID:    job.ReferenceID,
				ErrorCode:    "ANALYSIS_FAILED",
				ErrorMessage: result.Message,
			},
		})
	}
	return result
}

// Analyze asks the model for study notes on messages and stores them against the session.
func (s *AnalysisService) Analyze(ctx context.Context, sessionID uuid.UUID, messages []models.ChatMessage) (*models.ConversationNote, error) {
	raw, err := s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: analysisSystemPrompt},
			{Role: llm.RoleUser, Content: buildAnalysisPrompt(BuildTranscript(messages))},
		},
		JSON:        true,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var out analysisOutput
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return nil, &llm.ProviderError{Provider: s.provider.Name(), Err: err}
	}

	note := out.toNote(sessionID, len(messages))
	if err := s.notes.CreateForSession(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	return note, nil
}

func (s *AnalysisService) sendNotesReady(ctx context.Context, session *models.StudySession, note *models.ConversationNote) {
	creator, err := s.users.GetByID(ctx, session.CreatorID)
	if err != nil {
		log.Printf("Failed to load session creator %s: %v", session.CreatorID, err)
		return
	}
	if creator.Email == "" {
		return
	}
	name := creator.FullName
	if name == "" {
		name = creator.Username
	}
	if err := s.mailer.SendNotesReady(creator.Email, name, session.ID, note.ID); err != nil {
		log.Printf("Failed to send notes-ready email for session %s: %v", session.ID, err)
	}
}

// BuildTranscript renders messages as "author: text" lines in their original order.
func BuildTranscript(messages []models.ChatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		author := m.Author
		if author == "" {
			author = defaultAuthor
		}
		b.WriteString(author)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

func buildAnalysisPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Analyze this study conversation and extract key learning points.\n\n")
	b.WriteString("Conversation:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nReturn exactly a JSON object with:\n")
	b.WriteString("1. key_concepts (list)\n")
	b.WriteString("2. definitions (list of {'term': '...', 'definition': '...'})\n")
	b.WriteString("3. study_tips (list)\n")
	b.WriteString("4. resources (list)\n")
	b.WriteString("5. summary (string)")
	return b.String()
}

func (o analysisOutput) toNote(sessionID uuid.UUID, messageCount int) *models.ConversationNote {
	note := &models.ConversationNote{
		SessionID:            sessionID,
		Content:              itemText(o.Summary),
		KeyConcepts:          stringList(o.KeyConcepts),
		Definitions:          definitionList(o.Definitions),
		StudyTips:            stringList(o.StudyTips),
		ResourcesMentioned:   stringList(o.Resources),
		MessageCountAnalyzed: messageCount,
	}
	if note.Content == "" {
		note.Content = defaultNoteSummary
	}
	return note
}

// stringList reads a JSON list whose items may be strings, numbers or objects.
// A bare scalar counts as a one item list. Never returns nil.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if text := itemText(raw); text != "" {
			out = append(out, text)
		}
		return out
	}
	for _, item := range items {
		if text := itemText(item); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// itemText renders one list item as text. Objects use their title or name,
// followed by a url when present; other objects keep their JSON form.
func itemText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		label := firstString(obj, "title", "name", "term", "text")
		if url := firstString(obj, "url", "link"); url != "" {
			if label == "" {
				return url
			}
			return label + " (" + url + ")"
		}
		if label != "" {
			return label
		}
	}
	return string(raw)
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// definitionList accepts {term, definition} objects and "term: definition" strings.
func definitionList(raw json.RawMessage) []models.Definition {
	out := []models.Definition{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		var d models.Definition
		if err := json.Unmarshal(item, &d); err == nil && d.Term != "" {
			out = append(out, d)
			continue
		}
		text := itemText(item)
		if text == "" {
			continue
		}
		term, def, _ := strings.Cut(text, ":")
		out = append(out, models.Definition{Term: strings.TrimSpace(term), Definition: strings.TrimSpace(def)})
	}
	return out
}

// sessionMembers lists the creator and participants without duplicates.
func sessionMembers(s *models.StudySession) []uuid.UUID {
	seen := map[uuid.UUID]bool{s.CreatorID: true}
	members := []uuid.UUID{s.CreatorID}
	for _, p := range s.Participants {
		if !seen[p] {
			seen[p] = true
			members = append(members, p)
		}
	}
	return members
}
