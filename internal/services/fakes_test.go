package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studygroup-backend/internal/llm"
	"studygroup-backend/internal/models"
)

type fakePosts struct {
	mu          sync.Mutex
	posts       map[uuid.UUID]*models.StudyPost
	lastFilter  models.PostFilter
	deactivated []uuid.UUID
}

func newFakePosts(posts ...*models.StudyPost) *fakePosts {
	f := &fakePosts{posts: make(map[uuid.UUID]*models.StudyPost)}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakePosts) Create(ctx context.Context, p *models.StudyPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New()
	p.IsActive = true
	p.CreatedAt = time.Now()
	f.posts[p.ID] = p
	return nil
}

func (f *fakePosts) GetByID(ctx context.Context, id uuid.UUID) (*models.StudyPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (f *fakePosts) List(ctx context.Context, filter models.PostFilter) ([]*models.StudyPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return nil, nil
}

func (f *fakePosts) Deactivate(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, id)
	f.posts[id].IsActive = false
	return nil
}

// fakeSessions makes each call atomic but, unlike the SQL repo, does not
// enforce the participant cap or the one-active-session rule itself.
type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.StudySession
	creates   int
	addErr    error
	createErr error
}

func newFakeSessions(sessions ...*models.StudySession) *fakeSessions {
	f := &fakeSessions{sessions: make(map[uuid.UUID]*models.StudySession)}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func cloneSession(s *models.StudySession) *models.StudySession {
	c := *s
	c.Participants = append([]uuid.UUID(nil), s.Participants...)
	return &c
}

func (f *fakeSessions) GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneSession(s), nil
}

func (f *fakeSessions) GetActiveByPost(ctx context.Context, postID uuid.UUID) (*models.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.PostID == postID && s.IsActive {
			return cloneSession(s), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) CreateWithOwner(ctx context.Context, s *models.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	s.ID = uuid.New()
	s.IsActive = true
	s.ParticipantCount = 1
	s.Participants = []uuid.UUID{s.CreatorID}
	s.StartedAt = time.Now()
	f.sessions[s.ID] = cloneSession(s)
	f.creates++
	return nil
}

func (f *fakeSessions) AddParticipant(ctx context.Context, sessionID, userID uuid.UUID, maxParticipants int) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s.IsParticipant(userID) {
		return nil
	}
	s.Participants = append(s.Participants, userID)
	s.ParticipantCount++
	return nil
}

func (f *fakeSessions) End(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	if !s.IsActive {
		return false, nil
	}
	now := time.Now()
	s.IsActive = false
	s.EndedAt = &now
	return true, nil
}

func (f *fakeSessions) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StudySession
	for _, s := range f.sessions {
		if s.HasMember(userID) {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

type fakeNotes struct {
	mu    sync.Mutex
	notes []*models.ConversationNote
	err   error
}

func (f *fakeNotes) CreateForSession(ctx context.Context, n *models.ConversationNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotes) GetByID(ctx context.Context, id uuid.UUID) (*models.ConversationNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeNotes) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ConversationNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ConversationNote
	for _, n := range f.notes {
		if n.SessionID == sessionID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotes) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationNote, error) {
	return nil, nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(ctx context.Context, req llm.Request) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(ctx, req)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func replyWith(content string) func(context.Context, llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return content, nil }
}

type fakeJobs struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.Job
	results  map[uuid.UUID]models.AnalysisResult
	statuses map[uuid.UUID]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs:     make(map[uuid.UUID]*models.Job),
		results:  make(map[uuid.UUID]models.AnalysisResult),
		statuses: make(map[uuid.UUID]string),
	}
}

func (f *fakeJobs) Create(ctx context.Context, j *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.ID = uuid.New()
	j.Status = models.JobStatusPending
	f.jobs[j.ID] = j
	f.statuses[j.ID] = j.Status
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return j, nil
}

func (f *fakeJobs) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeJobs) Finish(ctx context.Context, id uuid.UUID, result models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = result
	if result.Status == "success" {
		f.statuses[id] = models.JobStatusCompleted
	} else {
		f.statuses[id] = models.JobStatusFailed
	}
	return nil
}

type fakeQueue struct {
	enqueued []*models.Job
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

type published struct {
	users []uuid.UUID
	msg   models.WSMessage
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakeNotifier) Publish(ctx context.Context, userIDs []uuid.UUID, msg models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{users: userIDs, msg: msg})
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		out = append(out, p.msg.Type)
	}
	return out
}

type mailed struct {
	to, name          string
	sessionID, noteID uuid.UUID
}

type fakeMailer struct {
	sent []mailed
}

func (f *fakeMailer) SendNotesReady(to, name string, sessionID, noteID uuid.UUID) error {
	f.sent = append(f.sent, mailed{to: to, name: name, sessionID: sessionID, noteID: noteID})
	return nil
}

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

type fakeMedia struct {
	mu      sync.Mutex
	created []*models.UserMedia
	updated []models.UserMedia
}

func (f *fakeMedia) Create(ctx context.Context, m *models.UserMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	c := *m
	f.created = append(f.created, &c)
	return nil
}

func (f *fakeMedia) UpdateClassification(ctx context.Context, m *models.UserMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, *m)
	return nil
}

func (f *fakeMedia) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.UserMedia
	for _, m := range f.created {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}
