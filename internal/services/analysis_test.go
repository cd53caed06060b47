package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-backend/internal/llm"
	"studygroup-backend/internal/metrics"
	"studygroup-backend/internal/models"
)

type analysisFixture struct {
	svc      *AnalysisService
	session  *models.StudySession
	creator  *models.User
	member   uuid.UUID
	jobs     *fakeJobs
	queue    *fakeQueue
	notes    *fakeNotes
	provider *fakeProvider
	notifier *fakeNotifier
	mailer   *fakeMailer
}

func newAnalysisFixture(t *testing.T, respond func(context.Context, llm.Request) (string, error)) *analysisFixture {
	t.Helper()
	creator := &models.User{ID: uuid.New(), Username: "ada", Email: "ada@example.com", FullName: "Ada L"}
	member := uuid.New()
	session := &models.StudySession{
		ID:               uuid.New(),
		PostID:           uuid.New(),
		CreatorID:        creator.ID,
		ChatID:           "0123456789abcdef0123456789abcdef",
		Participants:     []uuid.UUID{creator.ID, member},
		ParticipantCount: 2,
		IsActive:         true,
	}

	f := &analysisFixture{
		session:  session,
		creator:  creator,
		member:   member,
		jobs:     newFakeJobs(),
		queue:    &fakeQueue{},
		notes:    &fakeNotes{},
		provider: &fakeProvider{respond: respond},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
	}
	f.svc = NewAnalysisService(
		newFakeSessions(session),
		f.jobs,
		f.queue,
		f.notes,
		&fakeUsers{users: map[uuid.UUID]*models.User{creator.ID: creator}},
		f.provider,
		f.notifier,
		f.mailer,
		metrics.New(),
		time.Second,
	)
	return f
}

func sampleMessages() []models.ChatMessage {
	return []models.ChatMessage{
		{Author: "ada", Text: "What is a graph?"},
		{Author: "", Text: "Vertices and edges."},
		{Author: "bob", Text: "And a tree is acyclic."},
	}
}

func TestBuildTranscript(t *testing.T) {
	got := BuildTranscript(sampleMessages())
	assert.Equal(t, "ada: What is a graph?\nUser: Vertices and edges.\nbob: And a tree is acyclic.", got)
	assert.Equal(t, "", BuildTranscript(nil))
}

func TestBuildAnalysisPrompt_EmbedsTranscript(t *testing.T) {
	prompt := buildAnalysisPrompt("ada: hi")
	assert.Contains(t, prompt, "Conversation:\nada: hi\n\n")
	for _, key := range []string{"key_concepts", "definitions", "study_tips", "resources", "summary"} {
		assert.Contains(t, prompt, key)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))

	for _, req := range []models.AnalyzeRequest{{}, {Messages: []models.ChatMessage{}}} {
		_, err := f.svc.Submit(context.Background(), f.session.ID, f.member, req)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		assert.Contains(t, verr.Fields, "messages")
	}
	assert.Empty(t, f.jobs.jobs)
	assert.Empty(t, f.queue.enqueued)
}

func TestSubmit_UnknownSessionAndNonMember(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))
	req := models.AnalyzeRequest{Messages: sampleMessages()}

	_, err := f.svc.Submit(context.Background(), uuid.New(), f.member, req)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = f.svc.Submit(context.Background(), f.session.ID, uuid.New(), req)
	var forbidden *ForbiddenError
	assert.True(t, errors.As(err, &forbidden))
}

func TestSubmit_QueuesPendingJobWithoutCallingProvider(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))

	job, err := f.svc.Submit(context.Background(), f.session.ID, f.member, models.AnalyzeRequest{Messages: sampleMessages()})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobTypeConversationAnalysis, job.Type)
	assert.Equal(t, f.session.ID, job.ReferenceID)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, job.ID, f.queue.enqueued[0].ID)
	assert.Zero(t, f.provider.calls())

	var payload analysisPayload
	require.NoError(t, json.Unmarshal(job.ConfigJSON, &payload))
	assert.Equal(t, sampleMessages(), payload.Messages)
}

func TestSubmit_EnqueueFailureFailsJob(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))
	f.queue.err = errors.New("redis down")

	_, err := f.svc.Submit(context.Background(), f.session.ID, f.member, models.AnalyzeRequest{Messages: sampleMessages()})
	require.Error(t, err)
	require.Len(t, f.jobs.results, 1)
	for _, result := range f.jobs.results {
		assert.Equal(t, "error", result.Status)
	}
}

func submitAndProcess(t *testing.T, f *analysisFixture) (*models.Job, models.AnalysisResult) {
	t.Helper()
	job, err := f.svc.Submit(context.Background(), f.session.ID, f.member, models.AnalyzeRequest{Messages: sampleMessages()})
	require.NoError(t, err)
	return job, f.svc.Process(context.Background(), f.queue.enqueued[0])
}

func TestProcess_Success(t *testing.T) {
	f := newAnalysisFixture(t, replyWith(`{
		"key_concepts": ["graph", "tree"],
		"definitions": [{"term": "tree", "definition": "acyclic connected graph"}],
		"study_tips": ["draw it"],
		"resources": ["CLRS"],
		"summary": "Graphs and trees."
	}`))

	job, result := submitAndProcess(t, f)

	require.Equal(t, "success", result.Status)
	require.NotNil(t, result.NoteID)
	require.Len(t, f.notes.notes, 1)
	note := f.notes.notes[0]
	assert.Equal(t, *result.NoteID, note.ID)
	assert.Equal(t, f.session.ID, note.SessionID)
	assert.Equal(t, "Graphs and trees.", note.Content)
	assert.Equal(t, []string{"graph", "tree"}, note.KeyConcepts)
	assert.Equal(t, []models.Definition{{Term: "tree", Definition: "acyclic connected graph"}}, note.Definitions)
	assert.Equal(t, []string{"draw it"}, note.StudyTips)
	assert.Equal(t, []string{"CLRS"}, note.ResourcesMentioned)
	assert.Equal(t, 3, note.MessageCountAnalyzed)

	assert.Equal(t, result, f.jobs.results[job.ID])
	assert.Equal(t, models.JobStatusCompleted, f.jobs.statuses[job.ID])

	require.Len(t, f.provider.requests, 1)
	req := f.provider.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, 0.5, req.Temperature)
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant that outputs only valid JSON.", req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "ada: What is a graph?\nUser: Vertices and edges.\nbob: And a tree is acyclic.")

	assert.Equal(t, []string{"status_update", "completed"}, f.notifier.types())
	assert.ElementsMatch(t, []uuid.UUID{f.creator.ID, f.member}, f.notifier.sent[1].users)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ada@example.com", f.mailer.sent[0].to)
	assert.Equal(t, note.ID, f.mailer.sent[0].noteID)
}

func TestProcess_MissingFieldsGetDefaults(t *testing.T) {
	f := newAnalysisFixture(t, replyWith(`{"key_concepts": ["only this"]}`))

	_, result := submitAndProcess(t, f)
	require.Equal(t, "success", result.Status)

	note := f.notes.notes[0]
	assert.Equal(t, "No summary provided", note.Content)
	assert.Equal(t, []string{"only this"}, note.KeyConcepts)
	assert.NotNil(t, note.Definitions)
	assert.Empty(t, note.Definitions)
	assert.NotNil(t, note.StudyTips)
	assert.NotNil(t, note.ResourcesMentioned)
}

func TestProcess_FencedJSONAccepted(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("```json\n{\"summary\": \"ok\"}\n```"))

	_, result := submitAndProcess(t, f)
	require.Equal(t, "success", result.Status)
	assert.Equal(t, "ok", f.notes.notes[0].Content)
}

func TestProcess_ProviderFailureRecordedOnJobOnly(t *testing.T) {
	f := newAnalysisFixture(t, func(context.Context, llm.Request) (string, error) {
		return "", &llm.ProviderError{Provider: "fake", Err: errors.New("503 upstream")}
	})

	job, result := submitAndProcess(t, f)

	assert.Equal(t, "error", result.Status)
	assert.Nil(t, result.NoteID)
	assert.Contains(t, result.Message, "503 upstream")
	assert.Empty(t, f.notes.notes)
	assert.Equal(t, models.JobStatusFailed, f.jobs.statuses[job.ID])
	assert.Equal(t, []string{"status_update", "error"}, f.notifier.types())
	assert.Empty(t, f.mailer.sent)
	assert.Equal(t, 1, f.provider.calls(), "failed jobs are not retried")
}

func TestProcess_ObjectListItemsAreKept(t *testing.T) {
	f := newAnalysisFixture(t, replyWith(`{
		"key_concepts": ["graphs", {"name": "BFS"}],
		"definitions": [{"term": "tree", "definition": "acyclic graph"}, "heap: priority structure"],
		"study_tips": [{"text": "draw it out"}, 3],
		"resources": [{"title": "CLRS", "url": "https://example.com"}, "Khan Academy"],
		"summary": "graphs"
	}`))

	_, result := submitAndProcess(t, f)

	require.Equal(t, "success", result.Status, result.Message)
	require.Len(t, f.notes.notes, 1)
	note := f.notes.notes[0]
	assert.Equal(t, "graphs", note.Content)
	assert.Equal(t, []string{"graphs", "BFS"}, note.KeyConcepts)
	assert.Equal(t, []models.Definition{
		{Term: "tree", Definition: "acyclic graph"},
		{Term: "heap", Definition: "priority structure"},
	}, note.Definitions)
	assert.Equal(t, []string{"draw it out", "3"}, note.StudyTips)
	assert.Equal(t, []string{"CLRS (https://example.com)", "Khan Academy"}, note.ResourcesMentioned)
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"absent", ``, []string{}},
		{"null", `null`, []string{}},
		{"strings", `["a", " b "]`, []string{"a", "b"}},
		{"bare string", `"Not found"`, []string{"Not found"}},
		{"url only", `[{"url": "https://x.dev"}]`, []string{"https://x.dev"}},
		{"unknown object", `[{"k": 1}]`, []string{`{"k": 1}`}},
		{"skips empties", `["", null, "x"]`, []string{"x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stringList(json.RawMessage(tc.raw)))
		})
	}
}

func TestProcess_MalformedOutputFails(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("Sorry, I can't help with that."))

	job, result := submitAndProcess(t, f)

	assert.Equal(t, "error", result.Status)
	assert.Empty(t, f.notes.notes)
	assert.Equal(t, models.JobStatusFailed, f.jobs.statuses[job.ID])
}

func TestProcess_NoteStoreFailureLeavesNoNote(t *testing.T) {
	f := newAnalysisFixture(t, replyWith(`{"summary": "x"}`))
	f.notes.err = errors.New("tx aborted")

	_, result := submitAndProcess(t, f)

	assert.Equal(t, "error", result.Status)
	assert.Contains(t, result.Message, "failed to save note")
	assert.Empty(t, f.notes.notes)
}

func TestProcess_SessionGone(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))
	job := &models.Job{ID: uuid.New(), UserID: f.member, Type: models.JobTypeConversationAnalysis, ReferenceID: uuid.New()}

	result := f.svc.Process(context.Background(), job)

	assert.Equal(t, "error", result.Status)
	assert.Zero(t, f.provider.calls())
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []uuid.UUID{f.member}, f.notifier.sent[0].users)
}

func TestGetJob_OwnerOnly(t *testing.T) {
	f := newAnalysisFixture(t, replyWith("{}"))
	job, err := f.svc.Submit(context.Background(), f.session.ID, f.member, models.AnalyzeRequest{Messages: sampleMessages()})
	require.NoError(t, err)

	got, err := f.svc.GetJob(context.Background(), job.ID, f.member)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = f.svc.GetJob(context.Background(), job.ID, f.creator.ID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestSessionMembers_Deduplicates(t *testing.T) {
	creator, a := uuid.New(), uuid.New()
	members := sessionMembers(&models.StudySession{CreatorID: creator, Participants: []uuid.UUID{creator, a, a}})
	assert.Equal(t, []uuid.UUID{creator, a}, members)
}
