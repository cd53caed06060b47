package services

import (
	"context"
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

func newMediaFixture(respond func(context.Context, llm.Request) (string, error), timeout time.Duration) (*MediaService, *fakeMedia, *fakeProvider) {
	store := &fakeMedia{}
	provider := &fakeProvider{respond: respond}
	return NewMediaService(store, provider, metrics.New(), timeout), store, provider
}

func TestUpload_RequiresFileURL(t *testing.T) {
	svc, store, _ := newMediaFixture(replyWith("{}"), time.Second)

	_, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{FileURL: "   ", Category: "note"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "file_url")
	assert.Empty(t, store.created)
}

func TestUpload_UnknownCategoryRejected(t *testing.T) {
	svc, _, _ := newMediaFixture(replyWith("{}"), time.Second)

	_, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{FileURL: "https://x/y.png", Category: "diploma"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "category")
}

func TestUpload_NonCertificateSkipsProvider(t *testing.T) {
	svc, store, provider := newMediaFixture(replyWith("{}"), time.Second)
	user := uuid.New()

	for _, category := range []string{"note", "other", ""} {
		media, err := svc.Upload(context.Background(), user, models.UploadMediaRequest{
			FileURL:  "https://cdn.example.com/a.png",
			Category: category,
			RawText:  "ignored",
		})
		require.NoError(t, err)
		assert.Equal(t, "New Note", media.Title)
		assert.Nil(t, media.Issuer)
		assert.Equal(t, []string{}, media.Skills)
		if category == "" {
			assert.Equal(t, models.MediaCategoryOther, media.Category)
		}
	}
	assert.Zero(t, provider.calls())
	assert.Len(t, store.created, 3)
	assert.Empty(t, store.updated)
}

func TestUpload_CertificateWithoutText(t *testing.T) {
	svc, store, provider := newMediaFixture(replyWith("{}"), time.Second)

	media, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{
		FileURL:  "https://cdn.example.com/cert.png",
		Category: "certificate",
		RawText:  "  \n ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Certificate (No text found)", media.Title)
	assert.Zero(t, provider.calls())
	require.Len(t, store.created, 1)
	assert.Equal(t, "Processing...", store.created[0].Title)
	require.Len(t, store.updated, 1)
	assert.Equal(t, "Certificate (No text found)", store.updated[0].Title)
}

func TestUpload_CertificateClassified(t *testing.T) {
	svc, store, provider := newMediaFixture(replyWith(
		`{"title": "AWS Solutions Architect", "issuer": "Amazon", "skills": ["cloud", "networking"]}`,
	), time.Second)

	media, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{
		FileURL:  "https://cdn.example.com/cert.png",
		Category: "certificate",
		RawText:  "AWS Certified Solutions Architect ... Amazon Web Services",
	})
	require.NoError(t, err)

	assert.Equal(t, "AWS Solutions Architect", media.Title)
	require.NotNil(t, media.Issuer)
	assert.Equal(t, "Amazon", *media.Issuer)
	assert.Equal(t, []string{"cloud", "networking"}, media.Skills)
	require.Len(t, store.updated, 1)
	assert.Equal(t, media.Title, store.updated[0].Title)

	require.Equal(t, 1, provider.calls())
	req := provider.requests[0]
	assert.True(t, req.JSON)
	assert.Contains(t, req.Messages[1].Content, "'AWS Certified Solutions Architect ... Amazon Web Services'")
}

func TestUpload_CertificateDefaults(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantTitle  string
		wantIssuer string
		wantSkills []string
	}{
		{"empty object", `{}`, "Certificate", "Verified Issuer", []string{}},
		{"placeholder echoed", `{"title": "Processing...", "issuer": "MIT"}`, "Verified Certificate", "MIT", []string{}},
		{"skills not a list", `{"title": "Go", "issuer": "Not found", "skills": "Not found"}`, "Go", "Not found", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newMediaFixture(replyWith(tt.reply), time.Second)
			media, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{
				FileURL: "https://x/c.png", Category: "certificate", RawText: "some text",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, media.Title)
			require.NotNil(t, media.Issuer)
			assert.Equal(t, tt.wantIssuer, *media.Issuer)
			assert.Equal(t, tt.wantSkills, media.Skills)
		})
	}
}

func TestUpload_CertificateProviderFailure(t *testing.T) {
	for name, respond := range map[string]func(context.Context, llm.Request) (string, error){
		"provider error": func(context.Context, llm.Request) (string, error) {
			return "", &llm.ProviderError{Provider: "fake", Err: errors.New("401")}
		},
		"malformed output": replyWith("not json"),
	} {
		t.Run(name, func(t *testing.T) {
			svc, store, _ := newMediaFixture(respond, time.Second)
			media, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{
				FileURL: "https://x/c.png", Category: "certificate", RawText: "some text",
			})
			require.NoError(t, err)
			assert.Equal(t, "Certificate (AI Analysis Failed)", media.Title)
			assert.Nil(t, media.Issuer)
			assert.Equal(t, []string{}, media.Skills)
			require.Len(t, store.updated, 1)
		})
	}
}

func TestUpload_CertificateTimeout(t *testing.T) {
	svc, _, _ := newMediaFixture(func(ctx context.Context, req llm.Request) (string, error) {
		<-ctx.Done()
		return "", &llm.ProviderError{Provider: "fake", Err: ctx.Err()}
	}, 20*time.Millisecond)

	start := time.Now()
	media, err := svc.Upload(context.Background(), uuid.New(), models.UploadMediaRequest{
		FileURL: "https://x/c.png", Category: "certificate", RawText: "some text",
	})
	require.NoError(t, err)
	assert.Equal(t, "Certificate (AI Analysis Failed)", media.Title)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestListForUser_EmptyIsNotNil(t *testing.T) {
	svc, _, _ := newMediaFixture(replyWith("{}"), time.Second)
	media, err := svc.ListForUser(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, media)
	assert.Empty(t, media)
}
