package services

import (
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
	certificateSystemPrompt = "You are a helpful assistant that outputs only JSON."

	titleProcessing          = "Processing..."
	titleNewNote             = "New Note"
	titleCertificate         = "Certificate"
	titleVerifiedCertificate = "Verified Certificate"
	titleAnalysisFailed      = "Certificate (AI Analysis Failed)"
	titleNoText              = "Certificate (No text found)"
	defaultIssuer            = "Verified Issuer"
)

type MediaStore interface {
	Create(ctx context.Context, m *models.UserMedia) error
	UpdateClassification(ctx context.Context, m *models.UserMedia) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserMedia, error)
}

type MediaService struct {
	media    MediaStore
	provider llm.Provider
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewMediaService(media MediaStore, provider llm.Provider, m *metrics.Metrics, timeout time.Duration) *MediaService {
	return &MediaService{
		media:    media,
		provider: provider,
		metrics:  m,
		timeout:  timeout,
	}
}

// certificateInfo is the model's reading of a certificate. Skills tolerates a
// bare string such as "Not found".
type certificateInfo struct {
	Title  string          `json:"title"`
	Issuer string          `json:"issuer"`
	Skills json.RawMessage `json:"skills"`
}

func (c certificateInfo) skillList() []string {
	var list []string
	if err := json.Unmarshal(c.Skills, &list); err == nil {
		return list
	}
	return nil
}

// Upload records a media reference. Certificates are classified inline; a
// failed classification only changes the stored title.
func (s *MediaService) Upload(ctx context.Context, userID uuid.UUID, req models.UploadMediaRequest) (*models.UserMedia, error) {
	req.FileURL = strings.TrimSpace(req.FileURL)
	req.Category = strings.TrimSpace(req.Category)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Category == "" {
		req.Category = models.MediaCategoryOther
	}

	title := titleNewNote
	if req.Category == models.MediaCategoryCertificate {
		title = titleProcessing
	}

	media := &models.UserMedia{
		UserID:   userID,
		FileURL:  req.FileURL,
		Category: req.Category,
		Title:    title,
		Skills:   []string{},
	}
	if err := s.media.Create(ctx, media); err != nil {
		return nil, fmt.Errorf("failed to save media: %w", err)
	}

	if media.Category != models.MediaCategoryCertificate {
		return media, nil
	}

	s.classifyCertificate(ctx, media, strings.TrimSpace(req.RawText))
	if err := s.media.UpdateClassification(ctx, media); err != nil {
		return nil, fmt.Errorf("failed to update media %s: %w", media.ID, err)
	}
	return media, nil
}

func (s *MediaService) classifyCertificate(ctx context.Context, media *models.UserMedia, rawText string) {
	if rawText == "" {
		media.Title = titleNoText
		s.metrics.CertificateAnalyses.WithLabelValues("no_text").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.readCertificate(ctx, rawText)
	if err != nil {
		log.Printf("Certificate analysis failed for media %s: %v", media.ID, err)
		media.Title = titleAnalysisFailed
		s.metrics.CertificateAnalyses.WithLabelValues("failed").Inc()
		return
	}

	media.Title = info.Title
	if media.Title == "" {
		media.Title = titleCertificate
	}
	if media.Title == titleProcessing {
		media.Title = titleVerifiedCertificate
	}
	issuer := info.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}
	media.Issuer = &issuer
	media.Skills = info.skillList()
	if media.Skills == nil {
		media.Skills = []string{}
	}
	s.metrics.CertificateAnalyses.WithLabelValues("verified").Inc()
}

func (s *MediaService) readCertificate(ctx context.Context, rawText string) (*certificateInfo, error) {
	prompt := fmt.Sprintf("Analyze this OCR text from a certificate: '%s'. "+
		"Return ONLY a JSON object with keys: 'title', 'issuer', 'skills' (list). "+
		"If a value is unknown, use 'Not found'.", rawText)

	raw, err := s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: certificateSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}

	var info certificateInfo
	if err := llm.DecodeJSON(raw, &info); err != nil {
		return nil, &llm.ProviderError{Provider: s.provider.Name(), Err: err}
	}
	return &info, nil
}

func (s *MediaService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.UserMedia, error) {
	media, err := s.media.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if media == nil {
		media = []*models.UserMedia{}
	}
	return media, nil
}
