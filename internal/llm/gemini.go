package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	name := req.Model
	if name == "" {
		name = p.model
	}

	model := p.client.GenerativeModel(name)
	prompt := configureModel(model, req)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("generation failed: %w", err)}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", &ProviderError{Provider: p.Name(), Err: ErrEmptyResponse}
	}
	return text, nil
}

// configureModel applies req's generation settings and returns the user prompt.
// Zero temperature and max tokens leave the model defaults in place.
func configureModel(model *genai.GenerativeModel, req Request) string {
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	system, prompt := splitMessages(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return prompt
}

// splitMessages folds system messages into one instruction and the rest into one prompt.
func splitMessages(messages []Message) (system, prompt string) {
	var sys, body []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
		} else {
			body = append(body, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(body, "\n\n")
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
