// Package llm talks to chat-completion style language model providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model       string
	Messages    []Message
	JSON        bool // ask the provider for a JSON object response
	Temperature float64
	MaxTokens   int
}

// Provider produces a single completion for a request.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// ProviderError wraps any failure to get a usable answer from a provider:
// transport, API and malformed output alike.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

var ErrEmptyResponse = errors.New("empty response")

// ──── Concurrency limit ────

// Observer is notified after every provider call.
type Observer func(provider string, elapsed time.Duration, err error)

type limited struct {
	next     Provider
	rateChan chan struct{} // Token bucket
	observe  Observer
}

// NewLimited bounds the number of in-flight calls to p. observe may be nil.
func NewLimited(p Provider, concurrentReqs int, observe Observer) Provider {
	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}
	return &limited{next: p, rateChan: rateChan, observe: observe}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-l.rateChan:
	case <-ctx.Done():
		return "", &ProviderError{Provider: l.next.Name(), Err: ctx.Err()}
	}
	defer func() { l.rateChan <- struct{}{} }()

	start := time.Now()
	out, err := l.next.Complete(ctx, req)
	if l.observe != nil {
		l.observe(l.next.Name(), time.Since(start), err)
	}
	return out, err
}

// ──── JSON helpers ────

var codeBlockPattern = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// ExtractJSON returns the JSON object in content, unwrapping a markdown code
// fence or surrounding prose. It returns "" when no object is found.
func ExtractJSON(content string) string {
	if matches := codeBlockPattern.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	decoder := json.NewDecoder(strings.NewReader(content[start:]))
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err == nil {
		return string(raw)
	}
	return ""
}

// DecodeJSON extracts and decodes the JSON object in content into v.
func DecodeJSON(content string, v interface{}) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid JSON in response: %w", err)
	}
	return nil
}
