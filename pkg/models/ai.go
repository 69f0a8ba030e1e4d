// Package models contains shared data models used across the QuestForge codebase.
package models

import (
	"context"
	"errors"
)

// Provider failure classes. Every AIProvider wraps its errors in one of these.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// AIProvider is the core interface that all AI integrations must implement.
// Job handlers never call a specific provider directly; they get this interface injected.
type AIProvider interface {
	// Generate produces text for a single prompt.
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// GenerationRequest is the input to one text generation call.
type GenerationRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// GenerationResult is the output of one text generation call.
type GenerationResult struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}
