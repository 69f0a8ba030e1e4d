package ollama

import (
	"github.com/kiranshivaraju/questforge/internal/ai/openai"
	"github.com/kiranshivaraju/questforge/internal/config"
)

// NewProvider returns a provider for a local Ollama server through its
// OpenAI-compatible endpoint. Ollama ignores the API key.
func NewProvider(cfg config.OllamaConfig) *openai.Provider {
	return openai.New(openai.Options{Name: "ollama", BaseURL: cfg.BaseURL, Model: cfg.Model})
}
