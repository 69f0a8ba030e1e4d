package vllm

import (
	"github.com/kiranshivaraju/questforge/internal/ai/openai"
	"github.com/kiranshivaraju/questforge/internal/config"
)

// NewProvider returns a provider for a vLLM server through its OpenAI-compatible
// endpoint.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.New(openai.Options{Name: "vllm", BaseURL: cfg.BaseURL, Model: cfg.Model})
}
