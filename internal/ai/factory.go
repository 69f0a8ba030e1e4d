package ai

import (
	"fmt"

	"github.com/kiranshivaraju/questforge/internal/ai/anthropic"
	"github.com/kiranshivaraju/questforge/internal/ai/ollama"
	"github.com/kiranshivaraju/questforge/internal/ai/openai"
	"github.com/kiranshivaraju/questforge/internal/ai/vllm"
	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		if cfg.VLLM.Model == "" {
			return nil, fmt.Errorf("vllm provider needs VLLM_MODEL")
		}
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}
