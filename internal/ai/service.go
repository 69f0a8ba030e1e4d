package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/questforge/pkg/models"
)

const (
	maxPromptBytes = 16000
	maxOutputBytes = 32000
)

// Generation is the outcome of one Generator call.
type Generation struct {
	Text         string `json:"text"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	DurationMs   int64  `json:"duration_ms"`
}

// Generator bounds every provider call with the inference timeout and
// normalizes its output.
type Generator struct {
	provider models.AIProvider
	timeout  time.Duration
}

// NewGenerator creates a Generator. A non-positive timeout leaves the caller's
// deadline in charge.
func NewGenerator(provider models.AIProvider, timeout time.Duration) *Generator {
	return &Generator{provider: provider, timeout: timeout}
}

// ProviderName reports which provider backs the generator.
func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

func (g *Generator) Generate(ctx context.Context, req models.GenerationRequest) (*Generation, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidResponse)
	}
	req.Prompt = truncateString(req.Prompt, maxPromptBytes)

	genCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.provider.Generate(genCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
			err = fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		slog.WarnContext(ctx, "ai generation failed",
			"provider", g.provider.Name(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: %s returned empty text", ErrInvalidResponse, g.provider.Name())
	}

	slog.InfoContext(ctx, "ai generation completed",
		"provider", g.provider.Name(),
		"model", res.Model,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &Generation{
		Text:         truncateString(text, maxOutputBytes),
		Provider:     g.provider.Name(),
		Model:        res.Model,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		DurationMs:   elapsed.Milliseconds(),
	}, nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
