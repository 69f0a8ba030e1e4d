// Package openai talks to any server exposing the OpenAI chat completions API.
// Ollama and vLLM both serve it, so they reuse this client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

const defaultMaxTokens = 1024

// Options configure a Provider.
type Options struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// Provider implements models.AIProvider using the chat completions endpoint.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// New creates a Provider from explicit options.
func New(opts Options) *Provider {
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		client:  &http.Client{},
	}
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return New(Options{Name: "openai", BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
}

func (p *Provider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	body := chatRequest{Model: p.model, MaxTokens: req.MaxTokens}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	data, err := json.Marshal(body)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("building request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.GenerationResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return models.GenerationResult{}, fmt.Errorf("%w: %s status %d", models.ErrProviderUnavailable, p.name, resp.StatusCode)
		}
		return models.GenerationResult{}, fmt.Errorf("%w: %s status %d: %s",
			models.ErrInvalidResponse, p.name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenerationResult{}, fmt.Errorf("%w: decoding response: %v", models.ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return models.GenerationResult{}, fmt.Errorf("%w: %s returned no content", models.ErrInvalidResponse, p.name)
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	return models.GenerationResult{
		Text:         out.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.AIProvider = (*Provider)(nil)
