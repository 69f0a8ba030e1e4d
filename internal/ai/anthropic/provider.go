package anthropic

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

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

func (p *Provider) Name() string { return "anthropic" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	body := messagesRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	data, err := json.Marshal(body)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(data))
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
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr errorResponse
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Type + ": " + apiErr.Error.Message
		}
		// 529 is Anthropic's overloaded status.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return models.GenerationResult{}, fmt.Errorf("%w: anthropic status %d: %s",
				models.ErrProviderUnavailable, resp.StatusCode, detail)
		}
		return models.GenerationResult{}, fmt.Errorf("%w: anthropic status %d: %s",
			models.ErrInvalidResponse, resp.StatusCode, detail)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenerationResult{}, fmt.Errorf("%w: decoding response: %v", models.ErrInvalidResponse, err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return models.GenerationResult{}, fmt.Errorf("%w: anthropic returned no text", models.ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	return models.GenerationResult{
		Text:         text.String(),
		Model:        model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", apiVersion)
	if p.apiKey != "" {
		req.Header.Set("x-api-key", p.apiKey)
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
