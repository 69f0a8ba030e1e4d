package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/questforge/internal/ai"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error)

	mu       sync.Mutex
	requests []models.GenerationRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.GenerationResult{}, nil
}

// Requests returns every request the provider has received.
func (m *MockProvider) Requests() []models.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GenerationRequest(nil), m.requests...)
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
			return models.GenerationResult{
				Text:         fmt.Sprintf("Mock generation for %d prompt bytes", len(req.Prompt)),
				Model:        "mock-v1",
				InputTokens:  len(req.Prompt) / 4,
				OutputTokens: 12,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerationRequest) (models.GenerationResult, error) {
			return models.GenerationResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerationRequest) (models.GenerationResult, error) {
			<-ctx.Done()
			return models.GenerationResult{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
