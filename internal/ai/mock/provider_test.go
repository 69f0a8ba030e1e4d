package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/questforge/internal/ai"
	"github.com/kiranshivaraju/questforge/internal/ai/mock"
	"github.com/kiranshivaraju/questforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.GenerationRequest {
	return models.GenerationRequest{
		System:    "You are a dungeon master.",
		Prompt:    "Describe a haunted lighthouse.",
		MaxTokens: 256,
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_Generate(t *testing.T) {
	p := mock.NewMockProvider()
	result, err := p.Generate(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, "mock-v1", result.Model)
	assert.Contains(t, result.Text, "Mock generation")
	assert.Positive(t, result.OutputTokens)
}

func TestMockProvider_RecordsRequests(t *testing.T) {
	p := mock.NewMockProvider()
	_, _ = p.Generate(context.Background(), sampleRequest())
	_, _ = p.Generate(context.Background(), models.GenerationRequest{Prompt: "second"})

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Describe a haunted lighthouse.", reqs[0].Prompt)
	assert.Equal(t, "second", reqs[1].Prompt)
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Name(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	assert.Equal(t, "mock-failing", p.Name())
}

func TestNewFailingProvider_Generate(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	_, err := p.Generate(context.Background(), sampleRequest())

	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestNewFailingProvider_CustomError(t *testing.T) {
	customErr := errors.New("custom AI error")
	p := mock.NewFailingProvider(customErr)

	_, err := p.Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, customErr)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_Name(t *testing.T) {
	p := mock.NewTimeoutProvider()
	assert.Equal(t, "mock-timeout", p.Name())
}

func TestNewTimeoutProvider_Generate(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Sentinel errors ---

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ai.ErrProviderUnavailable)
	assert.NotNil(t, ai.ErrInferenceTimeout)
	assert.NotNil(t, ai.ErrInvalidResponse)

	// Ensure they are distinct
	assert.NotEqual(t, ai.ErrProviderUnavailable, ai.ErrInferenceTimeout)
	assert.NotEqual(t, ai.ErrInferenceTimeout, ai.ErrInvalidResponse)
	assert.ErrorIs(t, ai.ErrInferenceTimeout, models.ErrInferenceTimeout)
}

// --- Zero-value MockProvider ---

func TestMockProvider_NilFuncs(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}

	result, err := p.Generate(context.Background(), sampleRequest())
	assert.NoError(t, err)
	assert.Equal(t, models.GenerationResult{}, result)
}

// --- Interface compliance ---

func TestMockProvider_ImplementsAIProvider(t *testing.T) {
	var _ models.AIProvider = mock.NewMockProvider()
	var _ models.AIProvider = mock.NewFailingProvider(nil)
	var _ models.AIProvider = mock.NewTimeoutProvider()
}
