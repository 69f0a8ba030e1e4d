package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/questforge/internal/ai/ollama"
	"github.com/kiranshivaraju/questforge/internal/ai/openai"
	"github.com/kiranshivaraju/questforge/internal/ai/vllm"
	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/kiranshivaraju/questforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Success(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"role": "assistant", "content": "A lighthouse groans in the fog."}}],
			"usage": {"prompt_tokens": 21, "completion_tokens": 9}
		}`))
	}))
	defer srv.Close()

	p := openai.NewProvider(config.OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	res, err := p.Generate(context.Background(), models.GenerationRequest{
		System: "be brief", Prompt: "lighthouse", MaxTokens: 100, Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, float64(100), got["max_tokens"])
	assert.InDelta(t, 0.7, got["temperature"], 0.0001)
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "lighthouse", msgs[1].(map[string]any)["content"])

	assert.Equal(t, "A lighthouse groans in the fog.", res.Text)
	assert.Equal(t, "gpt-4o-mini-2024", res.Model)
	assert.Equal(t, 21, res.InputTokens)
	assert.Equal(t, 9, res.OutputTokens)
}

func TestGenerate_DefaultsMaxTokensAndOmitsSystem(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
	res, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, float64(1024), got["max_tokens"])
	assert.NotContains(t, got, "temperature")
	assert.Len(t, got["messages"].([]any), 1)
	assert.Equal(t, "m", res.Model)
	assert.Equal(t, "openai", p.Name())
}

func TestGenerate_ServerErrorIsUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
		_, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
		assert.ErrorIs(t, err, models.ErrProviderUnavailable, "status %d", status)
		srv.Close()
	}
}

func TestGenerate_ClientErrorIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer srv.Close()

	p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
	_, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
	_, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestGenerate_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
	_, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := openai.New(openai.Options{BaseURL: srv.URL, Model: "m"})
	_, err := p.Generate(ctx, models.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrInferenceTimeout)
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := openai.New(openai.Options{BaseURL: url, Model: "m"})
	_, err := p.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestCompatibleServers(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = append(auth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	o := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	v := vllm.NewProvider(config.VLLMConfig{BaseURL: srv.URL + "/", Model: "mistral"})
	assert.Equal(t, "ollama", o.Name())
	assert.Equal(t, "vllm", v.Name())

	_, err := o.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	_, err = v.Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, auth)
}
