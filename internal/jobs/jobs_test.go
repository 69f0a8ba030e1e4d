package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/ai"
	"github.com/kiranshivaraju/questforge/internal/ai/mock"
	"github.com/kiranshivaraju/questforge/internal/dispatch"
	"github.com/kiranshivaraju/questforge/internal/jobs"
	"github.com/kiranshivaraju/questforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, p models.AIProvider) *dispatch.Registry {
	t.Helper()
	r := dispatch.NewRegistry()
	jobs.Register(r, p, time.Second)
	return r
}

func job(jobType, payload string) *models.Job {
	quest := "quest-9"
	return &models.Job{ID: uuid.New(), JobType: jobType, Payload: json.RawMessage(payload), QuestRef: &quest}
}

func TestRegister_CoversDeclaredTypes(t *testing.T) {
	r := newRegistry(t, mock.NewMockProvider())
	assert.NoError(t, r.Validate(models.JobTypes))
}

func TestHandlers_Success(t *testing.T) {
	tests := []struct {
		jobType string
		payload string
		want    []string
	}{
		{models.JobTypeGenerateQuest, `{"premise":"a stolen bell","tone":"grim"}`, []string{"a stolen bell", "Tone: grim"}},
		{models.JobTypeGenerateRoom, `{"theme":"flooded crypt","exits":["north","down"]}`, []string{"flooded crypt", "Exits: north, down"}},
		{models.JobTypeGenerateCharacter, `{"name":"Maren","role":"ferryman"}`, []string{"Maren", "ferryman"}},
		{models.JobTypeGenerateChapter, `{"adventure_title":"Salt","chapter_number":2,"beats":["storm"]}`, []string{"chapter 2", "Beat 1: storm"}},
		{models.JobTypeDescribePhoto, `{"photo_url":"https://img.example.com/p.jpg"}`, []string{"https://img.example.com/p.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			p := mock.NewMockProvider()
			r := newRegistry(t, p)

			raw, err := r.Dispatch(context.Background(), job(tt.jobType, tt.payload))
			require.NoError(t, err)

			var res jobs.Result
			require.NoError(t, json.Unmarshal(raw, &res))
			assert.Equal(t, tt.jobType, res.Kind)
			assert.Equal(t, "mock", res.Provider)
			assert.Equal(t, "mock-v1", res.Model)
			assert.NotEmpty(t, res.Text)
			assert.Equal(t, "quest-9", res.QuestID)

			reqs := p.Requests()
			require.Len(t, reqs, 1)
			assert.NotEmpty(t, reqs[0].System)
			for _, w := range tt.want {
				assert.Contains(t, reqs[0].Prompt, w)
			}
		})
	}
}

func TestHandlers_MissingFieldsNeverCallProvider(t *testing.T) {
	tests := []struct {
		jobType string
		payload string
		field   string
	}{
		{models.JobTypeGenerateQuest, `{"tone":"grim"}`, "premise"},
		{models.JobTypeGenerateQuest, `{"premise":"x","tone":"sad"}`, "tone"},
		{models.JobTypeGenerateRoom, `{}`, "theme"},
		{models.JobTypeGenerateCharacter, `{"name":"Maren"}`, "role"},
		{models.JobTypeGenerateChapter, `{"adventure_title":"Salt"}`, "chapter_number"},
		{models.JobTypeDescribePhoto, `{"photo_url":"not a url"}`, "photo_url"},
	}

	for _, tt := range tests {
		t.Run(tt.jobType+"/"+tt.field, func(t *testing.T) {
			p := mock.NewMockProvider()
			r := newRegistry(t, p)

			_, err := r.Dispatch(context.Background(), job(tt.jobType, tt.payload))
			require.Error(t, err)

			var verr *dispatch.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Empty(t, p.Requests())
		})
	}
}

func TestHandlers_ProviderFailure(t *testing.T) {
	r := newRegistry(t, mock.NewFailingProvider(ai.ErrProviderUnavailable))

	_, err := r.Dispatch(context.Background(), job(models.JobTypeGenerateRoom, `{"theme":"crypt"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "generate_room")
	assert.Equal(t, dispatch.KindExecution, dispatch.Kind(err))
}

func TestHandlers_Timeout(t *testing.T) {
	r := dispatch.NewRegistry()
	jobs.Register(r, mock.NewTimeoutProvider(), 30*time.Millisecond)

	_, err := r.Dispatch(context.Background(), job(models.JobTypeGenerateQuest, `{"premise":"x"}`))
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}
