package scheduler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/questforge/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ scheduler.Publisher = (*scheduler.HTTPPublisher)(nil)
var _ scheduler.Publisher = (*scheduler.RedisBroker)(nil)

func TestHTTPPublisher_Publish(t *testing.T) {
	var (
		gotPath   string
		gotHeader http.Header
		gotBody   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer srv.Close()

	p := scheduler.NewHTTPPublisher(srv.URL+"/", "tok", 5*time.Second)
	err := p.Publish(context.Background(), scheduler.Message{
		URL:             "https://questforge.example.com/api/v1/worker/run",
		DeduplicationID: "J1:retry:1",
		Body:            []byte(`{"jobId":"J1","workerSecret":"s"}`),
		Delay:           15 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v2/publish/https://questforge.example.com/api/v1/worker/run", gotPath)
	assert.Equal(t, "Bearer tok", gotHeader.Get("Authorization"))
	assert.Equal(t, "J1:retry:1", gotHeader.Get("Upstash-Deduplication-Id"))
	assert.Equal(t, "15s", gotHeader.Get("Upstash-Delay"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.JSONEq(t, `{"jobId":"J1","workerSecret":"s"}`, gotBody)
}

func TestHTTPPublisher_NoDelayHeaderWhenImmediate(t *testing.T) {
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := scheduler.NewHTTPPublisher(srv.URL, "tok", 5*time.Second)
	require.NoError(t, p.Publish(context.Background(), scheduler.Message{URL: "https://x/run", Body: []byte(`{}`)}))

	assert.Empty(t, gotHeader.Get("Upstash-Delay"))
	assert.Empty(t, gotHeader.Get("Upstash-Deduplication-Id"))
}

func TestHTTPPublisher_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	p := scheduler.NewHTTPPublisher(srv.URL, "bad", 5*time.Second)
	err := p.Publish(context.Background(), scheduler.Message{URL: "https://x/run", Body: []byte(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrPublishRejected)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestHTTPPublisher_EmptyURL(t *testing.T) {
	p := scheduler.NewHTTPPublisher("http://127.0.0.1:1", "tok", time.Second)
	err := p.Publish(context.Background(), scheduler.Message{})
	assert.ErrorIs(t, err, scheduler.ErrPublishRejected)
}

func TestHTTPPublisher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := scheduler.NewHTTPPublisher(url, "tok", time.Second)
	err := p.Publish(context.Background(), scheduler.Message{URL: "https://x/run", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, scheduler.ErrBridgeUnavailable)
}

func TestHTTPPublisher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := scheduler.NewHTTPPublisher(srv.URL, "tok", 50*time.Millisecond)
	err := p.Publish(context.Background(), scheduler.Message{URL: "https://x/run", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, scheduler.ErrBridgeUnavailable)
}
