package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPPublisher publishes through a QStash-compatible HTTP API.
type HTTPPublisher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPPublisher creates a publisher for the bridge at baseURL.
func NewHTTPPublisher(baseURL, token string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.URL == "" {
		return fmt.Errorf("%w: empty destination url", ErrPublishRejected)
	}
	u := fmt.Sprintf("%s/v2/publish/%s", p.baseURL, msg.URL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	p.setHeaders(httpReq, msg)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPublishRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (p *HTTPPublisher) setHeaders(req *http.Request, msg Message) {
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if msg.DeduplicationID != "" {
		req.Header.Set("Upstash-Deduplication-Id", msg.DeduplicationID)
	}
	if msg.Delay > 0 {
		req.Header.Set("Upstash-Delay", strconv.Itoa(int(msg.Delay.Round(time.Second)/time.Second))+"s")
	}
}

// classifyError maps transport-level errors to sentinel errors. Caller
// cancellation is passed through unchanged.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
}
