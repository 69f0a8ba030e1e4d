// Package scheduler publishes delayed HTTP pushes that re-invoke the worker.
package scheduler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPublishRejected means the bridge answered but refused the message.
	ErrPublishRejected = errors.New("publish rejected")
	// ErrBridgeUnavailable means the bridge could not be reached.
	ErrBridgeUnavailable = errors.New("scheduler bridge unavailable")
)

// Message is one push request. The bridge POSTs Body to URL after Delay, at
// most once per DeduplicationID within the bridge's dedup window.
type Message struct {
	URL             string
	DeduplicationID string
	Body            []byte
	Delay           time.Duration
}

// Publisher hands messages to a scheduler bridge. A nil error means the bridge
// accepted the message, including when it collapsed it into an earlier one with
// the same DeduplicationID.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
