package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/questforge/internal/cache"
	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/redis/go-redis/v9"
)

// RelayOptions tune a Relay. Zero values fall back to defaults.
type RelayOptions struct {
	Interval        time.Duration
	Batch           int
	MaxDeliveries   int
	DeliveryTimeout time.Duration
	Backoff         retry.Strategy
}

// RelayStats counts the outcome of one Tick.
type RelayStats struct {
	Delivered   int
	Rescheduled int
	DeadLetters int
}

// Relay delivers due messages published through a RedisBroker.
type Relay struct {
	rdb    *redis.Client
	client *http.Client
	opts   RelayOptions
	now    func() time.Time
}

func NewRelay(rdb *redis.Client, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 8
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.Exponential{Initial: 5 * time.Second, Max: 5 * time.Minute}
	}
	return &Relay{
		rdb:    rdb,
		client: &http.Client{Timeout: opts.DeliveryTimeout},
		opts:   opts,
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := r.Tick(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.ErrorContext(ctx, "relay tick failed", "error", err)
				continue
			}
			if stats != (RelayStats{}) {
				slog.InfoContext(ctx, "relay tick",
					"delivered", stats.Delivered,
					"rescheduled", stats.Rescheduled,
					"dead_letters", stats.DeadLetters,
				)
			}
		}
	}
}

// Tick delivers up to one batch of due messages. A message is delivered by the
// relay that removes it from the due set, so several relays can share a Redis.
func (r *Relay) Tick(ctx context.Context) (RelayStats, error) {
	var stats RelayStats

	now := r.now()
	ids, err := r.rdb.ZRangeByScore(ctx, cache.SchedulerDueKey, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10), Offset: 0, Count: int64(r.opts.Batch),
	}).Result()
	if err != nil {
		return stats, fmt.Errorf("list due messages: %w", err)
	}

	for _, id := range ids {
		removed, err := r.rdb.ZRem(ctx, cache.SchedulerDueKey, id).Result()
		if err != nil {
			return stats, fmt.Errorf("claim message %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}

		data, err := r.rdb.Get(ctx, cache.SchedulerMessageKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("load message %s: %w", id, err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.ErrorContext(ctx, "relay dropped undecodable message", "message_id", id, "error", err)
			r.rdb.Del(ctx, cache.SchedulerMessageKey(id))
			continue
		}

		retryable, derr := r.deliver(ctx, env)
		switch {
		case derr == nil:
			stats.Delivered++
			if err := r.rdb.Del(ctx, cache.SchedulerMessageKey(id)).Err(); err != nil {
				return stats, fmt.Errorf("delete delivered message %s: %w", id, err)
			}
		case retryable && env.Deliveries+1 < r.opts.MaxDeliveries:
			stats.Rescheduled++
			if err := r.reschedule(ctx, env, derr); err != nil {
				return stats, err
			}
		default:
			stats.DeadLetters++
			if err := r.deadLetter(ctx, env, derr); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// deliver POSTs the message body. It reports whether a failure is worth retrying.
func (r *Relay) deliver(ctx context.Context, env envelope) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(env.Body))
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Questforge-Message-Id", env.ID)
	if env.DeduplicationID != "" {
		req.Header.Set("X-Questforge-Dedup-Id", env.DeduplicationID)
	}
	req.Header.Set("X-Questforge-Delivery", strconv.Itoa(env.Deliveries+1))

	resp, err := r.client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return false, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return true, fmt.Errorf("destination returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("destination returned status %d", resp.StatusCode)
	}
}

func (r *Relay) reschedule(ctx context.Context, env envelope, cause error) error {
	env.Deliveries++
	env.LastError = cause.Error()
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	due := r.now().Add(r.opts.Backoff.Delay(env.Deliveries))

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, cache.SchedulerMessageKey(env.ID), data, 0)
	pipe.ZAdd(ctx, cache.SchedulerDueKey, redis.Z{Score: float64(due.UnixMilli()), Member: env.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule message %s: %w", env.ID, err)
	}
	slog.WarnContext(ctx, "relay delivery failed, rescheduled",
		"message_id", env.ID,
		"dedup_id", env.DeduplicationID,
		"deliveries", env.Deliveries,
		"error", cause,
	)
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, env envelope, cause error) error {
	env.Deliveries++
	env.LastError = cause.Error()
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, cache.SchedulerDeadLetterKey, data)
	pipe.Del(ctx, cache.SchedulerMessageKey(env.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter message %s: %w", env.ID, err)
	}
	slog.ErrorContext(ctx, "relay gave up on message",
		"message_id", env.ID,
		"dedup_id", env.DeduplicationID,
		"url", env.URL,
		"deliveries", env.Deliveries,
		"error", cause,
	)
	return nil
}
