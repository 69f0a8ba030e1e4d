package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/cache"
	"github.com/redis/go-redis/v9"
)

// envelope is a message as stored in Redis.
type envelope struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	DeduplicationID string    `json:"dedup_id,omitempty"`
	Body            []byte    `json:"body"`
	Deliveries      int       `json:"deliveries"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// releaseDedup deletes a dedup key only while it still names the message that
// claimed it.
var releaseDedup = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBroker is a self-hosted bridge. Messages wait in a sorted set scored by
// due time until a Relay delivers them.
type RedisBroker struct {
	rdb            *redis.Client
	dedupRetention time.Duration
	now            func() time.Time
}

// NewRedisBroker creates a broker on rdb. A DeduplicationID is remembered for
// dedupRetention after its first publish.
func NewRedisBroker(rdb *redis.Client, dedupRetention time.Duration) *RedisBroker {
	return &RedisBroker{rdb: rdb, dedupRetention: dedupRetention, now: time.Now}
}

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	if msg.URL == "" {
		return fmt.Errorf("%w: empty destination url", ErrPublishRejected)
	}

	env := envelope{
		ID:              uuid.NewString(),
		URL:             msg.URL,
		DeduplicationID: msg.DeduplicationID,
		Body:            msg.Body,
		CreatedAt:       b.now().UTC(),
	}

	if msg.DeduplicationID != "" {
		ok, err := b.rdb.SetNX(ctx, cache.SchedulerDedupKey(msg.DeduplicationID), env.ID, b.dedupRetention).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		}
		if !ok {
			return nil
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	due := b.now().Add(msg.Delay)

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, cache.SchedulerMessageKey(env.ID), data, 0)
	pipe.ZAdd(ctx, cache.SchedulerDueKey, redis.Z{Score: float64(due.UnixMilli()), Member: env.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		b.rollback(ctx, env)
		return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	return nil
}

// rollback undoes a partial publish so a later publish with the same
// DeduplicationID is stored instead of collapsing into nothing.
func (b *RedisBroker) rollback(ctx context.Context, env envelope) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := b.rdb.Del(ctx, cache.SchedulerMessageKey(env.ID)).Err(); err != nil {
		slog.WarnContext(ctx, "scheduler message rollback failed", "message_id", env.ID, "error", err)
	}
	if env.DeduplicationID == "" {
		return
	}
	key := cache.SchedulerDedupKey(env.DeduplicationID)
	if err := releaseDedup.Run(ctx, b.rdb, []string{key}, env.ID).Err(); err != nil {
		slog.WarnContext(ctx, "scheduler dedup rollback failed", "dedup_id", env.DeduplicationID, "error", err)
	}
}

// Pending returns the number of messages waiting for delivery.
func (b *RedisBroker) Pending(ctx context.Context) (int64, error) {
	return b.rdb.ZCard(ctx, cache.SchedulerDueKey).Result()
}
