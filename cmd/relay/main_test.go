package main

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayOptions(t *testing.T) {
	opts := relayOptions(config.SchedulerConfig{
		RelayInterval:   2 * time.Second,
		RelayBatch:      50,
		RelayMaxAttempt: 4,
		RelayTimeout:    10 * time.Second,
	})

	assert.Equal(t, 2*time.Second, opts.Interval)
	assert.Equal(t, 50, opts.Batch)
	assert.Equal(t, 4, opts.MaxDeliveries)
	assert.Equal(t, 10*time.Second, opts.DeliveryTimeout)
	assert.Nil(t, opts.Backoff)
}

func TestRun_FailsWithoutRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnUnreachableRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:1")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}
