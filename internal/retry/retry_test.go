package retry_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/stretchr/testify/assert"
)

func TestTable_Delay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 15 * time.Second},
		{1, 15 * time.Second},
		{2, 60 * time.Second},
		{3, 180 * time.Second},
		{4, 600 * time.Second},
		{5, 1800 * time.Second},
		{6, 1800 * time.Second},
		{1000, 1800 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retry.DefaultTable.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestTable_NonDecreasingAndBounded(t *testing.T) {
	prev := time.Duration(0)
	for n := 1; n <= 100; n++ {
		d := retry.DefaultTable.Delay(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, 1800*time.Second, "attempt %d", n)
		prev = d
	}
}

func TestTable_Empty(t *testing.T) {
	assert.Zero(t, retry.Table{}.Delay(3))
}

func TestExponential_Delay(t *testing.T) {
	e := retry.Exponential{Initial: time.Second, Max: 10 * time.Second}

	assert.Equal(t, 1*time.Second, e.Delay(1))
	assert.Equal(t, 2*time.Second, e.Delay(2))
	assert.Equal(t, 4*time.Second, e.Delay(3))
	assert.Equal(t, 8*time.Second, e.Delay(4))
	assert.Equal(t, 10*time.Second, e.Delay(5))
	assert.Equal(t, 10*time.Second, e.Delay(500))
}

func TestPolicy_Decide(t *testing.T) {
	p := retry.NewPolicy(nil)

	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		want        retry.Decision
	}{
		{"first failure", 0, 3, retry.Decision{NextAttempts: 1, Retry: true, Delay: 15 * time.Second}},
		{"second failure", 1, 3, retry.Decision{NextAttempts: 2, Retry: true, Delay: 60 * time.Second}},
		{"reaches ceiling", 2, 3, retry.Decision{NextAttempts: 3}},
		{"single attempt", 0, 1, retry.Decision{NextAttempts: 1}},
		{"already past ceiling", 5, 3, retry.Decision{NextAttempts: 6}},
		{"long run clamps", 9, 20, retry.Decision{NextAttempts: 10, Retry: true, Delay: 1800 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.attempts, tt.maxAttempts))
		})
	}
}

func TestPolicy_CustomTable(t *testing.T) {
	p := retry.NewPolicy(retry.Table{time.Second, 2 * time.Second})

	d := p.Decide(2, 10)
	assert.True(t, d.Retry)
	assert.Equal(t, 3, d.NextAttempts)
	assert.Equal(t, 2*time.Second, d.Delay)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "J1:retry:1", retry.DedupKey("J1", 1))
	assert.Equal(t, "J1:run", retry.RunKey("J1"))
	assert.Equal(t, "J1:lease:2", retry.LeaseKey("J1", 2))
}

func TestDedupKey_UniquePerAttempt(t *testing.T) {
	seen := map[string]bool{}
	for n := 1; n <= 10; n++ {
		k := retry.DedupKey("J1", n)
		assert.False(t, seen[k], k)
		seen[k] = true
	}
	assert.NotEqual(t, retry.DedupKey("J1", 1), retry.LeaseKey("J1", 1))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 15, retry.Seconds(15*time.Second))
	assert.Equal(t, 2, retry.Seconds(1500*time.Millisecond))
	assert.Equal(t, 0, retry.Seconds(0))
}
