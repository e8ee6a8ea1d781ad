package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 5, Base: time.Second, Max: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Duration(0), policy.Delay(0))
	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 5*time.Second, policy.Delay(4))
	assert.Equal(t, 5*time.Second, policy.Delay(10))
}

func TestBackoffPolicy_MultiplierBelowOneIsConstant(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 3, Base: time.Second}

	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, time.Second, policy.Delay(3))
}

func TestRetryState_BoundedAttempts(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	retry := BackoffPolicy{MaxAttempts: 3, Base: time.Second, Multiplier: 2}.Start()

	assert.True(t, retry.Failed(now))
	assert.Equal(t, 1, retry.Attempts)
	assert.Equal(t, now.Add(time.Second), retry.NextEligibleAt)
	assert.Equal(t, time.Second, retry.WaitDuration(now))

	assert.True(t, retry.Failed(now))
	assert.Equal(t, 2*time.Second, retry.WaitDuration(now))

	assert.False(t, retry.Failed(now))
	assert.True(t, retry.Exhausted())
	assert.Equal(t, 3, retry.Attempts)
	assert.Equal(t, time.Duration(0), retry.WaitDuration(now))
}

func TestRetryState_ZeroCeilingAllowsOneAttempt(t *testing.T) {
	retry := BackoffPolicy{}.Start()
	assert.False(t, retry.Failed(time.Now()))
	assert.Equal(t, 1, retry.Attempts)
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
