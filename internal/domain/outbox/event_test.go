package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkProcessed(t *testing.T) {
	now := time.Now().UTC()
	e := &Event{ID: uuid.New(), Status: StatusPending, ErrorMessage: "old failure"}

	e.MarkProcessed(now)

	assert.Equal(t, StatusProcessed, e.Status)
	assert.Empty(t, e.ErrorMessage)
	assert.Nil(t, e.NextAttemptAt)
	require.NotNil(t, e.ProcessedAt)
	assert.Equal(t, now, *e.ProcessedAt)
}

func TestMarkFailedSchedulesRetry(t *testing.T) {
	now := time.Now().UTC()
	e := &Event{ID: uuid.New(), Status: StatusPending}

	e.MarkFailed(now, errors.New("period locked"), DefaultMaxAttempts)

	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, "period locked", e.ErrorMessage)
	require.NotNil(t, e.NextAttemptAt)
	assert.True(t, e.NextAttemptAt.After(now) || e.NextAttemptAt.Equal(now.Add(time.Second)))
	assert.False(t, e.IsDead())
}

func TestMarkFailedGoesDeadAtBudget(t *testing.T) {
	now := time.Now().UTC()
	e := &Event{ID: uuid.New(), Status: StatusFailed, AttemptCount: DefaultMaxAttempts - 1}

	e.MarkFailed(now, errors.New("still broken"), DefaultMaxAttempts)

	assert.Equal(t, StatusDead, e.Status)
	assert.Equal(t, DefaultMaxAttempts, e.AttemptCount)
	assert.Nil(t, e.NextAttemptAt)
	assert.True(t, e.IsDead())
}

func TestRetryDelayExponentialAndCapped(t *testing.T) {
	id := uuid.New()

	prevBase := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := RetryDelay(attempt, id)
		assert.LessOrEqual(t, d, 300*time.Second, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, prevBase, "attempt %d should not shrink below previous base", attempt)
		if attempt <= 9 {
			prevBase = time.Duration(1<<uint(attempt-1)) * time.Second
			if prevBase > 300*time.Second {
				prevBase = 300 * time.Second
			}
			assert.GreaterOrEqual(t, d, prevBase, "attempt %d below exponential floor", attempt)
		}
	}
}

func TestRetryDelayDeterministicPerEvent(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, RetryDelay(3, a), RetryDelay(3, a))
	// Different attempts of the same event jitter independently.
	assert.GreaterOrEqual(t, RetryDelay(4, a), 8*time.Second)

	// Jitter bounded by the window even across event identities.
	for _, id := range []uuid.UUID{a, b} {
		d := RetryDelay(6, id) // base 32s, window 6s
		assert.GreaterOrEqual(t, d, 32*time.Second)
		assert.LessOrEqual(t, d, 38*time.Second)
	}
}
