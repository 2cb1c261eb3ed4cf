package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelayGrows(t *testing.T) {
	p := RetryPolicy{Initial: 30 * time.Second, Multiplier: 2.0, Cap: time.Hour, MaxAttempts: 25}

	assert.Equal(t, 30*time.Second, p.Delay(1))
	assert.Equal(t, time.Minute, p.Delay(2))
	assert.Equal(t, 2*time.Minute, p.Delay(3))
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := RetryPolicy{Initial: 30 * time.Second, Multiplier: 2.0, Cap: time.Hour, MaxAttempts: 25}

	assert.Equal(t, time.Hour, p.Delay(10))
	assert.Equal(t, time.Hour, p.Delay(100))
}

func TestRetryPolicyExhausted(t *testing.T) {
	p := RetryPolicy{Initial: time.Second, Multiplier: 2.0, Cap: time.Minute, MaxAttempts: 3}

	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))

	// Zero means no cap: retry forever.
	unbounded := RetryPolicy{Initial: time.Second, Multiplier: 2.0, Cap: time.Minute}
	assert.False(t, unbounded.Exhausted(1000))
}
