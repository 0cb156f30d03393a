package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	b := newBreaker()
	for i := 0; i < b.threshold; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.Allow(), "breaker should be open after threshold failures")
}

func TestBreakerHalfOpensAfterCooldown(t *testing.T) {
	b := newBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }
	for i := 0; i < b.threshold; i++ {
		b.RecordFailure()
	}
	require.False(t, b.Allow(), "breaker should be open immediately after tripping")

	now = now.Add(b.cooldown + time.Second)
	assert.True(t, b.Allow(), "breaker should half-open and allow a probe after cooldown")
}

func TestBreakerRecordSuccessCloses(t *testing.T) {
	b := newBreaker()
	for i := 0; i < b.threshold; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.True(t, b.Allow(), "breaker should close again after RecordSuccess")
}
