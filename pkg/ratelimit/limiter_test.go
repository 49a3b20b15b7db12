package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(3, time.Hour)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "bucket should be exhausted")
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 10*time.Millisecond)

	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, tb.Allow(), "bucket should refill after the period")
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)

	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestPacerDelayBounds(t *testing.T) {
	p := NewPacer(10*time.Millisecond, 50*time.Millisecond)

	for i := 0; i < 100; i++ {
		d := p.NextDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestPacerDegenerateRange(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, p.NextDelay())

	// max below min collapses to min
	p = NewPacer(30*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, p.NextDelay())
}

func TestPacerPauseSleeps(t *testing.T) {
	p := NewPacer(5*time.Millisecond, 6*time.Millisecond)

	var slept time.Duration
	p.sleep = func(d time.Duration) { slept = d }

	p.Pause()
	assert.GreaterOrEqual(t, slept, 5*time.Millisecond)
	assert.LessOrEqual(t, slept, 6*time.Millisecond)
}
