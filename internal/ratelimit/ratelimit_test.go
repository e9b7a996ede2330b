package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(1, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(), "draw %d should fit in the burst", i)
	}
	assert.False(t, l.Allow(), "burst exhausted")
}

func TestLimiterRefill(t *testing.T) {
	l := NewLimiter(100, 1)

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Allow(), "tokens refill over time")
}

func TestAllowN(t *testing.T) {
	l := NewLimiter(1, 10)

	assert.True(t, l.AllowN(8))
	assert.False(t, l.AllowN(8), "only 2 tokens left")
	assert.True(t, l.AllowN(2))
}
