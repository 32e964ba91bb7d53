package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewLimiter(time.Minute)

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("submit:1.2.3.4", 5)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, resetAt := l.Allow("submit:1.2.3.4", 5)
	assert.False(t, ok)
	assert.False(t, resetAt.IsZero())
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(time.Minute)

	ok, _ := l.Allow("submit:1.1.1.1", 1)
	assert.True(t, ok)
	ok, _ = l.Allow("submit:1.1.1.1", 1)
	assert.False(t, ok)

	ok, _ = l.Allow("submit:2.2.2.2", 1)
	assert.True(t, ok)
}

func TestLimiter_WindowReset(t *testing.T) {
	l := NewLimiter(time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	ok, resetAt := l.Allow("runner:r1", 1)
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	ok, _ = l.Allow("runner:r1", 1)
	assert.False(t, ok)

	// Advance past the window; the counter starts over.
	now = now.Add(time.Minute + time.Second)
	ok, _ = l.Allow("runner:r1", 1)
	assert.True(t, ok)
}

func TestLimiter_ZeroLimitIsUnbounded(t *testing.T) {
	l := NewLimiter(time.Minute)

	for i := 0; i < 1000; i++ {
		ok, _ := l.Allow("admin", 0)
		assert.True(t, ok)
	}
}

func TestLimiter_PrunesExpiredEntries(t *testing.T) {
	l := NewLimiter(time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		l.Allow("key"+string(rune('a'+i)), 100)
	}
	assert.Len(t, l.entries, 10)

	now = now.Add(2 * time.Minute)
	l.Allow("fresh", 100)
	assert.Len(t, l.entries, 1)
}
