package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlightGuardAcquireRelease(t *testing.T) {
	guard := newFlightGuard(time.Minute)

	assert.True(t, guard.acquire("post-1"))
	assert.False(t, guard.acquire("post-1"), "second acquire while held")
	assert.True(t, guard.acquire("post-2"), "other content is independent")
	assert.Equal(t, 2, guard.holds())

	guard.release("post-1")
	assert.True(t, guard.acquire("post-1"), "acquire after release")
}

func TestFlightGuardStaleHoldTakeover(t *testing.T) {
	guard := newFlightGuard(5 * time.Minute)

	now := time.Now()
	guard.now = func() time.Time { return now }

	assert.True(t, guard.acquire("post-1"))

	guard.now = func() time.Time { return now.Add(4 * time.Minute) }
	assert.False(t, guard.acquire("post-1"), "hold still fresh")

	// A hold past its TTL belongs to a generation that died without
	// releasing; the next request takes it over.
	guard.now = func() time.Time { return now.Add(6 * time.Minute) }
	assert.True(t, guard.acquire("post-1"))
	assert.Equal(t, 1, guard.holds())
}

func TestFlightGuardReleaseUnheld(t *testing.T) {
	guard := newFlightGuard(time.Minute)

	guard.release("never-held")
	assert.Zero(t, guard.holds())
}
