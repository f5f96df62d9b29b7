// ABOUTME: Tests for idempotency key claims: expiry, release, eviction, sweeping, concurrency

package idempotency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestKeys(t *testing.T, ttl time.Duration, maxKeys int) (*Keys, *fakeClock) {
	t.Helper()
	k := New(ttl, maxKeys)
	t.Cleanup(k.Close)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	k.now = clock.now
	return k, clock
}

func TestKeys_ClaimOnce(t *testing.T) {
	k, _ := newTestKeys(t, time.Minute, 10)

	assert.True(t, k.Claim("a"))
	assert.False(t, k.Claim("a"), "second claim should be refused")
	assert.True(t, k.held("a"))
	assert.False(t, k.held("b"))
}

func TestKeys_Expiry(t *testing.T) {
	k, clock := newTestKeys(t, time.Minute, 10)

	assert.True(t, k.Claim("a"))
	clock.advance(59 * time.Second)
	assert.False(t, k.Claim("a"))

	clock.advance(2 * time.Second)
	assert.False(t, k.held("a"))
	assert.True(t, k.Claim("a"), "expired key can be claimed again")
}

func TestKeys_Release(t *testing.T) {
	k, _ := newTestKeys(t, time.Minute, 10)

	assert.True(t, k.Claim("a"))
	k.Release("a")
	assert.False(t, k.held("a"))
	assert.True(t, k.Claim("a"))

	k.Release("never-claimed")
	assert.Equal(t, 1, k.Len())
}

func TestKeys_EvictsOldest(t *testing.T) {
	k, clock := newTestKeys(t, time.Hour, 3)

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, k.Claim(key))
		clock.advance(time.Second)
	}
	assert.True(t, k.Claim("d"))

	assert.Equal(t, 3, k.Len())
	assert.False(t, k.held("a"), "oldest claim should be evicted")
	assert.True(t, k.held("b"))
	assert.True(t, k.held("d"))
}

func TestKeys_Sweep(t *testing.T) {
	k, clock := newTestKeys(t, time.Minute, 10)

	k.Claim("old-1")
	k.Claim("old-2")
	clock.advance(45 * time.Second)
	k.Claim("fresh")
	clock.advance(30 * time.Second)

	k.sweep()
	assert.Equal(t, 1, k.Len())
	assert.True(t, k.held("fresh"))
}

func TestKeys_Defaults(t *testing.T) {
	k := New(0, -1)
	defer k.Close()
	assert.Equal(t, DefaultTTL, k.ttl)
	assert.Equal(t, DefaultMaxKeys, k.maxKeys)
}

func TestKeys_CloseTwice(t *testing.T) {
	k := New(time.Minute, 10)
	k.Close()
	assert.NotPanics(t, k.Close)
}

func TestKeys_ConcurrentClaim(t *testing.T) {
	k, _ := newTestKeys(t, time.Minute, 100)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k.Claim("same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load(), "exactly one claim should win")
}

func TestKey_Scoped(t *testing.T) {
	assert.NotEqual(t, Key("u1", "r1", "k"), Key("u2", "r1", "k"))
	assert.NotEqual(t, Key("u1", "r1", "k"), Key("u1", "r2", "k"))
}
