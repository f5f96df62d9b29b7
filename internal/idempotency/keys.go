// ABOUTME: TTL + size bounded set of claimed idempotency keys for message sends
// ABOUTME: Claim is atomic; Release gives a key back when the send never reached Bing

package idempotency

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a claimed key blocks repeats.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxKeys bounds memory; the oldest claim is evicted first.
	DefaultMaxKeys = 10000
	// MaxKeyLength is the longest key a caller may supply.
	MaxKeyLength = 100
)

type claim struct {
	at   time.Time
	elem *list.Element
}

// Keys tracks claimed keys in claim order so eviction is O(1).
type Keys struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // oldest at front
	ttl     time.Duration
	maxKeys int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a key set. Non-positive arguments fall back to the defaults.
// A background goroutine sweeps expired claims until Close is called.
func New(ttl time.Duration, maxKeys int) *Keys {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	k := &Keys{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go k.sweepLoop()
	return k
}

// Key scopes a caller supplied key to one user and room.
func Key(userID, roomID, key string) string {
	return "send:" + userID + ":" + roomID + ":" + key
}

// Claim marks key as taken. It returns false if the key is already held
// and has not expired.
func (k *Keys) Claim(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if c, ok := k.claims[key]; ok {
		if now.Sub(c.at) < k.ttl {
			return false
		}
		k.order.Remove(c.elem)
		delete(k.claims, key)
	}

	if len(k.claims) >= k.maxKeys {
		k.evictOldestLocked()
	}
	k.claims[key] = &claim{at: now, elem: k.order.PushBack(key)}
	return true
}

// held reports whether key is currently claimed.
func (k *Keys) held(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.claims[key]
	return ok && k.now().Sub(c.at) < k.ttl
}

// Release drops a claim so the same key can be used again.
func (k *Keys) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.claims[key]; ok {
		k.order.Remove(c.elem)
		delete(k.claims, key)
	}
}

// Len returns the number of claims, expired ones included until swept.
func (k *Keys) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.claims)
}

func (k *Keys) evictOldestLocked() {
	front := k.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	k.order.Remove(front)
	delete(k.claims, key)
}

func (k *Keys) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			k.sweep()
		case <-k.done:
			return
		}
	}
}

// sweep drops expired claims. Claims are in time order, so it stops at the
// first live one.
func (k *Keys) sweep() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	for e := k.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		c := k.claims[key]
		if now.Sub(c.at) < k.ttl {
			return
		}
		next := e.Next()
		k.order.Remove(e)
		delete(k.claims, key)
		e = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (k *Keys) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.closed {
		close(k.done)
		k.closed = true
	}
}
