// ABOUTME: Per-room mutual exclusion with context-aware waiting
// ABOUTME: Entries are reference counted and dropped once no caller holds or waits

package room

import (
	"context"
	"sync"
)

type roomLock struct {
	ch   chan struct{}
	refs int
}

// roomLocks hands out one lock per room id.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock // keyed by room ID
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// Lock blocks until the room's lock is held or ctx ends. The returned
// function releases it.
func (l *roomLocks) Lock(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[roomID]
	if !ok {
		lk = &roomLock{ch: make(chan struct{}, 1)}
		l.locks[roomID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.release(roomID, lk)
		}, nil
	case <-ctx.Done():
		l.release(roomID, lk)
		return nil, ctx.Err()
	}
}

func (l *roomLocks) release(roomID string, lk *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, roomID)
	}
}

// size returns the number of tracked rooms.
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
