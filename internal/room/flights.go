// ABOUTME: Collapses concurrent session negotiations for a room into one flight
// ABOUTME: A flight is detached from any single caller and canceled once every caller has left

package room

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// sessionFlights runs at most one negotiation per room at a time.
type sessionFlights struct {
	group  singleflight.Group
	mu     sync.Mutex
	active map[string]*flight // keyed by room ID
}

func newSessionFlights() *sessionFlights {
	return &sessionFlights{active: make(map[string]*flight)}
}

// Do runs fn once for all concurrent callers of key. fn gets a context that
// keeps the values of the caller that started it but is only canceled when
// every caller waiting on it has returned. Each caller stops waiting when its
// own ctx ends.
func (f *sessionFlights) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (v any, shared bool, err error) {
	fl := f.join(ctx, key)
	defer f.leave(key, fl)

	ch := f.group.DoChan(key, func() (any, error) {
		return fn(fl.ctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (f *sessionFlights) join(ctx context.Context, key string) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.active[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		f.active[key] = fl
	}
	fl.waiters++
	return fl
}

func (f *sessionFlights) leave(key string, fl *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	delete(f.active, key)
	// A flight still unwinding from cancel must not be joined by new callers.
	f.group.Forget(key)
	fl.cancel()
}

// waiters returns how many callers wait on key's flight.
func (f *sessionFlights) waiters(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.active[key]; ok {
		return fl.waiters
	}
	return 0
}
