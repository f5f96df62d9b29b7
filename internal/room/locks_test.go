// ABOUTME: Tests for per-room locking

package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLocks_Exclusive(t *testing.T) {
	l := newRoomLocks()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "a")
	require.NoError(t, err)

	// Another room is independent
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "a")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, time.Millisecond)
}

func TestRoomLocks_ContextCanceled(t *testing.T) {
	l := newRoomLocks()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.size())
}
