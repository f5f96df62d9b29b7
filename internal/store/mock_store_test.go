// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Keeps the mock's behavior aligned with SQLiteStore for the service tests

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_RoomLifecycle(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	room := testRoom("room-1", "alice")
	require.NoError(t, m.CreateRoom(ctx, room))
	assert.Error(t, m.CreateRoom(ctx, room), "duplicate id")

	// Mutating the caller's copy must not leak into the store
	room.Title = "changed"
	got, err := m.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, got.Title)

	require.NoError(t, m.UpdateRoomSession(ctx, "room-1", RoomSession{
		ConversationID:        "conv",
		ConversationSignature: "sig",
		ClientID:              "client",
	}))
	n, err := m.IncrementUserMessages(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = m.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, got.HasSession())
	assert.Equal(t, 1, got.NumUserMessages)

	require.NoError(t, m.ClearRoomSession(ctx, "room-1"))
	got, err = m.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, got.HasSession())
	assert.Zero(t, got.NumUserMessages)
}

func TestMockStore_NotFound(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	_, err := m.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.IncrementUserMessages(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.UpdateRoomSession(ctx, "missing", RoomSession{}), ErrNotFound)
	assert.Error(t, m.SaveMessage(ctx, &RoomMessage{ID: "x", RoomID: "missing"}))
}

func TestMockStore_ListAndMessages(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	older := testRoom("old", "alice")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, m.CreateRoom(ctx, older))
	require.NoError(t, m.CreateRoom(ctx, testRoom("new", "alice")))
	require.NoError(t, m.CreateRoom(ctx, testRoom("other", "bob")))

	rooms, err := m.ListRooms(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "new", rooms[0].ID)

	rooms, err = m.ListRooms(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	for _, content := range []string{"a", "b", "c"} {
		require.NoError(t, m.SaveMessage(ctx, &RoomMessage{
			ID:      content,
			RoomID:  "new",
			Role:    RoleUser,
			Content: content,
		}))
	}
	msgs, err := m.GetRoomMessages(ctx, "new", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
	assert.Equal(t, "c", msgs[1].Content)
}
