// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	rooms    map[string]*Room          // keyed by room ID
	messages map[string][]*RoomMessage // keyed by room ID
	closed   bool
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		rooms:    make(map[string]*Room),
		messages: make(map[string][]*RoomMessage),
	}
}

// CreateRoom stores a new room.
func (m *MockStore) CreateRoom(ctx context.Context, room *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return fmt.Errorf("inserting room: duplicate id %q", room.ID)
	}

	// Make a copy to avoid external modification
	r := *room
	m.rooms[r.ID] = &r
	return nil
}

// GetRoom retrieves a room by ID.
func (m *MockStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *r
	return &result, nil
}

// ListRooms returns a user's rooms, most recently updated first.
func (m *MockStore) ListRooms(ctx context.Context, userID string, limit int) ([]*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []*Room
	for _, r := range m.rooms {
		if r.UserID != userID {
			continue
		}
		c := *r
		rooms = append(rooms, &c)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})

	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// UpdateRoomSession stores a negotiated conversation and resets the count.
func (m *MockStore) UpdateRoomSession(ctx context.Context, roomID string, sess RoomSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.ConversationID = sess.ConversationID
	r.ConversationSignature = sess.ConversationSignature
	r.ClientID = sess.ClientID
	r.NumUserMessages = 0
	r.UpdatedAt = time.Now()
	return nil
}

// ClearRoomSession forgets the room's conversation.
func (m *MockStore) ClearRoomSession(ctx context.Context, roomID string) error {
	return m.UpdateRoomSession(ctx, roomID, RoomSession{})
}

// IncrementUserMessages adds one to the room's message count.
func (m *MockStore) IncrementUserMessages(ctx context.Context, roomID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return 0, ErrNotFound
	}
	r.NumUserMessages++
	r.UpdatedAt = time.Now()
	return r.NumUserMessages, nil
}

// SaveMessage appends a message to a room's history.
func (m *MockStore) SaveMessage(ctx context.Context, msg *RoomMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[msg.RoomID]; !ok {
		return fmt.Errorf("inserting message: unknown room %q", msg.RoomID)
	}

	c := *msg
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], &c)
	return nil
}

// GetRoomMessages returns the most recent `limit` messages, oldest first.
func (m *MockStore) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*RoomMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[roomID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}

	result := make([]*RoomMessage, 0, len(all)-start)
	for _, msg := range all[start:] {
		c := *msg
		result = append(result, &c)
	}
	return result, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
