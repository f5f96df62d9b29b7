// ABOUTME: Store interface and data types for bing-cell persistence
// ABOUTME: Defines Room, RoomMessage and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Room is a chat room owned by one user and bound to at most one remote
// conversation at a time.
type Room struct {
	ID     string
	UserID string
	Title  string

	// Conversation state; all empty until a session is negotiated.
	ConversationID        string
	ConversationSignature string
	ClientID              string
	NumUserMessages       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSession reports whether the room holds a negotiated conversation.
func (r *Room) HasSession() bool {
	return r.ConversationID != "" && r.ConversationSignature != "" && r.ClientID != ""
}

// RoomSession is the conversation state written after a negotiation.
type RoomSession struct {
	ConversationID        string
	ConversationSignature string
	ClientID              string
}

// RoomMessage is one entry in a room's history.
type RoomMessage struct {
	ID        string
	RoomID    string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Store defines the interface for room and message persistence
type Store interface {
	// Rooms
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRooms(ctx context.Context, userID string, limit int) ([]*Room, error)

	// Conversation state. UpdateRoomSession resets the message count to zero.
	UpdateRoomSession(ctx context.Context, roomID string, sess RoomSession) error
	ClearRoomSession(ctx context.Context, roomID string) error
	// IncrementUserMessages bumps the count by one and returns the new value.
	IncrementUserMessages(ctx context.Context, roomID string) (int, error)

	// History
	SaveMessage(ctx context.Context, msg *RoomMessage) error
	GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*RoomMessage, error)

	Close() error
}
