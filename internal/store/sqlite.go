// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides room/session/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" opens its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS rooms (
			id                     TEXT PRIMARY KEY,
			user_id                TEXT NOT NULL,
			title                  TEXT NOT NULL DEFAULT '',
			conversation_id        TEXT NOT NULL DEFAULT '',
			conversation_signature TEXT NOT NULL DEFAULT '',
			client_id              TEXT NOT NULL DEFAULT '',
			num_user_messages      INTEGER NOT NULL DEFAULT 0 CHECK (num_user_messages >= 0),
			created_at             TEXT NOT NULL,
			updated_at             TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rooms_user ON rooms(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS room_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			room_id    TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_room_messages_room ON room_messages(room_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateRoom inserts a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *Room) error {
	query := `
		INSERT INTO rooms (id, user_id, title, conversation_id, conversation_signature,
			client_id, num_user_messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		room.ID,
		room.UserID,
		room.Title,
		room.ConversationID,
		room.ConversationSignature,
		room.ClientID,
		room.NumUserMessages,
		formatTime(room.CreatedAt),
		formatTime(room.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}

	s.logger.Debug("created room", "id", room.ID, "user_id", room.UserID)
	return nil
}

const roomColumns = `id, user_id, title, conversation_id, conversation_signature,
	client_id, num_user_messages, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*Room, error) {
	var room Room
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&room.ID,
		&room.UserID,
		&room.Title,
		&room.ConversationID,
		&room.ConversationSignature,
		&room.ClientID,
		&room.NumUserMessages,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if room.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if room.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &room, nil
}

// GetRoom retrieves a room by ID.
// Returns ErrNotFound if the room doesn't exist.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return room, nil
}

// ListRooms returns a user's rooms, most recently updated first.
// If limit is 0 or negative, all rooms are returned.
func (s *SQLiteStore) ListRooms(ctx context.Context, userID string, limit int) ([]*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE user_id = ? ORDER BY updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room rows: %w", err)
	}
	return rooms, nil
}

// UpdateRoomSession stores a freshly negotiated conversation and resets the
// message count.
func (s *SQLiteStore) UpdateRoomSession(ctx context.Context, roomID string, sess RoomSession) error {
	query := `
		UPDATE rooms
		SET conversation_id = ?, conversation_signature = ?, client_id = ?,
			num_user_messages = 0, updated_at = ?
		WHERE id = ?
	`
	return s.execOne(ctx, "updating room session", query,
		sess.ConversationID, sess.ConversationSignature, sess.ClientID,
		formatTime(time.Now()), roomID)
}

// ClearRoomSession forgets the room's conversation so the next message
// negotiates a new one.
func (s *SQLiteStore) ClearRoomSession(ctx context.Context, roomID string) error {
	query := `
		UPDATE rooms
		SET conversation_id = '', conversation_signature = '', client_id = '',
			num_user_messages = 0, updated_at = ?
		WHERE id = ?
	`
	return s.execOne(ctx, "clearing room session", query, formatTime(time.Now()), roomID)
}

// IncrementUserMessages adds one to the room's message count.
func (s *SQLiteStore) IncrementUserMessages(ctx context.Context, roomID string) (int, error) {
	query := `
		UPDATE rooms
		SET num_user_messages = num_user_messages + 1, updated_at = ?
		WHERE id = ?
		RETURNING num_user_messages
	`
	var n int
	err := s.db.QueryRowContext(ctx, query, formatTime(time.Now()), roomID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing message count: %w", err)
	}
	return n, nil
}

// SaveMessage appends a message to a room's history.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *RoomMessage) error {
	query := `
		INSERT INTO room_messages (id, room_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.RoomID,
		msg.Role,
		msg.Content,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "room_id", msg.RoomID, "role", msg.Role)
	return nil
}

// GetRoomMessages retrieves messages for a room, limited to the most recent `limit` messages.
// Messages are returned in insertion order (oldest first).
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*RoomMessage, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT id, room_id, role, content, created_at
			FROM (
				SELECT seq, id, room_id, role, content, created_at
				FROM room_messages
				WHERE room_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{roomID, limit}
	} else {
		query = `
			SELECT id, room_id, role, content, created_at
			FROM room_messages
			WHERE room_id = ?
			ORDER BY seq ASC
		`
		args = []any{roomID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*RoomMessage
	for rows.Next() {
		var msg RoomMessage
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// execOne runs an UPDATE that must touch exactly one row.
func (s *SQLiteStore) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeFormat is RFC 3339 with fixed-width nanoseconds so stored values sort
// lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
