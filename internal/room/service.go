// ABOUTME: Room service: session lifecycle and message sends for chat rooms
// ABOUTME: Record first, then act; the message count moves only when the service accepted a message

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/bing-cell/internal/auth"
	"github.com/2389/bing-cell/internal/bing"
	"github.com/2389/bing-cell/internal/store"
)

var (
	// ErrRoomNotFound is returned for unknown rooms and rooms owned by someone else.
	ErrRoomNotFound = errors.New("room not found")

	// ErrEmptyContent is returned when a message has no text.
	ErrEmptyContent = errors.New("message content is empty")
)

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
	DefaultPerMinute    = 30
	DefaultHistoryLimit = 100
)

// RoomStore defines what the service needs from storage
type RoomStore interface {
	CreateRoom(ctx context.Context, room *store.Room) error
	GetRoom(ctx context.Context, id string) (*store.Room, error)
	ListRooms(ctx context.Context, userID string, limit int) ([]*store.Room, error)
	UpdateRoomSession(ctx context.Context, roomID string, sess store.RoomSession) error
	ClearRoomSession(ctx context.Context, roomID string) error
	IncrementUserMessages(ctx context.Context, roomID string) (int, error)
	SaveMessage(ctx context.Context, msg *store.RoomMessage) error
	GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*store.RoomMessage, error)
}

// Negotiator opens remote conversations.
type Negotiator interface {
	CreateConversation(ctx context.Context, roomID string) (*bing.Session, error)
}

// Hub delivers a built request and streams the answer.
type Hub interface {
	Send(ctx context.Context, body string, onChunk bing.ChunkFunc) (*bing.Reply, error)
}

// Config tunes negotiation policy.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	PerMinute    int
}

// Service manages rooms and relays messages for them.
type Service struct {
	store      RoomStore
	negotiator Negotiator
	builder    *bing.Builder
	hub        Hub
	cfg        Config

	limiter *rate.Limiter
	flights *sessionFlights
	locks   *roomLocks
	logger  *slog.Logger
}

// New creates a room Service. A nil builder uses the embedded template.
func New(st RoomStore, negotiator Negotiator, builder *bing.Builder, hub Hub, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = bing.NewBuilder(nil)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.PerMinute < 1 {
		cfg.PerMinute = DefaultPerMinute
	}
	return &Service{
		store:      st,
		negotiator: negotiator,
		builder:    builder,
		hub:        hub,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute),
		flights:    newSessionFlights(),
		locks:      newRoomLocks(),
		logger:     logger.With("component", "room"),
	}
}

// CreateRoom creates an empty room owned by the caller.
func (s *Service) CreateRoom(ctx context.Context, title string) (*store.Room, error) {
	now := time.Now()
	room := &store.Room{
		ID:        uuid.New().String(),
		UserID:    auth.UserID(ctx),
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	s.logger.Info("room created", "room_id", room.ID, "user_id", room.UserID)
	return room, nil
}

// GetRoom returns a room the caller owns.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*store.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if room.UserID != auth.UserID(ctx) {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListRooms returns the caller's rooms, most recent first.
func (s *Service) ListRooms(ctx context.Context, limit int) ([]*store.Room, error) {
	rooms, err := s.store.ListRooms(ctx, auth.UserID(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return rooms, nil
}

// History returns the most recent messages of a room, oldest first.
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]*store.RoomMessage, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := s.store.GetRoomMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return msgs, nil
}

// ResetSession drops the room's conversation; the next message negotiates a
// new one. History is kept.
func (s *Service) ResetSession(ctx context.Context, roomID string) error {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return err
	}

	unlock, err := s.locks.Lock(ctx, roomID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.ClearRoomSession(ctx, roomID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	s.logger.Info("room session reset", "room_id", roomID, "user_id", auth.UserID(ctx))
	return nil
}

// EnsureSession returns the room's conversation, negotiating one if needed.
func (s *Service) EnsureSession(ctx context.Context, roomID string) (*bing.Session, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HasSession() {
		return sessionOf(room), nil
	}

	v, shared, err := s.flights.Do(ctx, roomID, func(ctx context.Context) (any, error) {
		// Another flight may have finished between our read and this one.
		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("loading room: %w", err)
		}
		if room.HasSession() {
			return sessionOf(room), nil
		}

		sess, err := s.negotiate(ctx, roomID)
		if err != nil {
			return nil, err
		}
		err = s.store.UpdateRoomSession(ctx, roomID, store.RoomSession{
			ConversationID:        sess.ConversationID,
			ConversationSignature: sess.ConversationSignature,
			ClientID:              sess.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("shared negotiation", "room_id", roomID)
	}

	// Each caller gets its own copy.
	sess := *v.(*bing.Session)
	return &sess, nil
}

// negotiate calls the negotiator, retrying rejections with linear backoff.
func (s *Service) negotiate(ctx context.Context, roomID string) (*bing.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, fmt.Errorf("waiting for negotiation slot: %w", err)
		}

		sess, err := s.negotiator.CreateConversation(ctx, roomID)
		if err == nil {
			s.logger.Info("conversation negotiated",
				"room_id", roomID,
				"user_id", auth.UserID(ctx),
				"attempt", attempt)
			return sess, nil
		}
		lastErr = err

		if !bing.IsRetryable(err) || attempt == s.cfg.MaxAttempts {
			break
		}

		wait := s.cfg.RetryBackoff * time.Duration(attempt)
		s.logger.Warn("negotiation rejected, retrying",
			"room_id", roomID,
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"backoff", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// SendResult describes a completed or partially completed send.
type SendResult struct {
	RoomID          string
	MessageID       string // id of the recorded user message
	ReplyID         string // id of the recorded assistant message, empty if none
	Reply           *bing.Reply
	NumUserMessages int // count after this send
}

// SendMessage relays content to the room's conversation and streams the
// answer into w.
//
// The returned SendResult is non-nil once the user message was recorded,
// even when an error is also returned.
func (s *Service) SendMessage(ctx context.Context, roomID, content string, w bing.ChunkWriter) (*SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	unlock, err := s.locks.Lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 1. Session, negotiated if this is the room's first message
	sess, err := s.EnsureSession(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("ensuring session: %w", err)
	}

	// 2. Build; a template or session defect leaves no trace in history
	body, err := s.builder.Build(bing.OutboundMessage{Session: sess, Content: content})
	if err != nil {
		s.logger.Error("building request failed",
			"room_id", roomID,
			"user_id", auth.UserID(ctx),
			"error", err)
		return nil, fmt.Errorf("building request: %w", err)
	}

	// 3. Record the user message before anything goes out
	userMsg := &store.RoomMessage{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Role:      store.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}
	result := &SendResult{
		RoomID:          roomID,
		MessageID:       userMsg.ID,
		NumUserMessages: sess.NumUserMessages,
	}

	// 4. Send and relay
	reply, sendErr := s.hub.Send(ctx, body, func(chunk string) error {
		return bing.Relay(ctx, w, chunk)
	})
	result.Reply = reply

	// 5. Persist the outcome even if the client is gone
	persistCtx := context.WithoutCancel(ctx)
	if reply != nil && reply.Accepted {
		n, err := s.store.IncrementUserMessages(persistCtx, roomID)
		if err != nil {
			s.logger.Error("incrementing message count failed", "room_id", roomID, "error", err)
		} else {
			result.NumUserMessages = n
		}
	}
	if reply != nil && reply.Text != "" {
		replyMsg := &store.RoomMessage{
			ID:        uuid.New().String(),
			RoomID:    roomID,
			Role:      store.RoleAssistant,
			Content:   reply.Text,
			CreatedAt: time.Now(),
		}
		if err := s.store.SaveMessage(persistCtx, replyMsg); err != nil {
			s.logger.Error("recording reply failed", "room_id", roomID, "error", err)
		} else {
			result.ReplyID = replyMsg.ID
		}
	}

	if sendErr != nil {
		// A conversation the hub refuses outright is dead; start over next time.
		if bing.IsHubRejected(sendErr) && (reply == nil || !reply.Accepted) {
			if err := s.store.ClearRoomSession(persistCtx, roomID); err != nil {
				s.logger.Error("clearing rejected session failed", "room_id", roomID, "error", err)
			}
		}
		s.logger.Warn("message send failed",
			"room_id", roomID,
			"user_id", auth.UserID(ctx),
			"accepted", reply != nil && reply.Accepted,
			"error", sendErr)
		return result, fmt.Errorf("sending message: %w", sendErr)
	}

	s.logger.Debug("message relayed",
		"room_id", roomID,
		"message_id", userMsg.ID,
		"num_user_messages", result.NumUserMessages)
	return result, nil
}

func sessionOf(room *store.Room) *bing.Session {
	return &bing.Session{
		ConversationID:        room.ConversationID,
		ConversationSignature: room.ConversationSignature,
		ClientID:              room.ClientID,
		NumUserMessages:       room.NumUserMessages,
	}
}
