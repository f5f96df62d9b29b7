// ABOUTME: HTTP API handlers for rooms, history, and streamed message sends
// ABOUTME: Maps relay errors to status codes before the stream starts and to SSE events after

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/bing-cell/internal/auth"
	"github.com/2389/bing-cell/internal/bing"
	"github.com/2389/bing-cell/internal/idempotency"
	"github.com/2389/bing-cell/internal/room"
	"github.com/2389/bing-cell/internal/store"
)

// idempotencyHeader carries an optional client key for message sends.
const idempotencyHeader = "Idempotency-Key"

const (
	// streamErrorTimeout bounds writing the final "error" event.
	streamErrorTimeout = 5 * time.Second

	maxRequestBody   = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 1000
)

// CreateRoomRequest is the JSON request body for POST /api/rooms.
type CreateRoomRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest is the JSON request body for POST /api/rooms/{id}/messages.
type SendMessageRequest struct {
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"` // or the Idempotency-Key header
}

// RoomResponse is the JSON representation of a room.
type RoomResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	HasSession      bool   `json:"has_session"`
	ConversationID  string `json:"conversation_id,omitempty"`
	NumUserMessages int    `json:"num_user_messages"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// ListRoomsResponse is the JSON response for GET /api/rooms.
type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

// SessionResponse is the JSON response for POST /api/rooms/{id}/session.
type SessionResponse struct {
	RoomID           string `json:"room_id"`
	ConversationID   string `json:"conversation_id"`
	NumUserMessages  int    `json:"num_user_messages"`
	IsStartOfSession bool   `json:"is_start_of_session"`
}

// MessageResponse is the JSON representation of a history entry.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	HTML      string `json:"html,omitempty"`
	CreatedAt string `json:"created_at"`
}

// RoomMessagesResponse is the JSON response for GET /api/rooms/{id}/messages.
type RoomMessagesResponse struct {
	RoomID   string            `json:"room_id"`
	Messages []MessageResponse `json:"messages"`
}

// registerAPIRoutes adds the room API to mux behind the identity middleware.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, identify func(http.Handler) http.Handler) {
	routes := map[string]http.HandlerFunc{
		"POST /api/rooms":                g.handleCreateRoom,
		"GET /api/rooms":                 g.handleListRooms,
		"GET /api/rooms/{id}":            g.handleGetRoom,
		"POST /api/rooms/{id}/session":   g.handleEnsureSession,
		"DELETE /api/rooms/{id}/session": g.handleResetSession,
		"GET /api/rooms/{id}/messages":   g.handleRoomMessages,
		"POST /api/rooms/{id}/messages":  g.handleSendMessage,
	}
	for pattern, h := range routes {
		mux.Handle(pattern, identify(h))
	}
}

func (g *Gateway) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rm, err := g.rooms.CreateRoom(r.Context(), req.Title)
	if err != nil {
		g.writeRoomError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, toRoomResponse(rm))
}

func (g *Gateway) handleListRooms(w http.ResponseWriter, r *http.Request) {
	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	rooms, err := g.rooms.ListRooms(r.Context(), limit)
	if err != nil {
		g.writeRoomError(w, r, err)
		return
	}

	resp := ListRoomsResponse{Rooms: make([]RoomResponse, len(rooms))}
	for i, rm := range rooms {
		resp.Rooms[i] = toRoomResponse(rm)
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := g.rooms.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		g.writeRoomError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toRoomResponse(rm))
}

func (g *Gateway) handleEnsureSession(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	sess, err := g.rooms.EnsureSession(r.Context(), roomID)
	if err != nil {
		g.writeRoomError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, SessionResponse{
		RoomID:           roomID,
		ConversationID:   sess.ConversationID,
		NumUserMessages:  sess.NumUserMessages,
		IsStartOfSession: sess.IsStart(),
	})
}

func (g *Gateway) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := g.rooms.ResetSession(r.Context(), r.PathValue("id")); err != nil {
		g.writeRoomError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "html" {
		g.sendJSONError(w, http.StatusBadRequest, "format must be json or html")
		return
	}

	messages, err := g.rooms.History(r.Context(), roomID, limit)
	if err != nil {
		g.writeRoomError(w, r, err)
		return
	}

	resp := RoomMessagesResponse{
		RoomID:   roomID,
		Messages: make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		mr := MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		}
		if format == "html" && msg.Role == store.RoleAssistant {
			html, err := renderMarkdown(msg.Content)
			if err != nil {
				g.logger.Warn("rendering reply failed", "message_id", msg.ID, "error", err)
			} else {
				mr.HTML = html
			}
		}
		resp.Messages[i] = mr
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleSendMessage relays one user message and streams the reply as SSE.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var req SendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	key := req.IdempotencyKey
	if h := r.Header.Get(idempotencyHeader); h != "" {
		key = h
	}
	if len(key) > idempotency.MaxKeyLength {
		g.sendJSONError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}
	if key != "" {
		key = idempotency.Key(auth.UserID(r.Context()), roomID, key)
		if !g.sends.Claim(key) {
			g.logger.Info("duplicate send ignored", "room_id", roomID, "user_id", auth.UserID(r.Context()))
			g.sendJSONError(w, http.StatusConflict, "duplicate message")
			return
		}
	}

	ctx := r.Context()
	if timeout := g.config.Bing.ReplyTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sse := newSSEWriter(w, roomID)
	result, err := g.rooms.SendMessage(ctx, roomID, req.Content, sse)
	if key != "" && !accepted(result) {
		// Bing never took the message; let the client retry with the same key.
		g.sends.Release(key)
	}
	if err != nil {
		if !sse.started {
			g.writeRoomError(w, r, err)
			return
		}
		g.logger.Warn("stream ended with error",
			"room_id", roomID,
			"user_id", auth.UserID(r.Context()),
			"error", err)
		if !errors.Is(err, bing.ErrRelayWriteFailed) {
			// ctx may be the expired reply deadline; the client can still read.
			errCtx, cancel := context.WithTimeout(r.Context(), streamErrorTimeout)
			defer cancel()
			_ = sse.event(errCtx, "error", map[string]string{"error": streamErrorMessage(err)})
		}
		return
	}

	// Replies with no text still get a well-formed stream.
	if err := sse.start(ctx); err != nil {
		return
	}
	var fullResponse string
	if result.Reply != nil {
		fullResponse = result.Reply.Text
	}
	_ = sse.event(ctx, "done", map[string]any{
		"message_id":        result.MessageID,
		"reply_id":          result.ReplyID,
		"full_response":     fullResponse,
		"num_user_messages": result.NumUserMessages,
	})
}

func accepted(result *room.SendResult) bool {
	return result != nil && result.Reply != nil && result.Reply.Accepted
}

// writeRoomError maps service errors to JSON error responses.
func (g *Gateway) writeRoomError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		g.sendJSONError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrEmptyContent):
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
	case errors.Is(err, bing.ErrSessionCreationFailed), errors.Is(err, bing.ErrSessionRejected):
		g.sendJSONError(w, http.StatusBadGateway, bing.UserMessage(err))
	case errors.Is(err, bing.ErrHubRejected):
		g.sendJSONError(w, http.StatusBadGateway, "Bing did not accept the message, please try again later")
	case errors.Is(err, context.DeadlineExceeded):
		g.sendJSONError(w, http.StatusGatewayTimeout, "timed out waiting for Bing")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
	default:
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", auth.UserID(r.Context()),
			"error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// streamErrorMessage is the text of an "error" event.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, bing.ErrHubRejected):
		return "Bing stopped answering, please try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for Bing"
	default:
		return "reply interrupted"
	}
}

// parseLimit reads the optional ?limit parameter (default 50, max 1000).
func (g *Gateway) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = min(parsed, maxListLimit)
	}
	return limit, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

func toRoomResponse(rm *store.Room) RoomResponse {
	return RoomResponse{
		ID:              rm.ID,
		Title:           rm.Title,
		HasSession:      rm.HasSession(),
		ConversationID:  rm.ConversationID,
		NumUserMessages: rm.NumUserMessages,
		CreatedAt:       rm.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       rm.UpdatedAt.Format(time.RFC3339),
	}
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
