// ABOUTME: Session Negotiator: opens a conversation with the remote service
// ABOUTME: Distinguishes transport failures from application-level rejection; never retries

package bing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/2389/bing-cell/internal/auth"
)

// DefaultCreateURL is the conversation creation endpoint.
const DefaultCreateURL = "https://www.bing.com/turing/conversation/create"

// StatusSuccess is the only result.value that makes a creation result usable.
const StatusSuccess = "Success"

// maxCreateBody caps how much of the creation response is read.
const maxCreateBody = 1 << 20

// CreateResult is the body returned by the creation endpoint.
type CreateResult struct {
	ConversationID        string       `json:"conversationId"`
	ClientID              string       `json:"clientId"`
	ConversationSignature string       `json:"conversationSignature"`
	Result                ResultStatus `json:"result"`
}

// ResultStatus is the application-level outcome reported by the service.
type ResultStatus struct {
	Value   string `json:"value"`
	Message string `json:"message,omitempty"`
}

// Session converts a successful result into a fresh Session.
func (r *CreateResult) Session() *Session {
	return &Session{
		ConversationID:        r.ConversationID,
		ConversationSignature: r.ConversationSignature,
		ClientID:              r.ClientID,
	}
}

// Negotiator opens conversations. It performs exactly one request per call.
type Negotiator struct {
	client    *http.Client
	createURL string
	logger    *slog.Logger
}

// NewNegotiator creates a Negotiator. client should come from NewHTTPClient so
// that proxy routing applies. An empty createURL selects DefaultCreateURL.
func NewNegotiator(client *http.Client, createURL string, logger *slog.Logger) *Negotiator {
	if client == nil {
		client = http.DefaultClient
	}
	if createURL == "" {
		createURL = DefaultCreateURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{
		client:    client,
		createURL: createURL,
		logger:    logger.With("component", "negotiator"),
	}
}

// CreateConversation opens a new conversation for roomID.
//
// Errors wrap ErrSessionCreationFailed when the request fails, returns a
// non-2xx status, or the body cannot be parsed, and ErrSessionRejected when
// the body parses but result.value is not StatusSuccess. Both are
// *NegotiationError values.
func (n *Negotiator) CreateConversation(ctx context.Context, roomID string) (*Session, error) {
	userID := auth.UserID(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.createURL, nil)
	if err != nil {
		return nil, &NegotiationError{Kind: ErrSessionCreationFailed, RoomID: roomID, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("conversation create request failed",
			"room_id", roomID,
			"user_id", userID,
			"error", err)
		return nil, &NegotiationError{Kind: ErrSessionCreationFailed, RoomID: roomID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCreateBody))
	if err != nil {
		n.logger.Warn("reading conversation create response failed",
			"room_id", roomID,
			"user_id", userID,
			"status_code", resp.StatusCode,
			"error", err)
		return nil, &NegotiationError{Kind: ErrSessionCreationFailed, RoomID: roomID, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("conversation create returned error status",
			"room_id", roomID,
			"user_id", userID,
			"status_code", resp.StatusCode,
			"response", string(body))
		return nil, &NegotiationError{Kind: ErrSessionCreationFailed, RoomID: roomID, StatusCode: resp.StatusCode}
	}

	var result CreateResult
	if err := json.Unmarshal(body, &result); err != nil {
		n.logger.Warn("conversation create response is not valid JSON",
			"room_id", roomID,
			"user_id", userID,
			"response", string(body),
			"error", err)
		return nil, &NegotiationError{
			Kind:       ErrSessionCreationFailed,
			RoomID:     roomID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding response: %w", err),
		}
	}

	// The service sometimes answers UnauthorizedRequest for a while; callers retry.
	if result.Result.Value != StatusSuccess {
		n.logger.Warn("conversation create rejected",
			"room_id", roomID,
			"user_id", userID,
			"status", result.Result.Value,
			"response", string(body))
		return nil, &NegotiationError{
			Kind:       ErrSessionRejected,
			RoomID:     roomID,
			StatusCode: resp.StatusCode,
			Status:     result.Result.Value,
			Message:    result.Result.Message,
		}
	}

	sess := result.Session()
	if err := sess.Validate(); err != nil {
		n.logger.Warn("conversation create returned incomplete session",
			"room_id", roomID,
			"user_id", userID,
			"response", string(body),
			"error", err)
		return nil, &NegotiationError{Kind: ErrSessionCreationFailed, RoomID: roomID, StatusCode: resp.StatusCode, Err: err}
	}

	n.logger.Debug("conversation created",
		"room_id", roomID,
		"user_id", userID,
		"conversation_id", sess.ConversationID)
	return sess, nil
}
