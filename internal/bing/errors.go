// ABOUTME: Error taxonomy for the Bing relay
// ABOUTME: Sentinels for errors.Is plus NegotiationError carrying room and response context

package bing

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionCreationFailed is a transport or HTTP failure during negotiation.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrSessionRejected means the service answered but refused the session.
	// Usually transient; callers may retry.
	ErrSessionRejected = errors.New("session rejected")

	// ErrTemplateMalformed means a rendered request is not a usable document.
	ErrTemplateMalformed = errors.New("request template malformed")

	// ErrTemplateInvalid is returned when loading a template that fails validation.
	ErrTemplateInvalid = errors.New("request template invalid")

	// ErrRelayWriteFailed means the client stream rejected a chunk.
	ErrRelayWriteFailed = errors.New("relay write failed")

	// ErrHubRejected means the ChatHub refused or aborted a message.
	ErrHubRejected = errors.New("chat hub rejected message")
)

const (
	msgCreationFailed = "Failed to create a Bing conversation, please try again later"
	msgRejected       = "Bing refused to open a conversation, please try again later"
)

// NegotiationError describes a failed conversation negotiation.
type NegotiationError struct {
	Kind       error // ErrSessionCreationFailed or ErrSessionRejected
	RoomID     string
	StatusCode int    // HTTP status, 0 when the request never completed
	Status     string // result.value from the service, if parsed
	Message    string // result.message from the service, if parsed
	Err        error  // underlying cause, may be nil
}

func (e *NegotiationError) Error() string {
	switch {
	case e.Status != "":
		return fmt.Sprintf("%v: room %s: status %q: %s", e.Kind, e.RoomID, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%v: room %s: %v", e.Kind, e.RoomID, e.Err)
	default:
		return fmt.Sprintf("%v: room %s: http %d", e.Kind, e.RoomID, e.StatusCode)
	}
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *NegotiationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns text suitable for showing to the end user.
func (e *NegotiationError) UserMessage() string {
	if errors.Is(e.Kind, ErrSessionRejected) {
		return msgRejected
	}
	return msgCreationFailed
}

// IsRetryable reports whether err is a negotiation failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSessionRejected)
}

// UserMessage returns the user-facing text for err, or "" if err is not a
// negotiation failure.
func UserMessage(err error) string {
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return ne.UserMessage()
	}
	return ""
}
