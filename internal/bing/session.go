// ABOUTME: Conversation session state shared between negotiation and message sends
// ABOUTME: Session is read-only inside this package; callers own the message count

package bing

import (
	"errors"
	"fmt"
)

// ErrSessionIncomplete is returned when a session is missing an identifier.
var ErrSessionIncomplete = errors.New("session incomplete")

// Session identifies one conversation with the remote service.
type Session struct {
	ConversationID        string
	ConversationSignature string
	ClientID              string
	// NumUserMessages counts user messages the service accepted in this conversation.
	NumUserMessages int
}

// Validate reports whether the session can be used to send a message.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrSessionIncomplete)
	}
	switch {
	case s.ConversationID == "":
		return fmt.Errorf("%w: conversation id is empty", ErrSessionIncomplete)
	case s.ConversationSignature == "":
		return fmt.Errorf("%w: conversation signature is empty", ErrSessionIncomplete)
	case s.ClientID == "":
		return fmt.Errorf("%w: client id is empty", ErrSessionIncomplete)
	case s.NumUserMessages < 0:
		return fmt.Errorf("%w: negative message count %d", ErrSessionIncomplete, s.NumUserMessages)
	}
	return nil
}

// IsStart reports whether the next message opens the conversation.
func (s *Session) IsStart() bool {
	return s.NumUserMessages == 0
}

// OutboundMessage is one user message addressed to a session.
type OutboundMessage struct {
	Session *Session
	Content string
}
