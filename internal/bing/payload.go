// ABOUTME: Payload Builder: renders the ChatHub request body for one user message
// ABOUTME: isStartOfSession is derived strictly from the session's message count

package bing

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Builder renders request bodies from a Template.
type Builder struct {
	tpl *Template
}

// NewBuilder creates a Builder. A nil template selects DefaultTemplate.
func NewBuilder(tpl *Template) *Builder {
	if tpl == nil {
		tpl = DefaultTemplate()
	}
	return &Builder{tpl: tpl}
}

// BuildRequest returns the request body for sending content on sess.
// The session is not modified.
func (b *Builder) BuildRequest(sess *Session, content string) (string, error) {
	if err := sess.Validate(); err != nil {
		return "", err
	}

	text := substitute(b.tpl.raw,
		escapeJSON(sess.ConversationID),
		escapeJSON(sess.ConversationSignature),
		escapeJSON(sess.ClientID),
		escapeJSON(content),
	)

	if !gjson.Valid(text) {
		return "", fmt.Errorf("%w: rendered request is not valid JSON", ErrTemplateMalformed)
	}
	if !gjson.Get(text, argumentsPath).IsObject() {
		return "", fmt.Errorf("%w: %s missing from rendered request", ErrTemplateMalformed, argumentsPath)
	}

	// true after the first message makes the service repeat its first answer;
	// false on the first message is rejected.
	out, err := sjson.Set(text, argumentsPath+".isStartOfSession", sess.IsStart())
	if err != nil {
		return "", fmt.Errorf("%w: setting isStartOfSession: %v", ErrTemplateMalformed, err)
	}
	return out, nil
}

// Build is BuildRequest for an OutboundMessage.
func (b *Builder) Build(msg OutboundMessage) (string, error) {
	return b.BuildRequest(msg.Session, msg.Content)
}

// escapeJSON returns s encoded as the inside of a JSON string literal.
func escapeJSON(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(data[1 : len(data)-1])
}
