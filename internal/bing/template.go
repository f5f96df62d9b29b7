// ABOUTME: Request template loading and load-time validation
// ABOUTME: Templates are explicit values injected into Builder, never process-global state

package bing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Placeholder tokens replaced verbatim in the template text.
const (
	PlaceholderConversationID        = "$conversationId"
	PlaceholderConversationSignature = "$conversationSignature"
	PlaceholderClientID              = "$clientId"
	PlaceholderPrompt                = "$prompt"
)

// argumentsPath addresses the first element of the "arguments" list.
const argumentsPath = "arguments.0"

//go:embed templates/send.json
var defaultTemplate []byte

// Template is a validated ChatHub request template.
type Template struct {
	raw string
}

// DefaultTemplate returns the embedded template.
func DefaultTemplate() *Template {
	t, err := ParseTemplate(defaultTemplate)
	if err != nil {
		panic("bing: embedded template is invalid: " + err.Error())
	}
	return t
}

// LoadTemplate reads and validates a template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

// ParseTemplate validates data as a template. Every placeholder must appear,
// the text must be valid JSON once placeholders are filled, and the
// "arguments" list must start with an object.
func ParseTemplate(data []byte) (*Template, error) {
	raw := string(data)
	for _, p := range []string{
		PlaceholderConversationID,
		PlaceholderConversationSignature,
		PlaceholderClientID,
		PlaceholderPrompt,
	} {
		if !strings.Contains(raw, p) {
			return nil, fmt.Errorf("%w: missing placeholder %s", ErrTemplateInvalid, p)
		}
	}

	probe := substitute(raw, "probe-conversation", "probe-signature", "probe-client", "probe prompt")
	if !gjson.Valid(probe) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrTemplateInvalid)
	}
	if !gjson.Get(probe, argumentsPath).IsObject() {
		return nil, fmt.Errorf("%w: %s is not an object", ErrTemplateInvalid, argumentsPath)
	}
	return &Template{raw: raw}, nil
}

// substitute replaces every placeholder with its value, untouched.
func substitute(raw, conversationID, signature, clientID, prompt string) string {
	r := strings.NewReplacer(
		PlaceholderConversationSignature, signature,
		PlaceholderConversationID, conversationID,
		PlaceholderClientID, clientID,
		PlaceholderPrompt, prompt,
	)
	return r.Replace(raw)
}
