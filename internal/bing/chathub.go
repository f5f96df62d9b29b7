// ABOUTME: ChatHub client: sends a built request over WebSocket and yields reply fragments
// ABOUTME: Records are 0x1e-separated JSON; updates carry cumulative text, emitted as deltas

package bing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

// DefaultChatHubURL is the message-send endpoint.
const DefaultChatHubURL = "wss://sydney.bing.com/sydney/ChatHub"

// recordSeparator terminates every record on the ChatHub wire.
const recordSeparator = "\x1e"

// handshake selects the JSON hub protocol.
const handshake = `{"protocol":"json","version":1}`

// ChatHub record types.
const (
	frameUpdate     = 1
	frameFinal      = 2
	frameCompletion = 3
	framePing       = 6
	frameClose      = 7
)

// hubReadLimit bounds a single WebSocket message; final items carry the whole
// answer plus search metadata.
const hubReadLimit = 4 << 20

// Reply summarizes one ChatHub exchange.
type Reply struct {
	// Accepted is true once the service produced any answer frame. The
	// message counts as sent from then on, even if relaying failed.
	Accepted bool
	// Text is the concatenation of every emitted chunk.
	Text string
	// ResultValue is item.result.value of the final frame.
	ResultValue string
}

// ChunkFunc receives reply fragments in wire order. A non-nil error aborts
// the exchange and is returned from Send unchanged.
type ChunkFunc func(chunk string) error

// Hub sends requests to the ChatHub endpoint.
type Hub struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewHub creates a Hub. client should come from NewHTTPClient. An empty url
// selects DefaultChatHubURL.
func NewHub(client *http.Client, url string, logger *slog.Logger) *Hub {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultChatHubURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		client: client,
		url:    url,
		logger: logger.With("component", "chathub"),
	}
}

// Send delivers body and streams the answer through onChunk. The returned
// Reply is non-nil whenever the connection was established.
func (h *Hub) Send(ctx context.Context, body string, onChunk ChunkFunc) (*Reply, error) {
	conn, _, err := websocket.Dial(ctx, h.url, &websocket.DialOptions{HTTPClient: h.client})
	if err != nil {
		return nil, fmt.Errorf("dialing chat hub: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(hubReadLimit)

	if err := conn.Write(ctx, websocket.MessageText, []byte(handshake+recordSeparator)); err != nil {
		return nil, fmt.Errorf("writing handshake: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(body+recordSeparator)); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	ex := &exchange{reply: &Reply{}, onChunk: onChunk}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ex.reply, ctxErr
			}
			return ex.reply, fmt.Errorf("reading chat hub: %w", err)
		}

		done, err := ex.consume(string(data))
		if err != nil {
			return ex.reply, err
		}
		if done {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			h.logger.Debug("chat hub exchange complete",
				"result", ex.reply.ResultValue,
				"chars", len(ex.reply.Text))
			return ex.reply, nil
		}
	}
}

// exchange tracks the state of one request/answer cycle.
type exchange struct {
	reply   *Reply
	onChunk ChunkFunc
	last    string // cumulative text of the latest update
}

// consume handles every record in one WebSocket message. done is true once
// the completion record arrived.
func (e *exchange) consume(data string) (done bool, err error) {
	for _, rec := range strings.Split(data, recordSeparator) {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		if !gjson.Valid(rec) {
			return false, fmt.Errorf("%w: malformed record", ErrHubRejected)
		}

		switch gjson.Get(rec, "type").Int() {
		case frameUpdate:
			msg := gjson.Get(rec, "arguments.0.messages.0")
			if !msg.Exists() {
				continue
			}
			e.reply.Accepted = true
			// Search progress and cards arrive with a messageType; only chat text is relayed.
			if mt := msg.Get("messageType"); mt.Exists() && mt.String() != "Chat" {
				continue
			}
			if err := e.update(msg.Get("text").String()); err != nil {
				return false, err
			}

		case frameFinal:
			e.reply.Accepted = true
			result := gjson.Get(rec, "item.result")
			e.reply.ResultValue = result.Get("value").String()
			if e.reply.ResultValue != StatusSuccess {
				return false, fmt.Errorf("%w: %s: %s", ErrHubRejected,
					e.reply.ResultValue, result.Get("message").String())
			}
			if e.reply.Text == "" {
				if err := e.update(finalBotText(rec)); err != nil {
					return false, err
				}
			}

		case frameCompletion:
			if msg := gjson.Get(rec, "error"); msg.Exists() {
				return false, fmt.Errorf("%w: %s", ErrHubRejected, msg.String())
			}
			return true, nil

		case frameClose:
			return false, fmt.Errorf("%w: connection closed by hub: %s", ErrHubRejected,
				gjson.Get(rec, "error").String())

		case framePing:
		}
	}
	return false, nil
}

// update emits the part of text not seen yet. If the service rewrote earlier
// text the whole new text is emitted.
func (e *exchange) update(text string) error {
	chunk := text
	if strings.HasPrefix(text, e.last) {
		chunk = text[len(e.last):]
	}
	e.last = text
	if chunk == "" {
		return nil
	}
	e.reply.Text += chunk
	if e.onChunk == nil {
		return nil
	}
	return e.onChunk(chunk)
}

// finalBotText returns the last plain bot message of a final record.
func finalBotText(rec string) string {
	var text string
	gjson.Get(rec, "item.messages").ForEach(func(_, m gjson.Result) bool {
		if m.Get("author").String() == "bot" && !m.Get("messageType").Exists() {
			text = m.Get("text").String()
		}
		return true
	})
	return text
}

// IsHubRejected reports whether err came from the hub refusing the message.
func IsHubRejected(err error) bool {
	return errors.Is(err, ErrHubRejected)
}
