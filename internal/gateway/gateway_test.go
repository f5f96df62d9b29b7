// ABOUTME: Tests for the Gateway orchestrator lifecycle and an end-to-end relay round trip
// ABOUTME: Fake Bing endpoints run in-process (HTTP for creation, WebSocket for the ChatHub)

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/bing-cell/internal/config"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
		Auth: config.AuthConfig{
			Mode: "header",
		},
		Bing: config.BingConfig{
			RequestTimeout: 5 * time.Second,
			ReplyTimeout:   10 * time.Second,
		},
		Negotiation: config.NegotiationConfig{
			MaxAttempts: 2,
			PerMinute:   600,
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBing serves the creation endpoint and the ChatHub.
type fakeBing struct {
	creates    atomic.Int32
	createBody string
	requests   chan string

	create *httptest.Server
	hub    *httptest.Server
}

func newFakeBing(t *testing.T) *fakeBing {
	t.Helper()
	f := &fakeBing{
		createBody: `{"conversationId":"conv-1","clientId":"client-1","conversationSignature":"sig-1","result":{"value":"Success"}}`,
		requests:   make(chan string, 10),
	}

	f.create = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.creates.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.createBody)
	}))
	t.Cleanup(f.create.Close)

	f.hub = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		if _, _, err := conn.Read(ctx); err != nil { // handshake
			return
		}
		_, req, err := conn.Read(ctx)
		if err != nil {
			return
		}
		body := strings.TrimSuffix(string(req), "\x1e")
		f.requests <- body

		prompt := gjson.Get(body, "arguments.0.message.text").String()
		frames := []string{
			`{}`,
			`{"type":1,"arguments":[{"messages":[{"author":"bot","text":"You said"}]}]}`,
			`{"type":1,"arguments":[{"messages":[{"author":"bot","text":"You said **` + prompt + `**"}]}]}`,
			`{"type":2,"item":{"result":{"value":"Success"}}}`,
			`{"type":3}`,
		}
		for _, fr := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(fr+"\x1e")); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	}))
	t.Cleanup(f.hub.Close)

	return f
}

func (f *fakeBing) configure(cfg *config.Config) {
	cfg.Bing.CreateURL = f.create.URL
	cfg.Bing.ChatHubURL = "ws" + strings.TrimPrefix(f.hub.URL, "http")
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Same(t, cfg, gw.config)
	assert.NotNil(t, gw.store)
	assert.NotNil(t, gw.rooms)
	assert.NotNil(t, gw.httpServer)
}

func TestGatewayNew_BadProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bing.ProxyURL = "ftp://proxy.example"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestGatewayNew_BadTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bing.TemplatePath = t.TempDir() + "/missing.json"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	url := "http://" + cfg.Server.HTTPAddr
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}

func TestReadyEndpoint_NotServing(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	gw.handleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	Name string
	Data string
}

func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.Name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func TestFullMessageRoundTrip(t *testing.T) {
	fb := newFakeBing(t)
	cfg := testConfig(t)
	fb.configure(cfg)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	srv := httptest.NewServer(gw.httpServer.Handler)
	defer srv.Close()
	c := &apiClient{t: t, base: srv.URL, user: "alice"}

	roomID := c.createRoom("round trip")

	for i, prompt := range []string{"hello", "again"} {
		resp := c.do(http.MethodPost, "/api/rooms/"+roomID+"/messages", `{"content":"`+prompt+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		events := readSSE(t, resp.Body)
		resp.Body.Close()

		require.GreaterOrEqual(t, len(events), 3)
		assert.Equal(t, "started", events[0].Name)
		assert.Equal(t, "done", events[len(events)-1].Name)

		var text strings.Builder
		for _, ev := range events[1 : len(events)-1] {
			require.Equal(t, "text", ev.Name)
			text.WriteString(gjson.Get(ev.Data, "text").String())
		}
		assert.Equal(t, "You said **"+prompt+"**", text.String())

		done := events[len(events)-1].Data
		assert.Equal(t, int64(i+1), gjson.Get(done, "num_user_messages").Int())
		assert.Equal(t, text.String(), gjson.Get(done, "full_response").String())

		sent := <-fb.requests
		assert.Equal(t, prompt, gjson.Get(sent, "arguments.0.message.text").String())
		assert.Equal(t, i == 0, gjson.Get(sent, "arguments.0.isStartOfSession").Bool())
		assert.Equal(t, "conv-1", gjson.Get(sent, "arguments.0.conversationId").String())
	}
	assert.Equal(t, int32(1), fb.creates.Load())

	// History, rendered
	resp := c.do(http.MethodGet, "/api/rooms/"+roomID+"/messages?format=html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history RoomMessagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	resp.Body.Close()

	require.Len(t, history.Messages, 4)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Empty(t, history.Messages[0].HTML)
	assert.Equal(t, "assistant", history.Messages[1].Role)
	assert.Contains(t, history.Messages[1].HTML, "<strong>hello</strong>")

	// Room detail reflects the count
	resp = c.do(http.MethodGet, "/api/rooms/"+roomID, "")
	var detail RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	resp.Body.Close()
	assert.True(t, detail.HasSession)
	assert.Equal(t, 2, detail.NumUserMessages)
	assert.Equal(t, "conv-1", detail.ConversationID)
}

func TestSendMessage_NegotiationRejected(t *testing.T) {
	fb := newFakeBing(t)
	fb.createBody = `{"result":{"value":"UnauthorizedRequest","message":"Sorry"}}`
	cfg := testConfig(t)
	fb.configure(cfg)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	srv := httptest.NewServer(gw.httpServer.Handler)
	defer srv.Close()
	c := &apiClient{t: t, base: srv.URL, user: "alice"}

	roomID := c.createRoom("")
	resp := c.do(http.MethodPost, "/api/rooms/"+roomID+"/messages", `{"content":"hello"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "try again later")

	// Retried caller-side up to max_attempts
	assert.Equal(t, int32(2), fb.creates.Load())
	select {
	case <-fb.requests:
		t.Fatal("nothing should reach the chat hub")
	default:
	}
}
