// ABOUTME: Server-Sent Events writer used as the relay's client stream
// ABOUTME: Starts the stream lazily so pre-stream failures can still use HTTP status codes

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// sseWriter implements bing.ChunkWriter on top of an HTTP response.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	roomID  string
	started bool
}

func newSSEWriter(w http.ResponseWriter, roomID string) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w), roomID: roomID}
}

// start sends the SSE headers and the "started" event once.
func (s *sseWriter) start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true

	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	return s.event(ctx, "started", map[string]string{"room_id": s.roomID})
}

// WriteChunk sends one "text" event.
func (s *sseWriter) WriteChunk(ctx context.Context, chunk string) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	return s.event(ctx, "text", map[string]string{"text": chunk})
}

// event writes and flushes one event. A deadline on ctx bounds the write so a
// stalled client cannot block the relay.
func (s *sseWriter) event(ctx context.Context, name string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", name, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		defer func() { _ = s.rc.SetWriteDeadline(time.Time{}) }()
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing %s event: %w", name, err)
	}
	return nil
}
