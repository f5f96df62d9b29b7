// ABOUTME: Stream Relay: forwards one reply fragment to an open client stream
// ABOUTME: Write failures surface as ErrRelayWriteFailed; nothing is buffered or retried

package bing

import (
	"context"
	"fmt"
)

// ChunkWriter is a long-lived, write-only client stream. It is opened and
// closed by the web layer. WriteChunk must give up when ctx ends.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, chunk string) error
}

// ChunkWriterFunc adapts a function to ChunkWriter.
type ChunkWriterFunc func(ctx context.Context, chunk string) error

// WriteChunk implements ChunkWriter.
func (f ChunkWriterFunc) WriteChunk(ctx context.Context, chunk string) error {
	return f(ctx, chunk)
}

// Relay forwards chunk to w unchanged. A canceled ctx or a failed write is
// returned as ErrRelayWriteFailed; the caller decides whether to abandon the
// rest of the response.
func Relay(ctx context.Context, w ChunkWriter, chunk string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRelayWriteFailed, err)
	}
	if err := w.WriteChunk(ctx, chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrRelayWriteFailed, err)
	}
	return nil
}
