// ABOUTME: Tests for the Stream Relay
// ABOUTME: Covers verbatim ordered forwarding, write failures, and cancellation

package bing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	chunks []string
	err    error
}

func (w *recordingWriter) WriteChunk(ctx context.Context, chunk string) error {
	if w.err != nil {
		return w.err
	}
	w.chunks = append(w.chunks, chunk)
	return nil
}

func TestRelay_PreservesOrderAndContent(t *testing.T) {
	w := &recordingWriter{}
	ctx := context.Background()

	chunks := []string{"Hel", "lo", "", " wor\u00e9ld\n", "{\"not\":\"parsed\"}"}
	for _, c := range chunks {
		require.NoError(t, Relay(ctx, w, c))
	}
	assert.Equal(t, chunks, w.chunks)
}

func TestRelay_WriteFailure(t *testing.T) {
	cause := errors.New("broken pipe")
	w := &recordingWriter{err: cause}

	err := Relay(context.Background(), w, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRelayWriteFailed)
	assert.ErrorIs(t, err, cause)
}

func TestRelay_CanceledContext(t *testing.T) {
	w := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Relay(ctx, w, "hello")
	assert.ErrorIs(t, err, ErrRelayWriteFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.chunks, "nothing may be written after cancellation")
}

func TestRelay_WriterHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := ChunkWriterFunc(func(ctx context.Context, chunk string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	err := Relay(ctx, blocked, "hello")
	assert.ErrorIs(t, err, ErrRelayWriteFailed)
	assert.ErrorIs(t, err, context.Canceled)
}
