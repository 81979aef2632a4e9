package stream_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/stream"
)

type frame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []frame {
	t.Helper()

	var frames []frame
	var current frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.data != "" {
				frames = append(frames, current)
			}
			current = frame{}
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		default:
			t.Fatalf("unexpected line %q", line)
		}
	}
	require.NoError(t, scanner.Err())
	require.Empty(t, current.data, "stream must end on a frame boundary")
	return frames
}

func feed(chunks ...domain.StreamChunk) <-chan domain.StreamChunk {
	ch := make(chan domain.StreamChunk, len(chunks))
	for _, chunk := range chunks {
		ch <- chunk
	}
	close(ch)
	return ch
}

func deltas(t *testing.T, frames []frame) string {
	t.Helper()

	var sb strings.Builder
	for _, f := range frames {
		if f.event != "" || strings.HasPrefix(f.data, "[") {
			continue
		}
		var chunk domain.StreamChunk
		require.NoError(t, json.Unmarshal([]byte(f.data), &chunk))
		sb.WriteString(chunk.Delta)
	}
	return sb.String()
}

func TestEmitter_LiveStream(t *testing.T) {
	rec := httptest.NewRecorder()
	s := &domain.Stream{
		Chunks: feed(
			domain.StreamChunk{Delta: "Hello"},
			domain.StreamChunk{Delta: ", world"},
			domain.StreamChunk{Done: true, FinishReason: "stop"},
		),
		Cache: &domain.CacheInfo{Hit: false},
	}

	err := stream.NewEmitter().Emit(context.Background(), rec, s)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 4)
	require.Equal(t, stream.DoneMarker, frames[3].data)
	require.Equal(t, "Hello, world", deltas(t, frames))

	for _, f := range frames {
		require.NotEqual(t, stream.CacheEndMarker, f.data)
	}
}

func TestEmitter_CacheReplay(t *testing.T) {
	rec := httptest.NewRecorder()
	s := &domain.Stream{
		Chunks: feed(
			domain.StreamChunk{Delta: "Photosynthesis converts "},
			domain.StreamChunk{Delta: "light into energy."},
			domain.StreamChunk{Done: true, FinishReason: "stop"},
		),
		Cache: &domain.CacheInfo{Hit: true, SimilarityScore: 0.97},
	}

	require.NoError(t, stream.NewEmitter().Emit(context.Background(), rec, s))

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 5)
	require.Equal(t, stream.CacheEndMarker, frames[3].data)
	require.Equal(t, stream.DoneMarker, frames[4].data)
	require.Equal(t, "Photosynthesis converts light into energy.", deltas(t, frames))
}

func TestEmitter_ErrorChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	providerErr := domain.NewProviderError("openai", http.StatusTooManyRequests, errors.New("slow down"))
	s := &domain.Stream{
		Chunks: feed(
			domain.StreamChunk{Delta: "partial"},
			domain.StreamChunk{Error: providerErr},
		),
	}

	err := stream.NewEmitter().Emit(context.Background(), rec, s)
	require.ErrorIs(t, err, providerErr)

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	require.Equal(t, "error", frames[1].event)

	var body stream.ErrorBody
	require.NoError(t, json.Unmarshal([]byte(frames[1].data), &body))
	require.Equal(t, "overloaded", body.Error.Type)
	require.Equal(t, http.StatusTooManyRequests, body.Error.Code)

	for _, f := range frames {
		require.NotEqual(t, stream.DoneMarker, f.data)
	}
}

func TestEmitter_ProducerClosedEarly(t *testing.T) {
	rec := httptest.NewRecorder()
	s := &domain.Stream{Chunks: feed(domain.StreamChunk{Delta: "half"})}

	err := stream.NewEmitter().Emit(context.Background(), rec, s)
	require.ErrorIs(t, err, domain.ErrStreamIncomplete)

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	require.Equal(t, "error", frames[1].event)
	require.Contains(t, frames[1].data, "stream_incomplete")
}

func TestEmitter_ClientDisconnect(t *testing.T) {
	rec := httptest.NewRecorder()
	chunks := make(chan domain.StreamChunk)
	s := &domain.Stream{Chunks: chunks}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stream.NewEmitter().Emit(ctx, rec, s)
	}()

	chunks <- domain.StreamChunk{Delta: "first"}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("emitter did not stop after disconnect")
	}
}

type plainWriter struct {
	header http.Header
}

func (w *plainWriter) Header() http.Header {
	return w.header
}

func (w *plainWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (w *plainWriter) WriteHeader(int) {}

func TestEmitter_RequiresFlusher(t *testing.T) {
	s := &domain.Stream{Chunks: feed()}

	err := stream.NewEmitter().Emit(context.Background(), &plainWriter{header: http.Header{}}, s)
	require.ErrorIs(t, err, stream.ErrStreamingUnsupported)
}
