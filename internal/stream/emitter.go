// Package stream writes pipeline streams to HTTP clients as Server-Sent Events.
//
// Every chunk is framed as "data: <json>\n\n". A replayed cache hit ends with
// a [CACHE_END] frame before the [DONE] terminator. A failure is written as an
// "error" event and the stream ends without a terminator.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Terminal markers written after the final chunk.
const (
	CacheEndMarker = "[CACHE_END]"
	DoneMarker     = "[DONE]"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// ErrorBody is the payload of an "error" event.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed stream.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Emitter frames pipeline streams as SSE.
type Emitter struct{}

// NewEmitter creates an emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit writes s to w until the stream ends, fails, or ctx is done. The
// stream is always closed on return, which cancels a live provider call.
// Response headers set before Emit is called are sent with the first frame.
func (e *Emitter) Emit(ctx context.Context, w http.ResponseWriter, s *domain.Stream) error {
	defer s.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	logger := observability.FromContext(ctx)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("client disconnected during stream", observability.Int("frames", frames))
			return ctx.Err()

		case chunk, ok := <-s.Chunks:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				err := domain.ErrStreamIncomplete
				if writeErr := writeError(w, err); writeErr != nil {
					return writeErr
				}
				flusher.Flush()
				return err
			}

			if chunk.Error != nil {
				logger.Error("stream chunk error", observability.Error(chunk.Error))
				if err := writeError(w, chunk.Error); err != nil {
					return err
				}
				flusher.Flush()
				return chunk.Error
			}

			if err := writeChunk(w, chunk); err != nil {
				return err
			}
			frames++

			if chunk.Done {
				if s.CacheHit() {
					if err := writeData(w, CacheEndMarker); err != nil {
						return err
					}
				}
				if err := writeData(w, DoneMarker); err != nil {
					return err
				}
				flusher.Flush()

				logger.Debug("stream completed",
					observability.Int("frames", frames),
					observability.Bool("cache_hit", s.CacheHit()))
				return nil
			}

			flusher.Flush()
		}
	}
}

func writeChunk(w http.ResponseWriter, chunk domain.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}
	return writeData(w, string(data))
}

func writeData(w http.ResponseWriter, payload string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, streamErr error) error {
	body := ErrorBody{Error: ErrorDetail{
		Message: streamErr.Error(),
		Type:    errorType(streamErr),
		Code:    domain.HTTPStatus(streamErr),
	}}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode error: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func errorType(err error) string {
	if errors.Is(err, domain.ErrStreamIncomplete) {
		return "stream_incomplete"
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		switch {
		case providerErr.Overloaded():
			return "overloaded"
		case providerErr.Timeout():
			return "timeout"
		}
		return "provider_error"
	}

	return "internal_error"
}
