package compression

import (
	"context"
	"errors"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	opCompress   = "compress"
	opDecompress = "decompress"
)

// Codec is a reversible text transform. Implementations may fail; Service
// turns every failure into a pass-through.
type Codec interface {
	// Name returns the codec identifier.
	Name() string

	// Encode shrinks text.
	Encode(ctx context.Context, text string) (string, error)

	// Decode restores text produced by Encode.
	Decode(ctx context.Context, text string) (string, error)
}

// Service implements domain.Compressor on top of a Codec.
type Service struct {
	codec   Codec
	enabled bool
	timeout time.Duration
}

// NewService creates a compressor. When enabled is false both operations
// return their input.
func NewService(codec Codec, enabled bool, timeout time.Duration) *Service {
	return &Service{
		codec:   codec,
		enabled: enabled,
		timeout: timeout,
	}
}

// Compress shrinks text, falling back to the input on any codec failure or
// empty output.
func (s *Service) Compress(ctx context.Context, text string) domain.CompressionResult {
	if !s.enabled || text == "" {
		return domain.CompressionResult{Original: text, Compressed: text}
	}

	compressed, err := s.run(ctx, s.codec.Encode, text)
	if err != nil {
		s.fallback(ctx, opCompress, err)
		return domain.CompressionResult{Original: text, Compressed: text}
	}

	return domain.CompressionResult{Original: text, Compressed: compressed}
}

// Decompress restores text on a best-effort basis. Text that cannot be
// restored is returned unchanged.
func (s *Service) Decompress(ctx context.Context, text string) string {
	if !s.enabled || text == "" {
		return text
	}

	restored, err := s.run(ctx, s.codec.Decode, text)
	if err != nil {
		s.fallback(ctx, opDecompress, err)
		return text
	}

	return restored
}

func (s *Service) run(
	ctx context.Context,
	transform func(context.Context, string) (string, error),
	text string,
) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := transform(ctx, text)
	if err != nil {
		return "", err
	}

	if out == "" {
		return "", errors.New("codec returned empty output")
	}

	return out, nil
}

func (s *Service) fallback(ctx context.Context, op string, err error) {
	observability.CompressionFallbacks.WithLabelValues(op).Inc()
	observability.FromContext(ctx).Warn("compression fell back to input text",
		observability.String("codec", s.codec.Name()),
		observability.String("op", op),
		observability.Error(err))
}
