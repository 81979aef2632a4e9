package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidbz/hearth/internal/observability"
)

// SemanticCacheService implements semantic caching using embeddings and an
// in-memory vector index.
type SemanticCacheService struct {
	embeddingGen EmbeddingGenerator
	index        VectorIndex
	threshold    float64
	embedTimeout time.Duration
}

// NewSemanticCacheService creates a new semantic cache service.
func NewSemanticCacheService(
	embeddingGen EmbeddingGenerator,
	index VectorIndex,
	threshold float64,
	embedTimeout time.Duration,
) *SemanticCacheService {
	return &SemanticCacheService{
		embeddingGen: embeddingGen,
		index:        index,
		threshold:    threshold,
		embedTimeout: embedTimeout,
	}
}

// IsEmpty reports whether the index holds no entries.
func (s *SemanticCacheService) IsEmpty() bool {
	return s.index.Len() == 0
}

// MakeKey embeds the most recent user message of messages.
func (s *SemanticCacheService) MakeKey(ctx context.Context, messages []Message, model string) (*CacheKey, error) {
	text, ok := latestUserMessage(messages)
	if !ok {
		return nil, ErrNoUserMessage
	}

	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	start := time.Now()
	embedding, err := s.embeddingGen.Generate(ctx, text)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EmbeddingDuration.
		WithLabelValues(s.embeddingGen.Name(), outcome).
		Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	key, err := NewCacheKey(model, embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize embedding: %w", err)
	}

	observability.FromContext(ctx).Debug("cache key built",
		observability.Int("embedding_dimension", len(key.Vector)),
		observability.Int("query_length", len(text)))

	return key, nil
}

// Lookup returns the nearest cached answer for key when it clears the
// similarity threshold. A nil key or an empty index is an immediate miss.
func (s *SemanticCacheService) Lookup(ctx context.Context, key *CacheKey) (*CacheMatch, error) {
	if key == nil || s.index.Len() == 0 {
		return nil, ErrCacheMiss
	}

	match, err := s.index.Nearest(key.Model, key.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	if match == nil || match.Similarity < s.threshold {
		logger := observability.FromContext(ctx)
		if match != nil {
			logger.Debug("nearest entry below threshold",
				observability.Float64("similarity", match.Similarity),
				observability.Float64("threshold", s.threshold))
		}
		return nil, ErrCacheMiss
	}

	return match, nil
}

// Insert stores answer under key.
func (s *SemanticCacheService) Insert(ctx context.Context, key *CacheKey, answer string) error {
	if key == nil {
		return errors.New("cache key cannot be nil")
	}

	if answer == "" {
		return errors.New("answer cannot be empty")
	}

	entry, err := s.index.Add(key.Model, key.Vector, answer)
	if err != nil {
		return fmt.Errorf("failed to index answer: %w", err)
	}

	observability.FromContext(ctx).Debug("answer cached",
		observability.Uint64("sequence_id", entry.SequenceID),
		observability.Int("answer_length", len(answer)))

	return nil
}

// Clear drops every cached entry.
func (s *SemanticCacheService) Clear(ctx context.Context) {
	s.index.Reset()
	observability.FromContext(ctx).Info("semantic cache cleared")
}

// Stats returns index statistics.
func (s *SemanticCacheService) Stats(_ context.Context) IndexStats {
	return s.index.Stats()
}

// latestUserMessage returns the content of the last user turn.
func latestUserMessage(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
