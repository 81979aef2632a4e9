package domain

import (
	"context"
	"time"
)

// SemanticCache provides semantic caching operations using vector similarity.
type SemanticCache interface {
	// IsEmpty reports whether there is nothing to match against.
	IsEmpty() bool

	// MakeKey embeds the latest user message of messages.
	MakeKey(ctx context.Context, messages []Message, model string) (*CacheKey, error)

	// Lookup returns the best match at or above the threshold, or ErrCacheMiss.
	Lookup(ctx context.Context, key *CacheKey) (*CacheMatch, error)

	// Insert stores answer under key.
	Insert(ctx context.Context, key *CacheKey, answer string) error

	// Clear drops every entry.
	Clear(ctx context.Context)

	// Stats reports index statistics.
	Stats(ctx context.Context) IndexStats
}

// EmbeddingGenerator creates vector embeddings from text.
type EmbeddingGenerator interface {
	// Generate creates a vector embedding from text.
	Generate(ctx context.Context, text string) ([]float64, error)

	// Name returns the generator identifier.
	Name() string

	// Dimension returns the vector dimension.
	Dimension() int
}

// VectorIndex is the in-memory arena of cached answers and their vectors.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Len returns the number of entries.
	Len() int

	// Nearest returns the most similar entry stored for model, or nil when
	// there is none. Vector must be L2-normalised.
	Nearest(model string, vector []float64) (*CacheMatch, error)

	// Add appends an entry, evicting the oldest one when full.
	Add(model string, vector []float64, answer string) (*CacheEntry, error)

	// Reset drops every entry.
	Reset()

	// Stats reports entry count, capacity and evictions.
	Stats() IndexStats
}

// CacheKey is the (model, normalised embedding) pair used to query the cache.
type CacheKey struct {
	Model  string
	Vector []float64
}

// CacheEntry is one cached answer. Entries are never mutated once created.
type CacheEntry struct {
	SequenceID uint64
	Model      string
	Vector     []float64
	Answer     string
	CreatedAt  time.Time
}

// CacheMatch is a lookup result.
type CacheMatch struct {
	SequenceID uint64
	Answer     string
	Similarity float64
	CreatedAt  time.Time
}

// IndexStats reports vector index statistics.
type IndexStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Evictions uint64 `json:"evictions"`
}

// CacheStats is the admin view combining index state and pipeline counters.
type CacheStats struct {
	Entries   int     `json:"entries"`
	Capacity  int     `json:"capacity"`
	Evictions uint64  `json:"evictions"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hitRate"`
}
