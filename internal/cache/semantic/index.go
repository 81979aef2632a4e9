package semantic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// slot holds everything about an entry except its vector, which lives in
// the shared matrix at the same position.
type slot struct {
	sequenceID uint64
	model      string
	answer     string
	createdAt  time.Time
}

// Index is a bounded, in-memory vector index. Vectors are stored row-major
// in one flat matrix; when full, the oldest row is overwritten.
type Index struct {
	mu sync.RWMutex

	dimension int
	capacity  int

	vectors []float64
	slots   []slot
	// oldest is the row overwritten by the next Add once the index is full.
	oldest int

	lastSequence uint64
	evictions    uint64

	now func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(i *Index) {
		i.now = now
	}
}

// NewIndex creates an empty index holding at most capacity vectors of the
// given dimension.
func NewIndex(capacity, dimension int, opts ...Option) (*Index, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}

	if dimension <= 0 {
		return nil, errors.New("dimension must be positive")
	}

	index := &Index{
		dimension: dimension,
		capacity:  capacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(index)
	}

	observability.CacheEntries.Set(0)
	return index, nil
}

// Dimension returns the vector length the index accepts.
func (i *Index) Dimension() int {
	return i.dimension
}

// Len returns the number of stored entries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.slots)
}

// Nearest scans every entry stored for model and returns the one with the
// highest inner product. Ties go to the most recent entry.
func (i *Index) Nearest(model string, vector []float64) (*domain.CacheMatch, error) {
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), i.dimension)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	best := -1
	var bestScore float64
	for row := range i.slots {
		if i.slots[row].model != model {
			continue
		}

		score := domain.Dot(i.row(row), vector)
		if best < 0 || score > bestScore ||
			(score == bestScore && i.slots[row].sequenceID > i.slots[best].sequenceID) {
			best = row
			bestScore = score
		}
	}

	if best < 0 {
		return nil, nil //nolint:nilnil // no entry for model is not an error
	}

	s := i.slots[best]
	return &domain.CacheMatch{
		SequenceID: s.sequenceID,
		Answer:     s.answer,
		Similarity: bestScore,
		CreatedAt:  s.createdAt,
	}, nil
}

// Add stores a new entry. Vector must be unit length.
func (i *Index) Add(model string, vector []float64, answer string) (*domain.CacheEntry, error) {
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), i.dimension)
	}

	if !domain.IsUnit(vector) {
		return nil, fmt.Errorf("vector is not unit length (norm %f)", domain.L2Norm(vector))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.lastSequence++
	s := slot{
		sequenceID: i.lastSequence,
		model:      model,
		answer:     answer,
		createdAt:  i.now(),
	}
	i.put(s, vector)

	return &domain.CacheEntry{
		SequenceID: s.sequenceID,
		Model:      s.model,
		Vector:     append([]float64(nil), vector...),
		Answer:     s.answer,
		CreatedAt:  s.createdAt,
	}, nil
}

// Reset drops every entry. Sequence numbers keep increasing afterwards.
func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.vectors = nil
	i.slots = nil
	i.oldest = 0
	observability.CacheEntries.Set(0)
}

// Stats reports entry count, capacity and evictions.
func (i *Index) Stats() domain.IndexStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return domain.IndexStats{
		Entries:   len(i.slots),
		Capacity:  i.capacity,
		Evictions: i.evictions,
	}
}

// Entries returns a copy of every entry, oldest first.
func (i *Index) Entries() []domain.CacheEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entries := make([]domain.CacheEntry, 0, len(i.slots))
	for n := range i.slots {
		row := (i.oldest + n) % len(i.slots)
		s := i.slots[row]
		entries = append(entries, domain.CacheEntry{
			SequenceID: s.sequenceID,
			Model:      s.model,
			Vector:     append([]float64(nil), i.row(row)...),
			Answer:     s.answer,
			CreatedAt:  s.createdAt,
		})
	}
	return entries
}

// put writes s and vector into the next free row, or over the oldest one.
// Callers hold the write lock.
func (i *Index) put(s slot, vector []float64) {
	if len(i.slots) < i.capacity {
		i.slots = append(i.slots, s)
		i.vectors = append(i.vectors, vector...)
		observability.CacheEntries.Set(float64(len(i.slots)))
		return
	}

	i.slots[i.oldest] = s
	copy(i.row(i.oldest), vector)
	i.oldest = (i.oldest + 1) % i.capacity

	i.evictions++
	observability.CacheEvictions.Inc()
}

func (i *Index) row(n int) []float64 {
	return i.vectors[n*i.dimension : (n+1)*i.dimension]
}
