// Package hashing provides a deterministic, in-process embedding generator.
//
// Text is lowercased and split on non-alphanumeric runes; stop words are
// dropped. Each remaining token and each adjacent token pair is hashed with
// FNV-1a into one of D buckets, with a second hash bit choosing the sign.
// Term counts are dampened with 1+ln(tf). The caller normalises the result.
//
// This is lexical: paraphrases that share content words land close together,
// synonyms do not.
package hashing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	// bigramWeight scales pair features relative to single tokens.
	bigramWeight = 0.5

	// minTokenLength drops single-letter tokens.
	minTokenLength = 2
)

// stopWords carry little meaning for matching questions against each other.
// Request verbs are included so "explain X" and "describe X" meet on X.
//
//nolint:gochecknoglobals // fixed word list
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "could": {}, "describe": {}, "do": {}, "does": {}, "explain": {},
	"for": {}, "from": {}, "give": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "please": {},
	"show": {}, "tell": {}, "that": {}, "the": {}, "this": {}, "to": {}, "us": {},
	"was": {}, "what": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// Generator implements domain.EmbeddingGenerator with feature hashing.
type Generator struct {
	dimension int
}

// NewGenerator creates a generator producing vectors of the given dimension.
func NewGenerator(dimension int) (*Generator, error) {
	if dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	return &Generator{dimension: dimension}, nil
}

// Generate embeds text. Text without content words yields a zero vector.
func (g *Generator) Generate(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embedding cancelled: %w", err)
	}

	tokens := tokenize(text)

	features := make(map[string]float64, len(tokens)*2)
	for i, token := range tokens {
		features[token]++
		if i > 0 {
			features[tokens[i-1]+" "+token] += bigramWeight
		}
	}

	vector := make([]float64, g.dimension)
	for feature, count := range features {
		bucket, sign := g.hash(feature)
		weight := count
		if count >= 1 {
			weight = 1 + math.Log(count)
		}
		vector[bucket] += sign * weight
	}

	return vector, nil
}

// Name returns the generator identifier.
func (g *Generator) Name() string {
	return "hashing"
}

// Dimension returns the vector dimension.
func (g *Generator) Dimension() int {
	return g.dimension
}

func (g *Generator) hash(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}

	return int(sum % uint64(g.dimension)), sign
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := fields[:0]
	for _, field := range fields {
		if len(field) < minTokenLength {
			continue
		}
		if _, stop := stopWords[field]; stop {
			continue
		}
		tokens = append(tokens, field)
	}

	return tokens
}
