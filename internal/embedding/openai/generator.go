package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// shortenablePrefix marks the models that accept a requested output dimension.
const shortenablePrefix = "text-embedding-3"

// Generator generates embeddings using OpenAI.
type Generator struct {
	client    openai.Client
	model     string
	dimension int
}

// NewGenerator creates a new OpenAI embedding generator.
func NewGenerator(config Config) (*Generator, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	if config.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	if config.Model == "" {
		config.Model = string(openai.EmbeddingModelTextEmbedding3Small)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Generator{
		client:    openai.NewClient(opts...),
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

// Generate creates a vector embedding from text.
func (g *Generator) Generate(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(g.model),
	}

	if strings.HasPrefix(g.model, shortenablePrefix) {
		params.Dimensions = openai.Int(int64(g.dimension))
	}

	resp, err := g.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != g.dimension {
		return nil, fmt.Errorf("%w: model %s returned %d, want %d",
			domain.ErrDimensionMismatch, g.model, len(embedding), g.dimension)
	}

	observability.FromContext(ctx).Debug("embedding generated",
		observability.String("embedding_model", g.model),
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)))

	return embedding, nil
}

// Name returns the generator identifier.
func (g *Generator) Name() string {
	return "openai"
}

// Dimension returns the vector dimension.
func (g *Generator) Dimension() int {
	return g.dimension
}
