// Package echo provides a provider that answers with the latest user message.
// It makes no external calls, so it serves development setups and
// end-to-end checks of the cache: what it returns is exactly what the
// gateway sent upstream.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	providerName      = "echo"
	modelName         = "echo4"
	finishReasonStop  = "stop"
	defaultChunkDelay = 10 * time.Millisecond
)

// Option configures the echo provider.
type Option func(*Provider)

// WithChunkDelay sets the pause between streamed words.
func WithChunkDelay(delay time.Duration) Option {
	return func(p *Provider) {
		p.chunkDelay = delay
	}
}

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name            string
	supportedModels map[string]bool
	chunkDelay      time.Duration
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		name: providerName,
		supportedModels: map[string]bool{
			modelName: true,
		},
		chunkDelay: defaultChunkDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete returns the latest user message as the answer.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.NewProviderError(p.name, 0, err)
	}

	answer := latestUserMessage(req.Messages)
	usage := countUsage(req.Messages, answer)

	observability.FromContext(ctx).Debug("echo completed",
		observability.Int("prompt_tokens", usage.PromptTokens),
		observability.Int("completion_tokens", usage.CompletionTokens),
	)

	return &domain.CompletionResponse{
		ID:           "echo-" + uuid.NewString(),
		Model:        req.Model,
		Provider:     p.name,
		Content:      answer,
		FinishReason: finishReasonStop,
		Usage:        usage,
		FinishTime:   time.Now(),
	}, nil
}

// Stream sends the answer word by word. Concatenated deltas equal the
// Complete answer.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Debug("streaming echo request")

	answer := latestUserMessage(req.Messages)
	usage := countUsage(req.Messages, answer)

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		for _, word := range splitWords(answer) {
			select {
			case chunks <- domain.StreamChunk{Delta: word}:
			case <-ctx.Done():
				return
			}

			if p.chunkDelay > 0 {
				select {
				case <-time.After(p.chunkDelay):
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case chunks <- domain.StreamChunk{Done: true, FinishReason: finishReasonStop, Usage: &usage}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// SupportedModels returns a list of all models this provider supports.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.supportedModels))
	for model := range p.supportedModels {
		models = append(models, model)
	}
	return models
}

func (p *Provider) validate(req *domain.CompletionRequest) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}

	if !p.supportedModels[req.Model] {
		return fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	return nil
}

func latestUserMessage(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// splitWords cuts s after each space so the pieces join back to s.
func splitWords(s string) []string {
	pieces := strings.SplitAfter(s, " ")
	words := pieces[:0]
	for _, piece := range pieces {
		if piece != "" {
			words = append(words, piece)
		}
	}
	return words
}

// countUsage performs simple word-based token counting.
func countUsage(messages []domain.Message, answer string) domain.Usage {
	var prompt int
	for _, msg := range messages {
		prompt += len(strings.Fields(msg.Content))
	}
	completion := len(strings.Fields(answer))

	return domain.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
