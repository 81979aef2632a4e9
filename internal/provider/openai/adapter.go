// Package openai provides an adapter for the OpenAI API using the official SDK.
// It implements the domain.Provider interface and converts between domain
// types and SDK types. Upstream failures are reported as *domain.ProviderError
// carrying the HTTP status when one was received.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const providerName = "openai"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
	models map[string]struct{}
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	models := config.Models
	if len(models) == 0 {
		models = SupportedModels()
	}

	return &Provider{
		client: openai.NewClient(opts...),
		name:   providerName,
		models: buildModelSet(models),
	}, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, p.toSDKParams(req))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, p.toProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, domain.NewProviderError(p.name, 0, errors.New("response contained no choices"))
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return p.toDomainResponse(resp), nil
}

// Stream sends a completion request and returns a stream of chunks. The
// final chunk carries the finish reason and token usage.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	params := p.toSDKParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	domainChunks := make(chan domain.StreamChunk)

	send := func(chunk domain.StreamChunk) bool {
		select {
		case domainChunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(domainChunks)
		defer stream.Close()

		var finishReason string
		var usage *domain.Usage

		// With usage enabled the finish reason arrives before a final
		// usage-only chunk, so Done is sent once the stream is drained.
		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = &domain.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}

			if choice.Delta.Content == "" {
				continue
			}

			if !send(domain.StreamChunk{Delta: choice.Delta.Content}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			logger.Error("OpenAI stream failed", observability.Error(err))
			send(domain.StreamChunk{Error: p.toProviderError(err)})
			return
		}

		if finishReason == "" {
			// Closing without Done tells the consumer the answer is incomplete.
			logger.Warn("OpenAI stream ended without finish reason")
			return
		}

		logger.Debug("OpenAI stream completed", observability.String("finish_reason", finishReason))
		send(domain.StreamChunk{Done: true, FinishReason: finishReason, Usage: usage})
	}()

	return domainChunks, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	_, ok := p.models[model]
	return ok
}

// SupportedModels returns the models this provider serves.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.models))
	for model := range p.models {
		models = append(models, model)
	}
	return models
}

// toSDKParams converts domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleAssistant:
			messages[i] = openai.AssistantMessage(msg.Content)
		case domain.RoleSystem:
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}

// toDomainResponse converts SDK response to domain response. Cost is filled
// in by the domain cost calculator.
func (p *Provider) toDomainResponse(resp *openai.ChatCompletion) *domain.CompletionResponse {
	choice := resp.Choices[0]

	return &domain.CompletionResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Provider:     p.name,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishTime: time.Now(),
	}
}

// toProviderError keeps the upstream status code when the SDK reports one.
func (p *Provider) toProviderError(err error) *domain.ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(p.name, apiErr.StatusCode, fmt.Errorf("OpenAI API error: %w", err))
	}
	return domain.NewProviderError(p.name, 0, err)
}
